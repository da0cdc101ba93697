package exports

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"evmbridge/integrations/audit"
)

func sampleRecord(seq uint64) audit.Record {
	return audit.Record{
		ID:         uuid.MustParse("9a3c0d4e-5f7b-4c1e-8d2a-0b6e7f8a9c01"),
		Sequence:   seq,
		Type:       "bridge.scanCompleted",
		Attributes: `{"mode":"full","pairs":"3","complete":"true"}`,
		CreatedAt:  time.Unix(1700, 0).UTC(),
	}
}

func TestAuditCSV(t *testing.T) {
	data, checksum, err := AuditCSV([]audit.Record{sampleRecord(4)})
	if err != nil {
		t.Fatalf("csv: %v", err)
	}
	if len(data) == 0 || checksum == "" {
		t.Fatalf("expected data and checksum")
	}
	output := string(data)
	if !strings.Contains(output, "sequence,id,type,attributes,created_at") {
		t.Fatalf("missing header: %s", output)
	}
	if !strings.Contains(output, "complete=true;mode=full;pairs=3") {
		t.Fatalf("attributes not flattened in key order: %s", output)
	}
}

func TestAuditJSONL(t *testing.T) {
	data, checksum, err := AuditJSONL([]audit.Record{sampleRecord(1), sampleRecord(2)})
	if err != nil {
		t.Fatalf("jsonl: %v", err)
	}
	if len(data) == 0 || checksum == "" {
		t.Fatalf("expected data and checksum")
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	if !strings.Contains(lines[1], "\"sequence\":2") {
		t.Fatalf("unexpected payload: %s", lines[1])
	}
	if !strings.Contains(lines[0], "\"mode\":\"full\"") {
		t.Fatalf("missing attributes: %s", lines[0])
	}
}

func TestAuditExportRejectsCorruptAttributes(t *testing.T) {
	rec := sampleRecord(1)
	rec.Attributes = "{"
	if _, _, err := AuditJSONL([]audit.Record{rec}); err == nil {
		t.Fatalf("expected decode error")
	}
}
