package exports

import (
	"bytes"
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"

	"evmbridge/integrations/audit"
)

// AuditCSV builds a CSV export of the supplied audit records and returns the
// serialised data alongside a SHA-256 checksum of the payload. Attributes are
// flattened into sorted key=value pairs.
func AuditCSV(records []audit.Record) ([]byte, string, error) {
	buffer := &bytes.Buffer{}
	writer := csv.NewWriter(buffer)
	header := []string{"sequence", "id", "type", "attributes", "created_at"}
	if err := writer.Write(header); err != nil {
		return nil, "", err
	}
	for _, rec := range records {
		evt, err := rec.Event()
		if err != nil {
			return nil, "", err
		}
		row := []string{
			fmt.Sprintf("%d", rec.Sequence),
			rec.ID.String(),
			evt.Type,
			flatten(evt.Attributes),
			rec.CreatedAt.UTC().Format(time.RFC3339Nano),
		}
		if err := writer.Write(row); err != nil {
			return nil, "", err
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, "", err
	}
	data := buffer.Bytes()
	checksum := sha256.Sum256(data)
	return data, hex.EncodeToString(checksum[:]), nil
}

func flatten(attrs map[string]string) string {
	keys := make([]string, 0, len(attrs))
	for k := range attrs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+attrs[k])
	}
	return strings.Join(parts, ";")
}
