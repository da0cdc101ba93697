package audit

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"evmbridge/core/events"
	"evmbridge/crypto"
)

func setupAuditDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("sqlite open: %v", err)
	}
	return db
}

func TestSinkRecordsCommittedEvents(t *testing.T) {
	sink, err := New(setupAuditDB(t), nil)
	if err != nil {
		t.Fatalf("new sink: %v", err)
	}
	defer sink.Close()
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	sink.SetNowFunc(func() time.Time { return now })

	addr := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	var emitter events.Emitter = sink
	emitter.Emit(events.AccountResolved{Address: addr, Account: crypto.AccountFromEVM(addr)})
	emitter.Emit(events.AuthoritySet{Authority: crypto.AccountFromEVM(addr)})

	records, err := sink.Recent(context.Background(), "", 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if records[0].Type != events.TypeAuthoritySet || records[0].Sequence != 2 {
		t.Fatalf("unexpected newest record: %+v", records[0])
	}
	if !records[1].CreatedAt.Equal(now) {
		t.Fatalf("unexpected timestamp %s", records[1].CreatedAt)
	}
	evt, err := records[1].Event()
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if evt.Attributes["address"] != addr.Hex() {
		t.Fatalf("unexpected attributes: %v", evt.Attributes)
	}
}

func TestSinkRecentFiltersAndLimits(t *testing.T) {
	sink, err := New(setupAuditDB(t), nil)
	if err != nil {
		t.Fatalf("new sink: %v", err)
	}
	defer sink.Close()
	authority := crypto.AccountFromEVM(common.HexToAddress("0x01"))
	for i := 0; i < 5; i++ {
		sink.Emit(events.AuthoritySet{Authority: authority})
	}
	sink.Emit(events.ScanCompleted{Mode: "full", Pairs: 3, Complete: true})

	records, err := sink.Recent(context.Background(), events.TypeAuthoritySet, 2)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if records[0].Sequence != 5 || records[1].Sequence != 4 {
		t.Fatalf("unexpected order: %d, %d", records[0].Sequence, records[1].Sequence)
	}
}

func TestSinkResumesSequence(t *testing.T) {
	db := setupAuditDB(t)
	first, err := New(db, nil)
	if err != nil {
		t.Fatalf("new sink: %v", err)
	}
	first.Emit(events.AuthoritySet{})
	first.Emit(events.AuthoritySet{})

	second, err := New(db, nil)
	if err != nil {
		t.Fatalf("reopen sink: %v", err)
	}
	rec, err := second.Record(events.AuthoritySet{})
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if rec.Sequence != 3 {
		t.Fatalf("expected sequence 3, got %d", rec.Sequence)
	}
	if err := second.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := second.Record(events.AuthoritySet{}); err != errClosed {
		t.Fatalf("expected closed error, got %v", err)
	}
}
