package common

import (
	"errors"
	"math"
	"testing"
)

func TestCheckQuotaRequestLimit(t *testing.T) {
	q := Quota{MaxRequestsPerEpoch: 10}
	prev := QuotaNow{EpochID: 1}

	next, err := CheckQuota(q, 1, prev, 10, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if next.ReqCount != 10 {
		t.Fatalf("unexpected request count: %d", next.ReqCount)
	}

	denied, err := CheckQuota(q, 1, next, 1, 0)
	if !errors.Is(err, ErrQuotaRequestsExceeded) {
		t.Fatalf("expected ErrQuotaRequestsExceeded, got %v", err)
	}
	if denied != next {
		t.Fatalf("expected counters to remain unchanged on denial")
	}

	rollover, err := CheckQuota(q, 2, next, 1, 0)
	if err != nil {
		t.Fatalf("unexpected error after epoch rollover: %v", err)
	}
	if rollover.EpochID != 2 || rollover.ReqCount != 1 {
		t.Fatalf("unexpected state after rollover: %+v", rollover)
	}
}

func TestCheckQuotaItems(t *testing.T) {
	q := Quota{MaxItemsPerEpoch: 1000}
	prev := QuotaNow{EpochID: 5}

	next, err := CheckQuota(q, 5, prev, 0, 1000)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if next.ItemsUsed != 1000 {
		t.Fatalf("unexpected items used: %d", next.ItemsUsed)
	}

	denied, err := CheckQuota(q, 5, next, 0, 1)
	if !errors.Is(err, ErrQuotaItemCapExceeded) {
		t.Fatalf("expected ErrQuotaItemCapExceeded, got %v", err)
	}
	if denied != next {
		t.Fatalf("expected counters to remain unchanged on denial")
	}

	rollover, err := CheckQuota(q, 6, next, 0, 500)
	if err != nil {
		t.Fatalf("unexpected error after epoch rollover: %v", err)
	}
	if rollover.ItemsUsed != 500 {
		t.Fatalf("unexpected items used after rollover: %d", rollover.ItemsUsed)
	}
}

func TestCheckQuotaCounterOverflow(t *testing.T) {
	prev := QuotaNow{ReqCount: math.MaxUint32, EpochID: 3}
	if _, err := CheckQuota(Quota{}, 3, prev, 1, 0); !errors.Is(err, ErrQuotaCounterOverflow) {
		t.Fatalf("expected ErrQuotaCounterOverflow, got %v", err)
	}
}

func TestQuotaEpoch(t *testing.T) {
	q := Quota{EpochSeconds: 60}
	if got := q.Epoch(125); got != 2 {
		t.Fatalf("unexpected epoch: %d", got)
	}
	if got := (Quota{}).Epoch(125); got != 0 {
		t.Fatalf("zero-length epoch should collapse to 0, got %d", got)
	}
}

func TestGuard(t *testing.T) {
	pauses := Pauses{ModuleClaim: true}
	if err := Guard(pauses, ModuleClaim); !errors.Is(err, ErrModulePaused) {
		t.Fatalf("expected ErrModulePaused, got %v", err)
	}
	if err := Guard(pauses, ModuleMigrate); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := Guard(nil, ModuleClaim); err != nil {
		t.Fatalf("nil view must not block: %v", err)
	}
}
