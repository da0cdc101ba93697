package common

import (
	"errors"
	"math"
)

var (
	ErrQuotaRequestsExceeded = errors.New("common: quota requests exceeded")
	ErrQuotaItemCapExceeded  = errors.New("common: quota item cap exceeded")
	ErrQuotaCounterOverflow  = errors.New("common: quota counter overflow")
)

// QuotaNow captures the current quota usage counters for an account.
type QuotaNow struct {
	ReqCount  uint32
	ItemsUsed uint64
	EpochID   uint64
}

// Quota defines the limits enforced on self-service migration calls per
// account and epoch.
type Quota struct {
	MaxRequestsPerEpoch uint32
	MaxItemsPerEpoch    uint64
	EpochSeconds        uint32
}

// Epoch returns the epoch number for the unix timestamp now. A zero epoch
// length places every call in epoch 0.
func (q Quota) Epoch(now int64) uint64 {
	if q.EpochSeconds == 0 || now <= 0 {
		return 0
	}
	return uint64(now) / uint64(q.EpochSeconds)
}

// CheckQuota verifies whether the additional request and item usage fit within
// the configured quota. The returned QuotaNow reflects the updated counters
// when the quota is not exceeded.
func CheckQuota(q Quota, nowEpoch uint64, prev QuotaNow, addReq uint32, addItems uint64) (QuotaNow, error) {
	next := prev
	if prev.EpochID != nowEpoch {
		next = QuotaNow{EpochID: nowEpoch}
	}

	if addReq > 0 {
		if next.ReqCount > math.MaxUint32-addReq {
			return prev, ErrQuotaCounterOverflow
		}
		next.ReqCount += addReq
	}
	if q.MaxRequestsPerEpoch > 0 && next.ReqCount > q.MaxRequestsPerEpoch {
		return prev, ErrQuotaRequestsExceeded
	}

	if addItems > 0 {
		if next.ItemsUsed > math.MaxUint64-addItems {
			return prev, ErrQuotaCounterOverflow
		}
		next.ItemsUsed += addItems
	}
	if q.MaxItemsPerEpoch > 0 && next.ItemsUsed > q.MaxItemsPerEpoch {
		return prev, ErrQuotaItemCapExceeded
	}

	return next, nil
}
