/**
 * @description
 * Transfer limit policy. A transfer must clear both the one-time ceiling and
 * whatever is left of the daily allowance; the daily allowance only counts
 * pending and completed transfers, so cancelled or failed attempts hand their
 * amount back.
 */

package app

import (
	"fmt"

	"github.com/modernbank/banking/internal/transfer/domain"
)

// Limit kinds reported by LimitExceededError.
const (
	LimitKindOneTime = "one_time"
	LimitKindDaily   = "daily"
)

// LimitExceededError reports which ceiling a transfer hit.
type LimitExceededError struct {
	Kind string
	Max  int64
}

func (e *LimitExceededError) Error() string {
	if e.Kind == LimitKindDaily {
		return fmt.Sprintf("amount exceeds remaining daily transfer allowance of %d", e.Max)
	}
	return fmt.Sprintf("amount exceeds one-time transfer limit of %d", e.Max)
}

// CheckLimits validates the amount against the customer's ceilings. usedToday is
// the allowance already consumed by today's pending and completed transfers.
func CheckLimits(amount int64, limit *domain.TransferLimit, usedToday int64) error {
	if amount > limit.OneTimeLimit {
		return &LimitExceededError{Kind: LimitKindOneTime, Max: limit.OneTimeLimit}
	}

	remaining := limit.DailyLimit - usedToday
	if remaining < 0 {
		remaining = 0
	}
	if amount > remaining {
		return &LimitExceededError{Kind: LimitKindDaily, Max: remaining}
	}
	return nil
}

// RemainingDaily computes today's leftover allowance, floored at zero.
func RemainingDaily(limit *domain.TransferLimit, usedToday int64) int64 {
	remaining := limit.DailyLimit - usedToday
	if remaining < 0 {
		remaining = 0
	}
	return remaining
}
