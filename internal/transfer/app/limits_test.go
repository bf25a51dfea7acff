package app

import (
	"errors"
	"testing"

	"github.com/modernbank/banking/internal/transfer/domain"
)

func TestCheckLimits(t *testing.T) {
	limit := &domain.TransferLimit{CustomerID: "cust-1", OneTimeLimit: 5_000, DailyLimit: 12_000}

	cases := []struct {
		name      string
		amount    int64
		usedToday int64
		wantKind  string
		wantMax   int64
	}{
		{name: "within both limits", amount: 5_000, usedToday: 0},
		{name: "exactly the remaining allowance", amount: 2_000, usedToday: 10_000},
		{name: "one-time breach", amount: 5_001, usedToday: 0, wantKind: LimitKindOneTime, wantMax: 5_000},
		{name: "daily breach", amount: 3_000, usedToday: 10_000, wantKind: LimitKindDaily, wantMax: 2_000},
		{name: "allowance exhausted", amount: 1, usedToday: 12_000, wantKind: LimitKindDaily, wantMax: 0},
		{name: "allowance overdrawn never goes negative", amount: 1, usedToday: 20_000, wantKind: LimitKindDaily, wantMax: 0},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := CheckLimits(tc.amount, limit, tc.usedToday)
			if tc.wantKind == "" {
				if err != nil {
					t.Fatalf("expected nil error, got %v", err)
				}
				return
			}
			var limitErr *LimitExceededError
			if !errors.As(err, &limitErr) {
				t.Fatalf("expected LimitExceededError, got %v", err)
			}
			if limitErr.Kind != tc.wantKind {
				t.Fatalf("expected kind %q, got %q", tc.wantKind, limitErr.Kind)
			}
			if limitErr.Max != tc.wantMax {
				t.Fatalf("expected max %d, got %d", tc.wantMax, limitErr.Max)
			}
		})
	}
}

func TestRemainingDaily(t *testing.T) {
	limit := &domain.TransferLimit{DailyLimit: 10_000}

	if got := RemainingDaily(limit, 4_000); got != 6_000 {
		t.Fatalf("expected 6000, got %d", got)
	}
	if got := RemainingDaily(limit, 15_000); got != 0 {
		t.Fatalf("expected floor at zero, got %d", got)
	}
}
