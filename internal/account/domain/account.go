/**
 * @description
 * This file defines the core domain models for the account-service, the system of
 * record for account balances and transaction history. These structs represent the
 * entities and DTOs used by the service's business logic, database layer, and API.
 *
 * @notes
 * - Amounts are stored as `int64` in the smallest currency unit, which avoids
 *   floating-point inaccuracies with financial data.
 * - A transaction is immutable once its status is terminal; only a pending
 *   withdrawal may transition, exactly once, to completed or failed.
 */

package domain

import "time"

// Transaction directions.
const (
	DirectionDeposit    = "deposit"
	DirectionWithdrawal = "withdrawal"
)

// Transaction statuses. Pending is only ever used for withdrawals backing an
// external transfer; everything else is recorded completed immediately.
const (
	StatusPending   = "pending"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Settlement decisions for a pending withdrawal.
const (
	DecisionConfirm = "confirm"
	DecisionCancel  = "cancel"
)

// DefaultBranch is recorded when a transaction request does not name a branch.
const DefaultBranch = "online"

// Account represents a customer's deposit account. The balance is mutated only
// through recorded transactions, never overwritten directly by clients.
type Account struct {
	AccountNumber string    `json:"account_number"`
	CustomerID    string    `json:"customer_id"`
	DisplayName   string    `json:"display_name"`
	Balance       int64     `json:"balance"`
	OpenedAt      time.Time `json:"opened_at"`
}

// Transaction is one immutable ledger entry. Sequence is monotonic per account
// and ResultingBalance is the account balance after this entry was applied.
type Transaction struct {
	AccountNumber    string    `json:"account_number"`
	Sequence         int       `json:"sequence"`
	Direction        string    `json:"direction"`
	Status           string    `json:"status"`
	Amount           int64     `json:"amount"`
	ResultingBalance int64     `json:"resulting_balance"`
	Branch           string    `json:"branch"`
	IdempotencyKey   *string   `json:"idempotency_key,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

// TransactionResult is returned to callers of the deposit/withdrawal endpoints.
// The recorder is the sole authority for ResultingBalance.
type TransactionResult struct {
	AccountNumber    string `json:"account_number"`
	Sequence         int    `json:"sequence"`
	FormerBalance    int64  `json:"former_balance"`
	Amount           int64  `json:"amount"`
	ResultingBalance int64  `json:"resulting_balance"`
	Status           string `json:"status"`
}

// CreateAccountRequest is the DTO for opening a new account.
type CreateAccountRequest struct {
	AccountNumber string `json:"account_number"`
	CustomerID    string `json:"customer_id"`
	DisplayName   string `json:"display_name"`
}

// TransactionRequest is the DTO for deposit and withdrawal calls. Pending is
// honoured for withdrawals only; the transfer-service sets it for external
// transfers awaiting counterparty confirmation.
type TransactionRequest struct {
	Amount         int64  `json:"amount"`
	Branch         string `json:"branch,omitempty"`
	Pending        bool   `json:"pending,omitempty"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

// SettlementRequest flips a pending withdrawal to its terminal status.
type SettlementRequest struct {
	Decision string `json:"decision"` // "confirm" or "cancel"
}

// TransactionRecordedEvent is published to the CQRS read model after every
// ledger mutation.
type TransactionRecordedEvent struct {
	AccountNumber    string    `json:"account_number"`
	Sequence         int       `json:"sequence"`
	Direction        string    `json:"direction"`
	Status           string    `json:"status"`
	Amount           int64     `json:"amount"`
	ResultingBalance int64     `json:"resulting_balance"`
	Timestamp        time.Time `json:"timestamp"`
}

// AccountBalanceEvent carries the post-mutation balance to the CQRS read model.
type AccountBalanceEvent struct {
	AccountNumber string    `json:"account_number"`
	Balance       int64     `json:"balance"`
	Timestamp     time.Time `json:"timestamp"`
}
