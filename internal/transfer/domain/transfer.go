/**
 * @description
 * This file defines the core domain models for the transfer-service. Transfers
 * are the customer-facing movement of funds between accounts; every transfer is
 * backed by ledger entries recorded by the account-service. All monetary values
 * are in minor units (kobo).
 */

package domain

import "time"

// Transfer kinds. Internal transfers move money between two accounts of this
// bank; external transfers leave through the settlement rail.
const (
	KindInternal = "internal"
	KindExternal = "external"
)

// Transfer statuses. Pending covers external transfers awaiting a counterparty
// decision. Completed, cancelled, and failed are terminal.
const (
	StatusPending   = "pending"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
	StatusFailed    = "failed"
)

// TransferRecord is one row of a customer's transfer history. Sequence is
// per-customer and monotonically increasing.
type TransferRecord struct {
	CustomerID           string    `json:"customer_id"`
	Sequence             int       `json:"sequence"`
	Kind                 string    `json:"kind"`
	Status               string    `json:"status"`
	SourceAccount        string    `json:"source_account"`
	DestinationAccount   string    `json:"destination_account"`
	SourceTransactionSeq int       `json:"source_transaction_sequence"`
	SenderMemo           string    `json:"sender_memo,omitempty"`
	ReceiverMemo         string    `json:"receiver_memo,omitempty"`
	ReceiverName         string    `json:"receiver_name,omitempty"`
	Amount               int64     `json:"amount"`
	IdempotencyKey       *string   `json:"idempotency_key,omitempty"`
	CreatedAt            time.Time `json:"created_at"`
}

// TransferRequest is the payload for submitting a transfer. The customer id is
// never taken from the body; it comes from the authenticated token.
type TransferRequest struct {
	SourceAccount      string `json:"source_account"`
	DestinationAccount string `json:"destination_account"`
	Amount             int64  `json:"amount"`
	SenderMemo         string `json:"sender_memo,omitempty"`
	ReceiverMemo       string `json:"receiver_memo,omitempty"`
	ReceiverName       string `json:"receiver_name,omitempty"`
	IdempotencyKey     string `json:"idempotency_key,omitempty"`
}

// TransferLimit holds a customer's configured transfer ceilings.
type TransferLimit struct {
	CustomerID   string `json:"customer_id"`
	OneTimeLimit int64  `json:"one_time_limit"`
	DailyLimit   int64  `json:"daily_limit"`
}

// LimitRequest is the payload for configuring transfer limits.
type LimitRequest struct {
	OneTimeLimit int64 `json:"one_time_limit"`
	DailyLimit   int64 `json:"daily_limit"`
}

// AvailableLimit reports how much a customer may still transfer. RemainingDaily
// is the daily ceiling minus what today's pending and completed transfers have
// already consumed, floored at zero.
type AvailableLimit struct {
	OneTimeLimit   int64 `json:"one_time_limit"`
	RemainingDaily int64 `json:"remaining_daily"`
}

// TransferRecordedEvent feeds the CQRS read model whenever a transfer is
// created or changes status.
type TransferRecordedEvent struct {
	CustomerID         string    `json:"customer_id"`
	Sequence           int       `json:"sequence"`
	Kind               string    `json:"kind"`
	Status             string    `json:"status"`
	SourceAccount      string    `json:"source_account"`
	DestinationAccount string    `json:"destination_account"`
	Amount             int64     `json:"amount"`
	Timestamp          time.Time `json:"timestamp"`
}
