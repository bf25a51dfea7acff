/**
 * @description
 * This file contains the core business logic for the transfer-service. The
 * `Service` struct orchestrates transfers end to end: it validates the request,
 * enforces rate and transfer limits, gates on the live ledger balance, records
 * the withdrawal, and either deposits to the destination (internal) or hands the
 * transfer to the settlement rail (external).
 *
 * Key features:
 * - The source account must belong to the authenticated customer; the ledger is
 *   the authority on ownership and balance, and any failure to reach it rejects
 *   the transfer rather than letting it through unchecked.
 * - Internal transfers run as a saga: pending withdrawal, deposit, confirm. A
 *   failed deposit cancels the withdrawal so the customer's funds come back.
 * - External transfers stay pending until the counterparty's settlement result
 *   arrives on the event bus.
 * - Client idempotency keys collapse resubmissions onto the original transfer
 *   without moving money twice.
 *
 * @dependencies
 * - context, errors, fmt, log, time: Standard Go libraries.
 * - github.com/google/uuid: Ledger idempotency keys for the saga legs.
 * - internal/transfer/domain, internal/transfer/store: Domain models and data access.
 * - pkg/accountclient: Ledger operations.
 * - pkg/rabbitmq: Settlement rail and CQRS event publishing.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/modernbank/banking/internal/transfer/domain"
	"github.com/modernbank/banking/internal/transfer/store"
	"github.com/modernbank/banking/pkg/accountclient"
	"github.com/modernbank/banking/pkg/rabbitmq"
)

var (
	ErrInvalidAmount  = errors.New("transfer amount must be positive")
	ErrMissingAccount = errors.New("source and destination accounts are required")
	ErrSameAccount    = errors.New("source and destination accounts must differ")
	ErrSourceNotOwned = errors.New("source account does not belong to the customer")
	ErrInvalidLimit   = errors.New("limits must be positive and the one-time limit cannot exceed the daily limit")
	ErrRateLimited    = errors.New("too many transfer submissions")

	// ErrUpstreamUnavailable is returned when the ledger cannot be reached. The
	// transfer is rejected rather than allowed through unchecked.
	ErrUpstreamUnavailable = errors.New("account service unavailable")

	// ErrInconsistentState is returned when money moved but the bookkeeping could
	// not be finished. Requires operator reconciliation.
	ErrInconsistentState = errors.New("transfer left in inconsistent state")
)

// InsufficientFundsError carries the balance that failed the gate.
type InsufficientFundsError struct {
	Balance int64
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds: balance %d", e.Balance)
}

// Ledger is the slice of the account-service the orchestrator needs. It is
// implemented by accountclient.Client.
type Ledger interface {
	GetAccount(ctx context.Context, accountNumber string) (*accountclient.Account, error)
	GetBalance(ctx context.Context, accountNumber string) (int64, error)
	Deposit(ctx context.Context, accountNumber string, req accountclient.TransactionRequest) (*accountclient.TransactionResult, error)
	Withdraw(ctx context.Context, accountNumber string, req accountclient.TransactionRequest) (*accountclient.TransactionResult, error)
	SettleWithdrawal(ctx context.Context, accountNumber string, sequence int, decision string) error
}

// SubmitRateLimiter bounds how often one customer may submit transfers.
type SubmitRateLimiter interface {
	Allow(ctx context.Context, customerID string) (bool, error)
}

// Service provides the core business logic for transfers.
type Service struct {
	repo        store.Repository
	ledger      Ledger
	events      rabbitmq.Publisher
	rateLimiter SubmitRateLimiter
}

// NewService creates a new transfer service instance.
func NewService(repo store.Repository, ledger Ledger, events rabbitmq.Publisher) *Service {
	return &Service{repo: repo, ledger: ledger, events: events}
}

// SetSubmitRateLimiter installs the per-customer submission limiter. Without
// one, submissions are unthrottled.
func (s *Service) SetSubmitRateLimiter(limiter SubmitRateLimiter) {
	s.rateLimiter = limiter
}

// SubmitInternal moves funds between two accounts of this bank. It returns the
// completed transfer record.
func (s *Service) SubmitInternal(ctx context.Context, customerID string, req domain.TransferRequest) (*domain.TransferRecord, error) {
	return s.submit(ctx, customerID, domain.KindInternal, req)
}

// SubmitExternal sends funds to another bank. The returned record is pending;
// the settlement rail decides its fate asynchronously.
func (s *Service) SubmitExternal(ctx context.Context, customerID string, req domain.TransferRequest) (*domain.TransferRecord, error) {
	return s.submit(ctx, customerID, domain.KindExternal, req)
}

func (s *Service) submit(ctx context.Context, customerID string, kind string, req domain.TransferRequest) (*domain.TransferRecord, error) {
	if req.SourceAccount == "" || req.DestinationAccount == "" {
		return nil, ErrMissingAccount
	}
	if req.SourceAccount == req.DestinationAccount {
		return nil, ErrSameAccount
	}
	if req.Amount <= 0 {
		return nil, ErrInvalidAmount
	}

	if s.rateLimiter != nil {
		allowed, err := s.rateLimiter.Allow(ctx, customerID)
		if err != nil {
			log.Printf("level=warn component=transfer msg=\"rate limiter check failed; allowing\" customer_id=%s err=%v", customerID, err)
		} else if !allowed {
			return nil, ErrRateLimited
		}
	}

	// Resubmissions with a known key return the original transfer untouched.
	if req.IdempotencyKey != "" {
		existing, err := s.repo.FindTransferByIdempotencyKey(ctx, customerID, req.IdempotencyKey)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			log.Printf("level=info component=transfer msg=\"idempotent resubmission\" customer_id=%s seq=%d key=%s", customerID, existing.Sequence, req.IdempotencyKey)
			return existing, nil
		}
	}

	// The ledger is the authority on ownership and balance. Fail closed: if it
	// cannot answer, the transfer does not happen.
	source, err := s.ledger.GetAccount(ctx, req.SourceAccount)
	if err != nil {
		if errors.Is(err, accountclient.ErrAccountNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	if source.CustomerID != customerID {
		return nil, ErrSourceNotOwned
	}

	if kind == domain.KindInternal {
		if _, err := s.ledger.GetAccount(ctx, req.DestinationAccount); err != nil {
			if errors.Is(err, accountclient.ErrAccountNotFound) {
				return nil, err
			}
			return nil, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
		}
	}

	limit, err := s.repo.GetTransferLimit(ctx, customerID)
	if err != nil {
		return nil, err
	}
	usedToday, err := s.repo.SumTransferAmountForDay(ctx, customerID, time.Now())
	if err != nil {
		return nil, err
	}
	if err := CheckLimits(req.Amount, limit, usedToday); err != nil {
		return nil, err
	}

	if source.Balance < req.Amount {
		return nil, &InsufficientFundsError{Balance: source.Balance}
	}

	// Saga leg one: a pending withdrawal. The funds leave the balance now; the
	// entry is confirmed or cancelled depending on how the transfer ends.
	legKey := req.IdempotencyKey
	if legKey == "" {
		legKey = uuid.NewString()
	}
	withdrawal, err := s.ledger.Withdraw(ctx, req.SourceAccount, accountclient.TransactionRequest{
		Amount:         req.Amount,
		Branch:         "transfer",
		Pending:        true,
		IdempotencyKey: legKey + ":withdraw",
	})
	if err != nil {
		if errors.Is(err, accountclient.ErrInsufficientFunds) {
			// The gate passed but a concurrent debit won the race.
			balance, balErr := s.ledger.GetBalance(ctx, req.SourceAccount)
			if balErr != nil {
				balance = source.Balance
			}
			return nil, &InsufficientFundsError{Balance: balance}
		}
		return nil, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}

	record := &domain.TransferRecord{
		CustomerID:           customerID,
		Kind:                 kind,
		Status:               domain.StatusPending,
		SourceAccount:        req.SourceAccount,
		DestinationAccount:   req.DestinationAccount,
		SourceTransactionSeq: withdrawal.Sequence,
		SenderMemo:           req.SenderMemo,
		ReceiverMemo:         req.ReceiverMemo,
		ReceiverName:         req.ReceiverName,
		Amount:               req.Amount,
	}
	if req.IdempotencyKey != "" {
		key := req.IdempotencyKey
		record.IdempotencyKey = &key
	}
	if err := s.repo.CreateTransferRecord(ctx, record); err != nil {
		// No transfer row means nothing will ever settle the withdrawal; cancel
		// it before reporting failure.
		s.compensateWithdrawal(ctx, req.SourceAccount, withdrawal.Sequence)
		return nil, err
	}

	if kind == domain.KindExternal {
		return s.dispatchExternal(ctx, record)
	}
	return s.completeInternal(ctx, record, legKey)
}

// completeInternal runs the remaining saga legs: deposit to the destination and
// confirm the source withdrawal.
func (s *Service) completeInternal(ctx context.Context, record *domain.TransferRecord, legKey string) (*domain.TransferRecord, error) {
	_, err := s.ledger.Deposit(ctx, record.DestinationAccount, accountclient.TransactionRequest{
		Amount:         record.Amount,
		Branch:         "transfer",
		IdempotencyKey: legKey + ":deposit",
	})
	if err != nil {
		log.Printf("level=warn component=transfer msg=\"deposit failed; compensating\" customer_id=%s seq=%d destination=%s err=%v",
			record.CustomerID, record.Sequence, record.DestinationAccount, err)
		s.compensateWithdrawal(ctx, record.SourceAccount, record.SourceTransactionSeq)
		if mErr := s.markStatus(ctx, record, domain.StatusCancelled); mErr != nil {
			log.Printf("level=critical component=transfer msg=\"withdrawal cancelled but transfer record still pending\" customer_id=%s seq=%d err=%v",
				record.CustomerID, record.Sequence, mErr)
		}
		if errors.Is(err, accountclient.ErrAccountNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}

	if err := s.ledger.SettleWithdrawal(ctx, record.SourceAccount, record.SourceTransactionSeq, "confirm"); err != nil {
		// The deposit landed but the withdrawal is still pending. Do not undo
		// anything; flag for reconciliation instead.
		log.Printf("level=critical component=transfer msg=\"withdrawal confirm failed after deposit\" customer_id=%s seq=%d source=%s source_txn=%d err=%v",
			record.CustomerID, record.Sequence, record.SourceAccount, record.SourceTransactionSeq, err)
		if mErr := s.markStatus(ctx, record, domain.StatusFailed); mErr != nil {
			log.Printf("level=critical component=transfer msg=\"transfer record still pending after confirm failure\" customer_id=%s seq=%d err=%v",
				record.CustomerID, record.Sequence, mErr)
		}
		return nil, ErrInconsistentState
	}

	if err := s.markStatus(ctx, record, domain.StatusCompleted); err != nil {
		// Both ledger legs are done; only the transfer row is stale.
		log.Printf("level=critical component=transfer msg=\"transfer settled but record not finalized\" customer_id=%s seq=%d err=%v",
			record.CustomerID, record.Sequence, err)
		return nil, ErrInconsistentState
	}
	log.Printf("level=info component=transfer msg=\"internal transfer completed\" customer_id=%s seq=%d amount=%d",
		record.CustomerID, record.Sequence, record.Amount)
	return record, nil
}

// dispatchExternal hands a pending transfer to the settlement rail.
func (s *Service) dispatchExternal(ctx context.Context, record *domain.TransferRecord) (*domain.TransferRecord, error) {
	event := rabbitmq.SettlementRequestedEvent{
		CustomerID:         record.CustomerID,
		TransferSequence:   record.Sequence,
		SourceAccount:      record.SourceAccount,
		SourceTransaction:  record.SourceTransactionSeq,
		DestinationAccount: record.DestinationAccount,
		Amount:             record.Amount,
		SenderMemo:         record.SenderMemo,
		Timestamp:          time.Now().UTC(),
	}
	if err := s.events.PublishSettlementRequested(ctx, event); err != nil {
		log.Printf("level=warn component=transfer msg=\"settlement request publish failed; compensating\" customer_id=%s seq=%d err=%v",
			record.CustomerID, record.Sequence, err)
		s.compensateWithdrawal(ctx, record.SourceAccount, record.SourceTransactionSeq)
		if mErr := s.markStatus(ctx, record, domain.StatusCancelled); mErr != nil {
			log.Printf("level=critical component=transfer msg=\"withdrawal cancelled but transfer record still pending\" customer_id=%s seq=%d err=%v",
				record.CustomerID, record.Sequence, mErr)
		}
		return nil, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}

	s.publishTransferEvent(ctx, record)
	log.Printf("level=info component=transfer msg=\"external transfer accepted\" customer_id=%s seq=%d amount=%d destination=%s",
		record.CustomerID, record.Sequence, record.Amount, record.DestinationAccount)
	return record, nil
}

// compensateWithdrawal cancels a pending source withdrawal, restoring the funds.
func (s *Service) compensateWithdrawal(ctx context.Context, accountNumber string, sequence int) {
	if err := s.ledger.SettleWithdrawal(ctx, accountNumber, sequence, "cancel"); err != nil {
		log.Printf("level=critical component=transfer msg=\"withdrawal cancel failed; funds stuck pending\" account=%s seq=%d err=%v",
			accountNumber, sequence, err)
	}
}

func (s *Service) markStatus(ctx context.Context, record *domain.TransferRecord, status string) error {
	if err := s.repo.UpdateTransferStatus(ctx, record.CustomerID, record.Sequence, status); err != nil {
		log.Printf("level=error component=transfer msg=\"status update failed\" customer_id=%s seq=%d status=%s err=%v",
			record.CustomerID, record.Sequence, status, err)
		return err
	}
	record.Status = status
	s.publishTransferEvent(ctx, record)
	return nil
}

func (s *Service) publishTransferEvent(ctx context.Context, record *domain.TransferRecord) {
	if s.events == nil {
		return
	}
	event := domain.TransferRecordedEvent{
		CustomerID:         record.CustomerID,
		Sequence:           record.Sequence,
		Kind:               record.Kind,
		Status:             record.Status,
		SourceAccount:      record.SourceAccount,
		DestinationAccount: record.DestinationAccount,
		Amount:             record.Amount,
		Timestamp:          time.Now().UTC(),
	}
	if err := s.events.Publish(ctx, rabbitmq.EventsExchange, rabbitmq.RouteTransferRecorded, event); err != nil {
		log.Printf("level=warn component=transfer msg=\"transfer event publish failed\" customer_id=%s seq=%d err=%v",
			record.CustomerID, record.Sequence, err)
	}
}

// History returns the customer's transfer history, newest first.
func (s *Service) History(ctx context.Context, customerID string) ([]domain.TransferRecord, error) {
	return s.repo.ListTransfersByCustomer(ctx, customerID)
}

// GetLimit returns the customer's configured transfer limits.
func (s *Service) GetLimit(ctx context.Context, customerID string) (*domain.TransferLimit, error) {
	return s.repo.GetTransferLimit(ctx, customerID)
}

// SetLimit creates or replaces the customer's transfer limits.
func (s *Service) SetLimit(ctx context.Context, customerID string, req domain.LimitRequest) (*domain.TransferLimit, error) {
	if req.OneTimeLimit <= 0 || req.DailyLimit <= 0 || req.OneTimeLimit > req.DailyLimit {
		return nil, ErrInvalidLimit
	}
	limit := &domain.TransferLimit{
		CustomerID:   customerID,
		OneTimeLimit: req.OneTimeLimit,
		DailyLimit:   req.DailyLimit,
	}
	if err := s.repo.UpsertTransferLimit(ctx, limit); err != nil {
		return nil, err
	}
	log.Printf("level=info component=transfer msg=\"limits configured\" customer_id=%s one_time=%d daily=%d",
		customerID, limit.OneTimeLimit, limit.DailyLimit)
	return limit, nil
}

// AvailableLimit reports the one-time ceiling and today's leftover allowance.
func (s *Service) AvailableLimit(ctx context.Context, customerID string) (*domain.AvailableLimit, error) {
	limit, err := s.repo.GetTransferLimit(ctx, customerID)
	if err != nil {
		return nil, err
	}
	usedToday, err := s.repo.SumTransferAmountForDay(ctx, customerID, time.Now())
	if err != nil {
		return nil, err
	}
	return &domain.AvailableLimit{
		OneTimeLimit:   limit.OneTimeLimit,
		RemainingDaily: RemainingDaily(limit, usedToday),
	}, nil
}
