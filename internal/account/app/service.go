/**
 * @description
 * This file contains the core business logic for the account-service. The `Service`
 * struct validates ledger requests, delegates the atomic balance arithmetic to the
 * repository, and publishes CQRS read-model events after every mutation.
 *
 * Key features:
 * - Deposits and withdrawals are appended as immutable ledger entries; the
 *   repository enforces the balance precondition atomically.
 * - Withdrawals backing external transfers are recorded pending and later flipped
 *   to completed or failed by the settlement endpoint.
 * - Account creation verifies the owner against the customer service first and
 *   defaults the display name to the owner's registered name.
 *
 * @dependencies
 * - context, errors, fmt, log, time: Standard Go libraries.
 * - internal/account/domain, internal/account/store: Domain models and data access.
 * - pkg/rabbitmq: Event publishing.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/modernbank/banking/internal/account/domain"
	"github.com/modernbank/banking/internal/account/store"
	"github.com/modernbank/banking/pkg/customerclient"
	"github.com/modernbank/banking/pkg/rabbitmq"
)

var (
	ErrInvalidAmount    = errors.New("transaction amount must be positive")
	ErrInvalidDecision  = errors.New("settlement decision must be confirm or cancel")
	ErrMissingField     = errors.New("account number and customer id are required")
	ErrCustomerNotFound = errors.New("customer does not exist")
)

// CustomerDirectory is the narrow view of the customer service the ledger needs.
type CustomerDirectory interface {
	Exists(ctx context.Context, customerID string) (bool, error)
	GetCustomer(ctx context.Context, customerID string) (*customerclient.Customer, error)
}

// Service provides the core business logic for the ledger.
type Service struct {
	repo      store.Repository
	customers CustomerDirectory
	events    rabbitmq.Publisher
}

// NewService creates a new account service instance.
func NewService(repo store.Repository, customers CustomerDirectory, events rabbitmq.Publisher) *Service {
	return &Service{repo: repo, customers: customers, events: events}
}

// CreateAccount opens a new account after verifying the owner exists.
func (s *Service) CreateAccount(ctx context.Context, req domain.CreateAccountRequest) (*domain.Account, error) {
	if req.AccountNumber == "" || req.CustomerID == "" {
		return nil, ErrMissingField
	}

	if s.customers != nil {
		exists, err := s.customers.Exists(ctx, req.CustomerID)
		if err != nil {
			return nil, fmt.Errorf("failed to verify customer %s: %w", req.CustomerID, err)
		}
		if !exists {
			return nil, ErrCustomerNotFound
		}
		if req.DisplayName == "" {
			customer, err := s.customers.GetCustomer(ctx, req.CustomerID)
			if err != nil {
				log.Printf("level=warn component=ledger msg=\"display name lookup failed\" customer_id=%s err=%v", req.CustomerID, err)
			} else {
				req.DisplayName = customer.Name
			}
		}
	}

	account := &domain.Account{
		AccountNumber: req.AccountNumber,
		CustomerID:    req.CustomerID,
		DisplayName:   req.DisplayName,
	}
	if err := s.repo.CreateAccount(ctx, account); err != nil {
		return nil, err
	}

	log.Printf("level=info component=ledger msg=\"account opened\" account=%s customer_id=%s", account.AccountNumber, account.CustomerID)
	return account, nil
}

// GetAccount retrieves one account.
func (s *Service) GetAccount(ctx context.Context, accountNumber string) (*domain.Account, error) {
	return s.repo.FindAccount(ctx, accountNumber)
}

// ListAccounts retrieves all accounts owned by a customer.
func (s *Service) ListAccounts(ctx context.Context, customerID string) ([]domain.Account, error) {
	return s.repo.FindAccountsByCustomerID(ctx, customerID)
}

// GetBalance returns the current balance of an account.
func (s *Service) GetBalance(ctx context.Context, accountNumber string) (int64, error) {
	return s.repo.GetBalance(ctx, accountNumber)
}

// ListTransactions returns the account's ledger entries, newest first.
func (s *Service) ListTransactions(ctx context.Context, accountNumber string) ([]domain.Transaction, error) {
	return s.repo.ListTransactions(ctx, accountNumber)
}

// Deposit credits the account and appends a completed deposit entry.
func (s *Service) Deposit(ctx context.Context, accountNumber string, req domain.TransactionRequest) (*domain.TransactionResult, error) {
	if req.Amount <= 0 {
		return nil, ErrInvalidAmount
	}

	result, err := s.repo.RecordDeposit(ctx, accountNumber, req.Amount, req.Branch, req.IdempotencyKey)
	if err != nil {
		return nil, err
	}

	s.publishLedgerEvents(ctx, accountNumber, domain.DirectionDeposit, result)
	return result, nil
}

// Withdraw debits the account and appends a withdrawal entry. When req.Pending is
// set the entry is recorded pending and awaits a settlement decision; the funds
// leave the balance immediately either way.
func (s *Service) Withdraw(ctx context.Context, accountNumber string, req domain.TransactionRequest) (*domain.TransactionResult, error) {
	if req.Amount <= 0 {
		return nil, ErrInvalidAmount
	}

	result, err := s.repo.RecordWithdrawal(ctx, accountNumber, req.Amount, req.Branch, req.Pending, req.IdempotencyKey)
	if err != nil {
		return nil, err
	}

	s.publishLedgerEvents(ctx, accountNumber, domain.DirectionWithdrawal, result)
	return result, nil
}

// SettleWithdrawal transitions a pending withdrawal to its terminal status.
// Confirm leaves the balance untouched; cancel restores the debited amount.
func (s *Service) SettleWithdrawal(ctx context.Context, accountNumber string, sequence int, decision string) (*domain.Transaction, error) {
	if decision != domain.DecisionConfirm && decision != domain.DecisionCancel {
		return nil, ErrInvalidDecision
	}

	txn, err := s.repo.SettleWithdrawal(ctx, accountNumber, sequence, decision)
	if err != nil {
		return nil, err
	}

	balance, balErr := s.repo.GetBalance(ctx, accountNumber)
	if balErr != nil {
		log.Printf("level=warn component=ledger msg=\"balance read after settlement failed\" account=%s err=%v", accountNumber, balErr)
		balance = txn.ResultingBalance
	}

	if s.events != nil {
		event := domain.TransactionRecordedEvent{
			AccountNumber:    txn.AccountNumber,
			Sequence:         txn.Sequence,
			Direction:        txn.Direction,
			Status:           txn.Status,
			Amount:           txn.Amount,
			ResultingBalance: balance,
			Timestamp:        time.Now().UTC(),
		}
		if err := s.events.Publish(ctx, rabbitmq.EventsExchange, rabbitmq.RouteTransactionRecorded, event); err != nil {
			log.Printf("level=warn component=ledger msg=\"transaction event publish failed\" account=%s seq=%d err=%v", accountNumber, sequence, err)
		}
		s.publishBalanceEvent(ctx, accountNumber, balance)
	}

	log.Printf("level=info component=ledger msg=\"withdrawal settled\" account=%s seq=%d decision=%s status=%s", accountNumber, sequence, decision, txn.Status)
	return txn, nil
}

func (s *Service) publishLedgerEvents(ctx context.Context, accountNumber, direction string, result *domain.TransactionResult) {
	if s.events == nil {
		return
	}

	event := domain.TransactionRecordedEvent{
		AccountNumber:    result.AccountNumber,
		Sequence:         result.Sequence,
		Direction:        direction,
		Status:           result.Status,
		Amount:           result.Amount,
		ResultingBalance: result.ResultingBalance,
		Timestamp:        time.Now().UTC(),
	}
	if err := s.events.Publish(ctx, rabbitmq.EventsExchange, rabbitmq.RouteTransactionRecorded, event); err != nil {
		log.Printf("level=warn component=ledger msg=\"transaction event publish failed\" account=%s seq=%d err=%v", accountNumber, result.Sequence, err)
	}
	s.publishBalanceEvent(ctx, accountNumber, result.ResultingBalance)
}

func (s *Service) publishBalanceEvent(ctx context.Context, accountNumber string, balance int64) {
	event := domain.AccountBalanceEvent{
		AccountNumber: accountNumber,
		Balance:       balance,
		Timestamp:     time.Now().UTC(),
	}
	if err := s.events.Publish(ctx, rabbitmq.EventsExchange, rabbitmq.RouteAccountBalance, event); err != nil {
		log.Printf("level=warn component=ledger msg=\"balance event publish failed\" account=%s err=%v", accountNumber, err)
	}
}
