package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/modernbank/banking/internal/account/domain"
	"github.com/modernbank/banking/internal/account/store"
	"github.com/modernbank/banking/pkg/customerclient"
	"github.com/modernbank/banking/pkg/rabbitmq"
)

// ledgerRepoFake is an in-memory Repository that mirrors the atomicity
// contract: the balance precondition and the balance delta are applied
// together, and idempotency keys dedupe replays.
type ledgerRepoFake struct {
	accounts map[string]*domain.Account
	txns     map[string][]*domain.Transaction
}

func newLedgerRepoFake() *ledgerRepoFake {
	return &ledgerRepoFake{
		accounts: make(map[string]*domain.Account),
		txns:     make(map[string][]*domain.Transaction),
	}
}

func (r *ledgerRepoFake) CreateAccount(ctx context.Context, account *domain.Account) error {
	if _, ok := r.accounts[account.AccountNumber]; ok {
		return store.ErrAccountExists
	}
	account.Balance = 0
	account.OpenedAt = time.Now()
	copied := *account
	r.accounts[account.AccountNumber] = &copied
	return nil
}

func (r *ledgerRepoFake) FindAccount(ctx context.Context, accountNumber string) (*domain.Account, error) {
	account, ok := r.accounts[accountNumber]
	if !ok {
		return nil, store.ErrAccountNotFound
	}
	copied := *account
	return &copied, nil
}

func (r *ledgerRepoFake) FindAccountsByCustomerID(ctx context.Context, customerID string) ([]domain.Account, error) {
	var out []domain.Account
	for _, account := range r.accounts {
		if account.CustomerID == customerID {
			out = append(out, *account)
		}
	}
	return out, nil
}

func (r *ledgerRepoFake) GetBalance(ctx context.Context, accountNumber string) (int64, error) {
	account, ok := r.accounts[accountNumber]
	if !ok {
		return 0, store.ErrAccountNotFound
	}
	return account.Balance, nil
}

func (r *ledgerRepoFake) findByIdempotencyKey(key string) *domain.Transaction {
	for _, entries := range r.txns {
		for _, txn := range entries {
			if txn.IdempotencyKey != nil && *txn.IdempotencyKey == key {
				return txn
			}
		}
	}
	return nil
}

func (r *ledgerRepoFake) RecordDeposit(ctx context.Context, accountNumber string, amount int64, branch, idempotencyKey string) (*domain.TransactionResult, error) {
	return r.append(accountNumber, amount, branch, idempotencyKey, domain.DirectionDeposit, domain.StatusCompleted)
}

func (r *ledgerRepoFake) RecordWithdrawal(ctx context.Context, accountNumber string, amount int64, branch string, pending bool, idempotencyKey string) (*domain.TransactionResult, error) {
	status := domain.StatusCompleted
	if pending {
		status = domain.StatusPending
	}
	return r.append(accountNumber, amount, branch, idempotencyKey, domain.DirectionWithdrawal, status)
}

func (r *ledgerRepoFake) append(accountNumber string, amount int64, branch, idempotencyKey, direction, status string) (*domain.TransactionResult, error) {
	if idempotencyKey != "" {
		if existing := r.findByIdempotencyKey(idempotencyKey); existing != nil {
			return &domain.TransactionResult{
				AccountNumber:    existing.AccountNumber,
				Sequence:         existing.Sequence,
				Amount:           existing.Amount,
				ResultingBalance: existing.ResultingBalance,
				Status:           existing.Status,
			}, nil
		}
	}

	account, ok := r.accounts[accountNumber]
	if !ok {
		return nil, store.ErrAccountNotFound
	}

	former := account.Balance
	if direction == domain.DirectionWithdrawal {
		if account.Balance < amount {
			return nil, store.ErrInsufficientFunds
		}
		account.Balance -= amount
	} else {
		account.Balance += amount
	}

	if branch == "" {
		branch = domain.DefaultBranch
	}
	txn := &domain.Transaction{
		AccountNumber:    accountNumber,
		Sequence:         len(r.txns[accountNumber]) + 1,
		Direction:        direction,
		Status:           status,
		Amount:           amount,
		ResultingBalance: account.Balance,
		Branch:           branch,
		CreatedAt:        time.Now(),
	}
	if idempotencyKey != "" {
		key := idempotencyKey
		txn.IdempotencyKey = &key
	}
	r.txns[accountNumber] = append(r.txns[accountNumber], txn)

	return &domain.TransactionResult{
		AccountNumber:    accountNumber,
		Sequence:         txn.Sequence,
		FormerBalance:    former,
		Amount:           amount,
		ResultingBalance: account.Balance,
		Status:           status,
	}, nil
}

func (r *ledgerRepoFake) SettleWithdrawal(ctx context.Context, accountNumber string, sequence int, decision string) (*domain.Transaction, error) {
	for _, txn := range r.txns[accountNumber] {
		if txn.Sequence != sequence {
			continue
		}
		if txn.Direction != domain.DirectionWithdrawal || txn.Status != domain.StatusPending {
			return nil, store.ErrAlreadySettled
		}
		if decision == domain.DecisionCancel {
			txn.Status = domain.StatusFailed
			r.accounts[accountNumber].Balance += txn.Amount
		} else {
			txn.Status = domain.StatusCompleted
		}
		copied := *txn
		return &copied, nil
	}
	return nil, store.ErrTransactionNotFound
}

func (r *ledgerRepoFake) ListTransactions(ctx context.Context, accountNumber string) ([]domain.Transaction, error) {
	entries := r.txns[accountNumber]
	out := make([]domain.Transaction, 0, len(entries))
	for i := len(entries) - 1; i >= 0; i-- {
		out = append(out, *entries[i])
	}
	return out, nil
}

type customerDirectoryStub struct {
	known map[string]string // customer id -> registered name
}

func (d *customerDirectoryStub) Exists(ctx context.Context, customerID string) (bool, error) {
	_, ok := d.known[customerID]
	return ok, nil
}

func (d *customerDirectoryStub) GetCustomer(ctx context.Context, customerID string) (*customerclient.Customer, error) {
	name, ok := d.known[customerID]
	if !ok {
		return nil, errors.New("customer not found")
	}
	return &customerclient.Customer{CustomerID: customerID, Name: name}, nil
}

type eventsStub struct {
	routingKeys []string
}

func (p *eventsStub) Publish(ctx context.Context, exchange, routingKey string, body interface{}) error {
	p.routingKeys = append(p.routingKeys, routingKey)
	return nil
}

func (p *eventsStub) PublishSettlementRequested(ctx context.Context, event rabbitmq.SettlementRequestedEvent) error {
	return nil
}

func (p *eventsStub) PublishSettlementResult(ctx context.Context, event rabbitmq.SettlementResultEvent) error {
	return nil
}

func (p *eventsStub) Close() {}

func newTestLedger(t *testing.T) (*Service, *ledgerRepoFake) {
	t.Helper()
	repo := newLedgerRepoFake()
	directory := &customerDirectoryStub{known: map[string]string{"cust-1": "Jamie Doe"}}
	service := NewService(repo, directory, &eventsStub{})
	if _, err := service.CreateAccount(context.Background(), domain.CreateAccountRequest{
		AccountNumber: "111-222",
		CustomerID:    "cust-1",
		DisplayName:   "Everyday",
	}); err != nil {
		t.Fatalf("account setup failed: %v", err)
	}
	return service, repo
}

func TestCreateAccount_RejectsUnknownCustomer(t *testing.T) {
	repo := newLedgerRepoFake()
	directory := &customerDirectoryStub{known: map[string]string{}}
	service := NewService(repo, directory, &eventsStub{})

	_, err := service.CreateAccount(context.Background(), domain.CreateAccountRequest{
		AccountNumber: "111-222",
		CustomerID:    "cust-ghost",
	})
	if !errors.Is(err, ErrCustomerNotFound) {
		t.Fatalf("expected ErrCustomerNotFound, got %v", err)
	}
}

func TestCreateAccount_DefaultsDisplayNameToCustomerName(t *testing.T) {
	repo := newLedgerRepoFake()
	directory := &customerDirectoryStub{known: map[string]string{"cust-1": "Jamie Doe"}}
	service := NewService(repo, directory, &eventsStub{})

	account, err := service.CreateAccount(context.Background(), domain.CreateAccountRequest{
		AccountNumber: "111-222",
		CustomerID:    "cust-1",
	})
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if account.DisplayName != "Jamie Doe" {
		t.Fatalf("expected display name from customer record, got %q", account.DisplayName)
	}

	// An explicit display name wins over the registered name.
	named, err := service.CreateAccount(context.Background(), domain.CreateAccountRequest{
		AccountNumber: "333-444",
		CustomerID:    "cust-1",
		DisplayName:   "Savings",
	})
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if named.DisplayName != "Savings" {
		t.Fatalf("expected explicit display name kept, got %q", named.DisplayName)
	}
}

func TestDepositAndWithdraw_BalanceIsSignedSum(t *testing.T) {
	service, _ := newTestLedger(t)
	ctx := context.Background()

	steps := []struct {
		direction string
		amount    int64
	}{
		{domain.DirectionDeposit, 10_000},
		{domain.DirectionWithdrawal, 2_500},
		{domain.DirectionDeposit, 300},
		{domain.DirectionWithdrawal, 7_000},
	}

	var expected int64
	for _, step := range steps {
		var err error
		if step.direction == domain.DirectionDeposit {
			_, err = service.Deposit(ctx, "111-222", domain.TransactionRequest{Amount: step.amount})
			expected += step.amount
		} else {
			_, err = service.Withdraw(ctx, "111-222", domain.TransactionRequest{Amount: step.amount})
			expected -= step.amount
		}
		if err != nil {
			t.Fatalf("step %+v failed: %v", step, err)
		}
	}

	balance, err := service.GetBalance(ctx, "111-222")
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if balance != expected {
		t.Fatalf("expected balance %d, got %d", expected, balance)
	}

	transactions, err := service.ListTransactions(ctx, "111-222")
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if len(transactions) != len(steps) {
		t.Fatalf("expected %d entries, got %d", len(steps), len(transactions))
	}
	// Newest first; the top entry carries the final balance.
	if transactions[0].ResultingBalance != expected {
		t.Fatalf("expected newest entry balance %d, got %d", expected, transactions[0].ResultingBalance)
	}
}

func TestDeposit_RejectsNonPositiveAmount(t *testing.T) {
	service, _ := newTestLedger(t)

	if _, err := service.Deposit(context.Background(), "111-222", domain.TransactionRequest{Amount: 0}); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
	if _, err := service.Withdraw(context.Background(), "111-222", domain.TransactionRequest{Amount: -5}); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
}

func TestWithdraw_InsufficientFundsLeavesBalanceUntouched(t *testing.T) {
	service, _ := newTestLedger(t)
	ctx := context.Background()

	if _, err := service.Deposit(ctx, "111-222", domain.TransactionRequest{Amount: 1_000}); err != nil {
		t.Fatalf("deposit failed: %v", err)
	}

	_, err := service.Withdraw(ctx, "111-222", domain.TransactionRequest{Amount: 1_001})
	if !errors.Is(err, store.ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}

	balance, _ := service.GetBalance(ctx, "111-222")
	if balance != 1_000 {
		t.Fatalf("expected balance 1000, got %d", balance)
	}
	transactions, _ := service.ListTransactions(ctx, "111-222")
	if len(transactions) != 1 {
		t.Fatalf("expected only the deposit entry, got %d", len(transactions))
	}
}

func TestSettleWithdrawal_CancelRestoresBalance(t *testing.T) {
	service, _ := newTestLedger(t)
	ctx := context.Background()

	if _, err := service.Deposit(ctx, "111-222", domain.TransactionRequest{Amount: 5_000}); err != nil {
		t.Fatalf("deposit failed: %v", err)
	}
	result, err := service.Withdraw(ctx, "111-222", domain.TransactionRequest{Amount: 2_000, Pending: true})
	if err != nil {
		t.Fatalf("pending withdrawal failed: %v", err)
	}
	if result.Status != domain.StatusPending {
		t.Fatalf("expected pending, got %q", result.Status)
	}
	if balance, _ := service.GetBalance(ctx, "111-222"); balance != 3_000 {
		t.Fatalf("expected funds held immediately, balance %d", balance)
	}

	txn, err := service.SettleWithdrawal(ctx, "111-222", result.Sequence, domain.DecisionCancel)
	if err != nil {
		t.Fatalf("cancel failed: %v", err)
	}
	if txn.Status != domain.StatusFailed {
		t.Fatalf("expected failed, got %q", txn.Status)
	}
	if balance, _ := service.GetBalance(ctx, "111-222"); balance != 5_000 {
		t.Fatalf("expected balance restored to 5000, got %d", balance)
	}
}

func TestSettleWithdrawal_ConfirmKeepsBalanceAndIsTerminal(t *testing.T) {
	service, _ := newTestLedger(t)
	ctx := context.Background()

	if _, err := service.Deposit(ctx, "111-222", domain.TransactionRequest{Amount: 5_000}); err != nil {
		t.Fatalf("deposit failed: %v", err)
	}
	result, err := service.Withdraw(ctx, "111-222", domain.TransactionRequest{Amount: 2_000, Pending: true})
	if err != nil {
		t.Fatalf("pending withdrawal failed: %v", err)
	}

	txn, err := service.SettleWithdrawal(ctx, "111-222", result.Sequence, domain.DecisionConfirm)
	if err != nil {
		t.Fatalf("confirm failed: %v", err)
	}
	if txn.Status != domain.StatusCompleted {
		t.Fatalf("expected completed, got %q", txn.Status)
	}
	if balance, _ := service.GetBalance(ctx, "111-222"); balance != 3_000 {
		t.Fatalf("expected balance to stay at 3000, got %d", balance)
	}

	// Terminal entries are immutable.
	if _, err := service.SettleWithdrawal(ctx, "111-222", result.Sequence, domain.DecisionCancel); !errors.Is(err, store.ErrAlreadySettled) {
		t.Fatalf("expected ErrAlreadySettled, got %v", err)
	}
	if balance, _ := service.GetBalance(ctx, "111-222"); balance != 3_000 {
		t.Fatalf("expected no refund after terminal settle attempt, got %d", balance)
	}
}

func TestDeposit_IdempotencyKeyDedupes(t *testing.T) {
	service, _ := newTestLedger(t)
	ctx := context.Background()

	first, err := service.Deposit(ctx, "111-222", domain.TransactionRequest{Amount: 1_500, IdempotencyKey: "dep-1"})
	if err != nil {
		t.Fatalf("deposit failed: %v", err)
	}
	second, err := service.Deposit(ctx, "111-222", domain.TransactionRequest{Amount: 1_500, IdempotencyKey: "dep-1"})
	if err != nil {
		t.Fatalf("replay failed: %v", err)
	}
	if second.Sequence != first.Sequence {
		t.Fatalf("expected same sequence, got %d and %d", first.Sequence, second.Sequence)
	}
	if balance, _ := service.GetBalance(ctx, "111-222"); balance != 1_500 {
		t.Fatalf("expected money recorded once, balance %d", balance)
	}
}

func TestSettleWithdrawal_RejectsUnknownDecision(t *testing.T) {
	service, _ := newTestLedger(t)

	if _, err := service.SettleWithdrawal(context.Background(), "111-222", 1, "maybe"); !errors.Is(err, ErrInvalidDecision) {
		t.Fatalf("expected ErrInvalidDecision, got %v", err)
	}
}
