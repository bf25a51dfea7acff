/**
 * @description
 * This file provides the PostgreSQL implementation of the ledger `Repository`
 * interface. All balance mutations run inside a single database transaction with
 * the precondition expressed in SQL, so the check and the debit cannot be split
 * by a concurrent writer.
 *
 * @dependencies
 * - context, errors: Standard Go libraries.
 * - github.com/jackc/pgx/v5: The PostgreSQL driver for database operations.
 * - internal/account/domain: Contains the domain models used for data transfer.
 */

package store

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/modernbank/banking/internal/account/domain"
)

const uniqueViolationCode = "23505"

// PostgresRepository is a concrete implementation of the Repository interface for PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a new instance of PostgresRepository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// CreateAccount opens a new account with a zero balance.
func (r *PostgresRepository) CreateAccount(ctx context.Context, account *domain.Account) error {
	query := `
		INSERT INTO accounts (account_number, customer_id, display_name, balance, opened_at)
		VALUES ($1, $2, $3, 0, NOW())
		RETURNING balance, opened_at
	`
	err := r.db.QueryRow(ctx, query, account.AccountNumber, account.CustomerID, account.DisplayName).
		Scan(&account.Balance, &account.OpenedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode {
			return ErrAccountExists
		}
		return err
	}
	return nil
}

// FindAccount retrieves one account by its account number.
func (r *PostgresRepository) FindAccount(ctx context.Context, accountNumber string) (*domain.Account, error) {
	var account domain.Account
	query := `SELECT account_number, customer_id, display_name, balance, opened_at FROM accounts WHERE account_number = $1`
	err := r.db.QueryRow(ctx, query, accountNumber).Scan(
		&account.AccountNumber,
		&account.CustomerID,
		&account.DisplayName,
		&account.Balance,
		&account.OpenedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return &account, nil
}

// FindAccountsByCustomerID retrieves all accounts owned by a customer.
func (r *PostgresRepository) FindAccountsByCustomerID(ctx context.Context, customerID string) ([]domain.Account, error) {
	query := `
		SELECT account_number, customer_id, display_name, balance, opened_at
		FROM accounts
		WHERE customer_id = $1
		ORDER BY opened_at
	`
	rows, err := r.db.Query(ctx, query, customerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accounts []domain.Account
	for rows.Next() {
		var account domain.Account
		if err := rows.Scan(&account.AccountNumber, &account.CustomerID, &account.DisplayName, &account.Balance, &account.OpenedAt); err != nil {
			return nil, err
		}
		accounts = append(accounts, account)
	}
	return accounts, rows.Err()
}

// GetBalance returns the current balance of an account.
func (r *PostgresRepository) GetBalance(ctx context.Context, accountNumber string) (int64, error) {
	var balance int64
	err := r.db.QueryRow(ctx, `SELECT balance FROM accounts WHERE account_number = $1`, accountNumber).Scan(&balance)
	if err != nil {
		if err == pgx.ErrNoRows {
			return 0, ErrAccountNotFound
		}
		return 0, err
	}
	return balance, nil
}

// findByIdempotencyKey returns the result of a previously recorded transaction
// carrying the given key, if any.
func (r *PostgresRepository) findByIdempotencyKey(ctx context.Context, key string) (*domain.TransactionResult, error) {
	var result domain.TransactionResult
	query := `
		SELECT account_number, sequence, amount, resulting_balance, status
		FROM transactions
		WHERE idempotency_key = $1
	`
	err := r.db.QueryRow(ctx, query, key).Scan(
		&result.AccountNumber,
		&result.Sequence,
		&result.Amount,
		&result.ResultingBalance,
		&result.Status,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	if result.Status == domain.StatusPending || result.Status == domain.StatusCompleted {
		result.FormerBalance = result.ResultingBalance + result.Amount
	} else {
		result.FormerBalance = result.ResultingBalance
	}
	return &result, nil
}

// RecordDeposit atomically credits the account and appends a completed deposit row.
func (r *PostgresRepository) RecordDeposit(ctx context.Context, accountNumber string, amount int64, branch, idempotencyKey string) (*domain.TransactionResult, error) {
	if idempotencyKey != "" {
		if existing, err := r.findByIdempotencyKey(ctx, idempotencyKey); err != nil {
			return nil, err
		} else if existing != nil {
			return existing, nil
		}
	}
	return r.appendTransaction(ctx, accountNumber, amount, branch, idempotencyKey, domain.DirectionDeposit, domain.StatusCompleted)
}

// RecordWithdrawal atomically debits the account — the `balance >= amount`
// precondition lives in the UPDATE itself — and appends the withdrawal row,
// pending or completed.
func (r *PostgresRepository) RecordWithdrawal(ctx context.Context, accountNumber string, amount int64, branch string, pending bool, idempotencyKey string) (*domain.TransactionResult, error) {
	if idempotencyKey != "" {
		if existing, err := r.findByIdempotencyKey(ctx, idempotencyKey); err != nil {
			return nil, err
		} else if existing != nil {
			return existing, nil
		}
	}
	status := domain.StatusCompleted
	if pending {
		status = domain.StatusPending
	}
	return r.appendTransaction(ctx, accountNumber, amount, branch, idempotencyKey, domain.DirectionWithdrawal, status)
}

func (r *PostgresRepository) appendTransaction(ctx context.Context, accountNumber string, amount int64, branch, idempotencyKey, direction, status string) (*domain.TransactionResult, error) {
	if branch == "" {
		branch = domain.DefaultBranch
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	var newBalance int64
	if direction == domain.DirectionDeposit {
		err = tx.QueryRow(ctx,
			`UPDATE accounts SET balance = balance + $2 WHERE account_number = $1 RETURNING balance`,
			accountNumber, amount,
		).Scan(&newBalance)
	} else {
		err = tx.QueryRow(ctx,
			`UPDATE accounts SET balance = balance - $2 WHERE account_number = $1 AND balance >= $2 RETURNING balance`,
			accountNumber, amount,
		).Scan(&newBalance)
	}
	if err != nil {
		if err == pgx.ErrNoRows {
			if direction == domain.DirectionWithdrawal {
				// Distinguish a missing account from an insufficient balance.
				var exists bool
				if checkErr := r.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM accounts WHERE account_number = $1)`, accountNumber).Scan(&exists); checkErr != nil {
					return nil, checkErr
				}
				if exists {
					return nil, ErrInsufficientFunds
				}
			}
			return nil, ErrAccountNotFound
		}
		return nil, err
	}

	var sequence int
	err = tx.QueryRow(ctx, `
		INSERT INTO transactions (account_number, sequence, direction, status, amount, resulting_balance, branch, idempotency_key, created_at)
		SELECT $1, COALESCE(MAX(sequence), 0) + 1, $2, $3, $4, $5, $6, NULLIF($7, ''), NOW()
		FROM transactions WHERE account_number = $1
		RETURNING sequence
	`, accountNumber, direction, status, amount, newBalance, branch, idempotencyKey).Scan(&sequence)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode && idempotencyKey != "" {
			// Lost an idempotency race; surface the winner's result.
			if existing, lookupErr := r.findByIdempotencyKey(ctx, idempotencyKey); lookupErr == nil && existing != nil {
				return existing, nil
			}
		}
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	former := newBalance - amount
	if direction == domain.DirectionWithdrawal {
		former = newBalance + amount
	}
	return &domain.TransactionResult{
		AccountNumber:    accountNumber,
		Sequence:         sequence,
		FormerBalance:    former,
		Amount:           amount,
		ResultingBalance: newBalance,
		Status:           status,
	}, nil
}

// SettleWithdrawal flips a pending withdrawal to completed or failed. Cancelling
// restores the debited amount in the same database transaction.
func (r *PostgresRepository) SettleWithdrawal(ctx context.Context, accountNumber string, sequence int, decision string) (*domain.Transaction, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	var txn domain.Transaction
	err = tx.QueryRow(ctx, `
		SELECT account_number, sequence, direction, status, amount, resulting_balance, branch, idempotency_key, created_at
		FROM transactions
		WHERE account_number = $1 AND sequence = $2
		FOR UPDATE
	`, accountNumber, sequence).Scan(
		&txn.AccountNumber, &txn.Sequence, &txn.Direction, &txn.Status,
		&txn.Amount, &txn.ResultingBalance, &txn.Branch, &txn.IdempotencyKey, &txn.CreatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrTransactionNotFound
		}
		return nil, err
	}
	if txn.Direction != domain.DirectionWithdrawal || txn.Status != domain.StatusPending {
		return nil, ErrAlreadySettled
	}

	newStatus := domain.StatusCompleted
	if decision == domain.DecisionCancel {
		newStatus = domain.StatusFailed
	}

	if _, err := tx.Exec(ctx,
		`UPDATE transactions SET status = $3 WHERE account_number = $1 AND sequence = $2`,
		accountNumber, sequence, newStatus,
	); err != nil {
		return nil, err
	}

	if decision == domain.DecisionCancel {
		if _, err := tx.Exec(ctx,
			`UPDATE accounts SET balance = balance + $2 WHERE account_number = $1`,
			accountNumber, txn.Amount,
		); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	txn.Status = newStatus
	return &txn, nil
}

// ListTransactions returns the account's ledger entries, newest first.
func (r *PostgresRepository) ListTransactions(ctx context.Context, accountNumber string) ([]domain.Transaction, error) {
	query := `
		SELECT account_number, sequence, direction, status, amount, resulting_balance, branch, idempotency_key, created_at
		FROM transactions
		WHERE account_number = $1
		ORDER BY sequence DESC
	`
	rows, err := r.db.Query(ctx, query, accountNumber)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var transactions []domain.Transaction
	for rows.Next() {
		var txn domain.Transaction
		if err := rows.Scan(
			&txn.AccountNumber, &txn.Sequence, &txn.Direction, &txn.Status,
			&txn.Amount, &txn.ResultingBalance, &txn.Branch, &txn.IdempotencyKey, &txn.CreatedAt,
		); err != nil {
			return nil, err
		}
		transactions = append(transactions, txn)
	}
	return transactions, rows.Err()
}
