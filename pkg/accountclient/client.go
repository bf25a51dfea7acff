/**
 * @description
 * This package provides a client for communicating with the account-service, the
 * system of record for balances and transactions. The transfer-service performs
 * its balance gate, withdrawals, deposits, and settlement confirmations through
 * this client; the recorder's resulting balance is always authoritative.
 */
package accountclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

var (
	// ErrAccountNotFound is returned when the ledger does not know the account.
	ErrAccountNotFound = errors.New("account not found")
	// ErrInsufficientFunds is returned when the ledger rejects a debit because the
	// balance precondition failed.
	ErrInsufficientFunds = errors.New("insufficient funds")
	// ErrAlreadySettled is returned when a settlement decision targets a
	// withdrawal that is no longer pending.
	ErrAlreadySettled = errors.New("withdrawal already settled")
)

// Client is a client for the account service.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a new account service client.
func NewClient(baseURL string, apiKey string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		apiKey:     strings.TrimSpace(apiKey),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Account mirrors the ledger's account representation.
type Account struct {
	AccountNumber string `json:"account_number"`
	CustomerID    string `json:"customer_id"`
	DisplayName   string `json:"display_name"`
	Balance       int64  `json:"balance"`
}

// TransactionRequest is the payload for deposit and withdrawal calls.
type TransactionRequest struct {
	Amount         int64  `json:"amount"`
	Branch         string `json:"branch,omitempty"`
	Pending        bool   `json:"pending,omitempty"`
	IdempotencyKey string `json:"idempotency_key,omitempty"`
}

// TransactionResult is the ledger's answer to a deposit or withdrawal.
type TransactionResult struct {
	AccountNumber    string `json:"account_number"`
	Sequence         int    `json:"sequence"`
	FormerBalance    int64  `json:"former_balance"`
	Amount           int64  `json:"amount"`
	ResultingBalance int64  `json:"resulting_balance"`
	Status           string `json:"status"`
}

// GetAccount retrieves one account from the ledger.
func (c *Client) GetAccount(ctx context.Context, accountNumber string) (*Account, error) {
	var account Account
	if err := c.get(ctx, fmt.Sprintf("/accounts/%s", accountNumber), &account); err != nil {
		return nil, err
	}
	return &account, nil
}

// GetBalance retrieves the current balance of an account.
func (c *Client) GetBalance(ctx context.Context, accountNumber string) (int64, error) {
	var body struct {
		Balance int64 `json:"balance"`
	}
	if err := c.get(ctx, fmt.Sprintf("/accounts/%s/balance", accountNumber), &body); err != nil {
		return 0, err
	}
	return body.Balance, nil
}

// Deposit records a deposit against the account.
func (c *Client) Deposit(ctx context.Context, accountNumber string, req TransactionRequest) (*TransactionResult, error) {
	var result TransactionResult
	if err := c.post(ctx, fmt.Sprintf("/accounts/%s/deposits", accountNumber), req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Withdraw records a withdrawal against the account. With req.Pending set the
// ledger keeps the entry pending until SettleWithdrawal decides its fate.
func (c *Client) Withdraw(ctx context.Context, accountNumber string, req TransactionRequest) (*TransactionResult, error) {
	var result TransactionResult
	if err := c.post(ctx, fmt.Sprintf("/accounts/%s/withdrawals", accountNumber), req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// SettleWithdrawal confirms or cancels a pending withdrawal.
func (c *Client) SettleWithdrawal(ctx context.Context, accountNumber string, sequence int, decision string) error {
	payload := map[string]string{"decision": decision}
	return c.post(ctx, fmt.Sprintf("/accounts/%s/withdrawals/%d/settlement", accountNumber, sequence), payload, nil)
}

func (c *Client) get(ctx context.Context, path string, out interface{}) error {
	return c.do(ctx, http.MethodGet, path, nil, out)
}

func (c *Client) post(ctx context.Context, path string, payload, out interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}
	return c.do(ctx, http.MethodPost, path, body, out)
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, out interface{}) error {
	if c.baseURL == "" {
		return fmt.Errorf("account service base url is empty")
	}

	var reader *bytes.Buffer
	if body != nil {
		reader = bytes.NewBuffer(body)
	} else {
		reader = bytes.NewBuffer(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-Internal-API-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request to account service: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrAccountNotFound
	case resp.StatusCode == http.StatusPaymentRequired:
		return ErrInsufficientFunds
	case resp.StatusCode == http.StatusConflict:
		return ErrAlreadySettled
	case resp.StatusCode >= 400:
		return fmt.Errorf("account service returned error status %d", resp.StatusCode)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}
