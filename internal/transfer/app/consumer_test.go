package app

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/modernbank/banking/internal/transfer/domain"
	"github.com/modernbank/banking/pkg/rabbitmq"
)

func submitPendingExternal(t *testing.T, service *Service) *domain.TransferRecord {
	t.Helper()
	record, err := service.SubmitExternal(context.Background(), "cust-1", domain.TransferRequest{
		SourceAccount:      "111-222",
		DestinationAccount: "9876-5432-10",
		Amount:             4_000,
	})
	if err != nil {
		t.Fatalf("expected pending external transfer, got %v", err)
	}
	return record
}

func marshalResult(t *testing.T, event rabbitmq.SettlementResultEvent) []byte {
	t.Helper()
	body, err := json.Marshal(event)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	return body
}

func TestHandleMessage_ConfirmCompletesTransfer(t *testing.T) {
	repo := newTransferRepoFake()
	ledger := newLedgerFake()
	ledger.addAccount("111-222", "cust-1", 10_000)
	configureLimits(repo, "cust-1", 50_000, 100_000)

	service, _ := newTestService(repo, ledger)
	record := submitPendingExternal(t, service)

	consumer := service.SettlementResultConsumer()
	ack := consumer.HandleMessage(marshalResult(t, rabbitmq.SettlementResultEvent{
		CustomerID:        "cust-1",
		TransferSequence:  record.Sequence,
		SourceAccount:     record.SourceAccount,
		SourceTransaction: record.SourceTransactionSeq,
		Decision:          "confirm",
		Timestamp:         time.Now().UTC(),
	}))
	if !ack {
		t.Fatal("expected message to be acknowledged")
	}

	updated, err := repo.FindTransfer(context.Background(), "cust-1", record.Sequence)
	if err != nil {
		t.Fatalf("expected transfer to exist, got %v", err)
	}
	if updated.Status != domain.StatusCompleted {
		t.Fatalf("expected completed, got %q", updated.Status)
	}
	if got := ledger.accounts["111-222"].Balance; got != 6_000 {
		t.Fatalf("expected debit to stand at 6000, got %d", got)
	}
	if len(ledger.pending) != 0 {
		t.Fatalf("expected pending withdrawal settled, got %d left", len(ledger.pending))
	}
}

func TestHandleMessage_CancelRestoresFunds(t *testing.T) {
	repo := newTransferRepoFake()
	ledger := newLedgerFake()
	ledger.addAccount("111-222", "cust-1", 10_000)
	configureLimits(repo, "cust-1", 50_000, 100_000)

	service, _ := newTestService(repo, ledger)
	record := submitPendingExternal(t, service)

	consumer := service.SettlementResultConsumer()
	ack := consumer.HandleMessage(marshalResult(t, rabbitmq.SettlementResultEvent{
		CustomerID:        "cust-1",
		TransferSequence:  record.Sequence,
		SourceAccount:     record.SourceAccount,
		SourceTransaction: record.SourceTransactionSeq,
		Decision:          "cancel",
		Reason:            "destination account number is malformed",
		Timestamp:         time.Now().UTC(),
	}))
	if !ack {
		t.Fatal("expected message to be acknowledged")
	}

	updated, err := repo.FindTransfer(context.Background(), "cust-1", record.Sequence)
	if err != nil {
		t.Fatalf("expected transfer to exist, got %v", err)
	}
	if updated.Status != domain.StatusCancelled {
		t.Fatalf("expected cancelled, got %q", updated.Status)
	}
	if got := ledger.accounts["111-222"].Balance; got != 10_000 {
		t.Fatalf("expected balance restored to 10000, got %d", got)
	}
}

func TestHandleMessage_IgnoresReplayForSettledTransfer(t *testing.T) {
	repo := newTransferRepoFake()
	ledger := newLedgerFake()
	ledger.addAccount("111-222", "cust-1", 10_000)
	configureLimits(repo, "cust-1", 50_000, 100_000)

	service, _ := newTestService(repo, ledger)
	record := submitPendingExternal(t, service)

	consumer := service.SettlementResultConsumer()
	confirm := marshalResult(t, rabbitmq.SettlementResultEvent{
		CustomerID:        "cust-1",
		TransferSequence:  record.Sequence,
		SourceAccount:     record.SourceAccount,
		SourceTransaction: record.SourceTransactionSeq,
		Decision:          "confirm",
		Timestamp:         time.Now().UTC(),
	})
	if !consumer.HandleMessage(confirm) {
		t.Fatal("expected first delivery to be acknowledged")
	}
	settleCallsAfterFirst := len(ledger.settleCalls)

	// A cancel replay after completion must not reverse anything.
	cancelReplay := marshalResult(t, rabbitmq.SettlementResultEvent{
		CustomerID:        "cust-1",
		TransferSequence:  record.Sequence,
		SourceAccount:     record.SourceAccount,
		SourceTransaction: record.SourceTransactionSeq,
		Decision:          "cancel",
		Reason:            "late replay",
		Timestamp:         time.Now().UTC(),
	})
	if !consumer.HandleMessage(cancelReplay) {
		t.Fatal("expected replay to be acknowledged")
	}

	if len(ledger.settleCalls) != settleCallsAfterFirst {
		t.Fatalf("expected no further settlement calls, got %v", ledger.settleCalls)
	}
	updated, _ := repo.FindTransfer(context.Background(), "cust-1", record.Sequence)
	if updated.Status != domain.StatusCompleted {
		t.Fatalf("expected transfer to stay completed, got %q", updated.Status)
	}
	if got := ledger.accounts["111-222"].Balance; got != 6_000 {
		t.Fatalf("expected balance to stay at 6000, got %d", got)
	}
}

func TestHandleMessage_RequeuesWhenRecordWriteFails(t *testing.T) {
	base := newTransferRepoFake()
	repo := &statusWriteFailRepo{transferRepoFake: base}
	ledger := newLedgerFake()
	ledger.addAccount("111-222", "cust-1", 10_000)
	configureLimits(base, "cust-1", 50_000, 100_000)

	service := NewService(repo, ledger, &publisherFake{})
	record := submitPendingExternal(t, service)

	consumer := service.SettlementResultConsumer()
	confirm := marshalResult(t, rabbitmq.SettlementResultEvent{
		CustomerID:        "cust-1",
		TransferSequence:  record.Sequence,
		SourceAccount:     record.SourceAccount,
		SourceTransaction: record.SourceTransactionSeq,
		Decision:          "confirm",
		Timestamp:         time.Now().UTC(),
	})

	repo.fail = true
	if consumer.HandleMessage(confirm) {
		t.Fatal("expected requeue when the transfer row cannot be updated")
	}
	// The ledger leg settled on the first attempt.
	if len(ledger.pending) != 0 {
		t.Fatalf("expected the withdrawal settled, got %d pending", len(ledger.pending))
	}

	repo.fail = false
	if !consumer.HandleMessage(confirm) {
		t.Fatal("expected the redelivery to be acknowledged")
	}
	updated, err := base.FindTransfer(context.Background(), "cust-1", record.Sequence)
	if err != nil {
		t.Fatalf("expected transfer to exist, got %v", err)
	}
	if updated.Status != domain.StatusCompleted {
		t.Fatalf("expected completed after redelivery, got %q", updated.Status)
	}
	if got := ledger.accounts["111-222"].Balance; got != 6_000 {
		t.Fatalf("expected the debit to stand at 6000, got %d", got)
	}
}

func TestHandleMessage_DropsMalformedAndUnknown(t *testing.T) {
	repo := newTransferRepoFake()
	ledger := newLedgerFake()
	service, _ := newTestService(repo, ledger)
	consumer := service.SettlementResultConsumer()

	if !consumer.HandleMessage([]byte("{not json")) {
		t.Fatal("expected malformed message to be dropped, not requeued")
	}

	unknown := marshalResult(t, rabbitmq.SettlementResultEvent{
		CustomerID:       "cust-unknown",
		TransferSequence: 42,
		Decision:         "confirm",
	})
	if !consumer.HandleMessage(unknown) {
		t.Fatal("expected result for unknown transfer to be dropped, not requeued")
	}
}
