package settlement

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/modernbank/banking/pkg/rabbitmq"
)

type resultPublisherStub struct {
	results []rabbitmq.SettlementResultEvent
	fail    bool
}

func (p *resultPublisherStub) Publish(ctx context.Context, exchange, routingKey string, body interface{}) error {
	return nil
}

func (p *resultPublisherStub) PublishSettlementRequested(ctx context.Context, event rabbitmq.SettlementRequestedEvent) error {
	return nil
}

func (p *resultPublisherStub) PublishSettlementResult(ctx context.Context, event rabbitmq.SettlementResultEvent) error {
	if p.fail {
		return errors.New("broker unavailable")
	}
	p.results = append(p.results, event)
	return nil
}

func (p *resultPublisherStub) Close() {}

func TestDecide(t *testing.T) {
	cases := []struct {
		name         string
		destination  string
		amount       int64
		wantDecision string
	}{
		{name: "plain digits", destination: "98765432", amount: 1_000, wantDecision: "confirm"},
		{name: "digits with dashes", destination: "9876-5432-10", amount: 1_000, wantDecision: "confirm"},
		{name: "too short", destination: "1234", amount: 1_000, wantDecision: "cancel"},
		{name: "letters rejected", destination: "ABCD-EFGH-12", amount: 1_000, wantDecision: "cancel"},
		{name: "leading dash rejected", destination: "-987654321", amount: 1_000, wantDecision: "cancel"},
		{name: "double dash rejected", destination: "9876--543210", amount: 1_000, wantDecision: "cancel"},
		{name: "non-positive amount rejected", destination: "98765432", amount: 0, wantDecision: "cancel"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			decision, reason := Decide(rabbitmq.SettlementRequestedEvent{
				DestinationAccount: tc.destination,
				Amount:             tc.amount,
			})
			if decision != tc.wantDecision {
				t.Fatalf("expected %q, got %q (reason %q)", tc.wantDecision, decision, reason)
			}
			if decision == "cancel" && reason == "" {
				t.Fatal("expected a reason on cancel")
			}
		})
	}
}

func TestHandleMessage_PublishesDecision(t *testing.T) {
	publisher := &resultPublisherStub{}
	worker := NewWorker(publisher)

	event := rabbitmq.SettlementRequestedEvent{
		CustomerID:         "cust-1",
		TransferSequence:   7,
		SourceAccount:      "111-222",
		SourceTransaction:  3,
		DestinationAccount: "9876-5432-10",
		Amount:             4_000,
		Timestamp:          time.Now().UTC(),
	}
	body, err := json.Marshal(event)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	if !worker.HandleMessage(body) {
		t.Fatal("expected message to be acknowledged")
	}
	if len(publisher.results) != 1 {
		t.Fatalf("expected one result, got %d", len(publisher.results))
	}
	result := publisher.results[0]
	if result.Decision != "confirm" {
		t.Fatalf("expected confirm, got %q (reason %q)", result.Decision, result.Reason)
	}
	if result.CustomerID != "cust-1" || result.TransferSequence != 7 || result.SourceTransaction != 3 {
		t.Fatalf("result lost correlation fields: %+v", result)
	}
}

func TestHandleMessage_RequeuesWhenPublishFails(t *testing.T) {
	publisher := &resultPublisherStub{fail: true}
	worker := NewWorker(publisher)

	body, err := json.Marshal(rabbitmq.SettlementRequestedEvent{
		CustomerID:         "cust-1",
		TransferSequence:   7,
		DestinationAccount: "98765432",
		Amount:             1_000,
	})
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	if worker.HandleMessage(body) {
		t.Fatal("expected message to be requeued when the result cannot be published")
	}
}

func TestHandleMessage_DropsMalformedRequest(t *testing.T) {
	worker := NewWorker(&resultPublisherStub{})

	if !worker.HandleMessage([]byte("{not json")) {
		t.Fatal("expected malformed message to be dropped, not requeued")
	}
}
