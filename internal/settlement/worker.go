/**
 * @description
 * The settlement-service stands in for the counterparty rail in this demo
 * deployment. It consumes settlement requests for external transfers, applies
 * the counterparty's acceptance rules, and publishes the confirm or cancel
 * decision back onto the event bus for the transfer-service to act on.
 *
 * @dependencies
 * - encoding/json, log, time: Standard Go libraries.
 * - pkg/rabbitmq: Event consumption and publishing.
 */

package settlement

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/modernbank/banking/pkg/rabbitmq"
)

// Worker consumes settlement requests and publishes decisions.
type Worker struct {
	events rabbitmq.Publisher
}

// NewWorker creates a new settlement worker.
func NewWorker(events rabbitmq.Publisher) *Worker {
	return &Worker{events: events}
}

// HandleMessage processes one settlement request. Returning false requeues the
// message for another attempt.
func (w *Worker) HandleMessage(body []byte) bool {
	var event rabbitmq.SettlementRequestedEvent
	if err := json.Unmarshal(body, &event); err != nil {
		log.Printf("level=error component=settlement msg=\"malformed settlement request; dropping\" err=%v", err)
		return true
	}

	decision, reason := Decide(event)

	result := rabbitmq.SettlementResultEvent{
		CustomerID:        event.CustomerID,
		TransferSequence:  event.TransferSequence,
		SourceAccount:     event.SourceAccount,
		SourceTransaction: event.SourceTransaction,
		Decision:          decision,
		Reason:            reason,
		Timestamp:         time.Now().UTC(),
	}
	if err := w.events.PublishSettlementResult(context.Background(), result); err != nil {
		log.Printf("level=error component=settlement msg=\"result publish failed; requeueing\" customer_id=%s seq=%d err=%v",
			event.CustomerID, event.TransferSequence, err)
		return false
	}

	log.Printf("level=info component=settlement msg=\"settlement decided\" customer_id=%s seq=%d decision=%s reason=%q",
		event.CustomerID, event.TransferSequence, decision, reason)
	return true
}

// Decide applies the counterparty's acceptance rules to one request. The demo
// counterparty accepts any well-formed destination and positive amount.
func Decide(event rabbitmq.SettlementRequestedEvent) (decision, reason string) {
	if event.Amount <= 0 {
		return "cancel", "amount must be positive"
	}
	if !validAccountNumber(event.DestinationAccount) {
		return "cancel", "destination account number is malformed"
	}
	return "confirm", ""
}

// validAccountNumber checks the destination against the interbank account
// number format: 8 to 20 characters, digits with optional dash separators.
func validAccountNumber(accountNumber string) bool {
	if len(accountNumber) < 8 || len(accountNumber) > 20 {
		return false
	}
	digits := 0
	for i := 0; i < len(accountNumber); i++ {
		c := accountNumber[i]
		switch {
		case c >= '0' && c <= '9':
			digits++
		case c == '-':
			if i == 0 || i == len(accountNumber)-1 || accountNumber[i-1] == '-' {
				return false
			}
		default:
			return false
		}
	}
	return digits >= 8
}
