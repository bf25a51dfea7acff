/**
 * @description
 * This file handles settlement result events arriving from the settlement rail.
 * A confirm result completes the external transfer and finalizes the pending
 * withdrawal; a cancel result cancels the transfer and restores the customer's
 * funds. Handlers return true to acknowledge the message and false to requeue.
 *
 * @dependencies
 * - encoding/json, log: Standard Go libraries.
 * - internal/transfer/domain, internal/transfer/store, pkg/accountclient,
 *   pkg/rabbitmq.
 */

package app

import (
	"context"
	"encoding/json"
	"errors"
	"log"

	"github.com/modernbank/banking/internal/transfer/domain"
	"github.com/modernbank/banking/internal/transfer/store"
	"github.com/modernbank/banking/pkg/accountclient"
	"github.com/modernbank/banking/pkg/rabbitmq"
)

// SettlementResultConsumer applies counterparty decisions to pending external
// transfers.
type SettlementResultConsumer struct {
	service *Service
}

// SettlementResultConsumer returns the consumer bound to this service.
func (s *Service) SettlementResultConsumer() *SettlementResultConsumer {
	return &SettlementResultConsumer{service: s}
}

// HandleMessage processes one settlement result. Returning false requeues the
// message for another attempt.
func (c *SettlementResultConsumer) HandleMessage(body []byte) bool {
	var event rabbitmq.SettlementResultEvent
	if err := json.Unmarshal(body, &event); err != nil {
		log.Printf("level=error component=settlement_consumer msg=\"malformed settlement result; dropping\" err=%v", err)
		return true
	}
	if event.Decision != "confirm" && event.Decision != "cancel" {
		log.Printf("level=error component=settlement_consumer msg=\"unknown settlement decision; dropping\" decision=%s customer_id=%s seq=%d",
			event.Decision, event.CustomerID, event.TransferSequence)
		return true
	}

	ctx := context.Background()

	record, err := c.service.repo.FindTransfer(ctx, event.CustomerID, event.TransferSequence)
	if err != nil {
		if errors.Is(err, store.ErrTransferNotFound) {
			log.Printf("level=warn component=settlement_consumer msg=\"settlement result for unknown transfer; dropping\" customer_id=%s seq=%d",
				event.CustomerID, event.TransferSequence)
			return true
		}
		log.Printf("level=error component=settlement_consumer msg=\"transfer lookup failed; requeueing\" customer_id=%s seq=%d err=%v",
			event.CustomerID, event.TransferSequence, err)
		return false
	}

	// Replays of a decision that already landed are acknowledged silently.
	if record.Status != domain.StatusPending {
		log.Printf("level=info component=settlement_consumer msg=\"transfer already settled; ignoring replay\" customer_id=%s seq=%d status=%s",
			event.CustomerID, event.TransferSequence, record.Status)
		return true
	}

	if err := c.service.ledger.SettleWithdrawal(ctx, record.SourceAccount, record.SourceTransactionSeq, event.Decision); err != nil {
		if !errors.Is(err, accountclient.ErrAlreadySettled) {
			log.Printf("level=error component=settlement_consumer msg=\"withdrawal settlement failed; requeueing\" customer_id=%s seq=%d decision=%s err=%v",
				event.CustomerID, event.TransferSequence, event.Decision, err)
			return false
		}
		// The ledger entry was settled on a previous attempt; finish the
		// transfer row.
	}

	status := domain.StatusCompleted
	if event.Decision == "cancel" {
		status = domain.StatusCancelled
	}
	if err := c.service.markStatus(ctx, record, status); err != nil {
		// The ledger side is settled; requeue so the transfer row catches up.
		// The already-settled guard makes the retry idempotent.
		log.Printf("level=error component=settlement_consumer msg=\"record update failed; requeueing\" customer_id=%s seq=%d status=%s err=%v",
			event.CustomerID, event.TransferSequence, status, err)
		return false
	}

	log.Printf("level=info component=settlement_consumer msg=\"external transfer settled\" customer_id=%s seq=%d decision=%s reason=%q",
		event.CustomerID, event.TransferSequence, event.Decision, event.Reason)
	return true
}
