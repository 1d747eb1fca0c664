package settlement

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/example/agrimarket/internal/domain/order"
	"github.com/example/agrimarket/internal/event"
)

const (
	oracleTimeout     = 10 * time.Second
	saveRetryAttempts = 3
)

// Tracker advances settlement transactions independently of the order
// status graph. Verification is idempotent: polling and retries are
// expected, and an already-terminal transaction is a safe no-op.
type Tracker struct {
	txs       Store
	orders    order.Store
	oracle    Oracle
	publisher event.Publisher
}

func NewTracker(txs Store, orders order.Store, oracle Oracle, publisher event.Publisher) *Tracker {
	return &Tracker{txs: txs, orders: orders, oracle: oracle, publisher: publisher}
}

// RecordSubmission registers a payment attempt submitted to the chain.
// Legal only while the order has no active (pending/confirmed)
// transaction; a previous failed attempt may be superseded.
func (t *Tracker) RecordSubmission(ctx context.Context, orderID, txID, hash string) (*Transaction, error) {
	o, err := t.orders.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if active, err := t.txs.GetActiveByOrder(ctx, orderID); err != nil {
		if !errors.Is(err, ErrTxNotFound) {
			return nil, err
		}
	} else if active != nil {
		return nil, fmt.Errorf("%w: %s is %s", ErrActiveTransaction, active.TxID, active.Status)
	}

	now := time.Now()
	tx := &Transaction{
		ID:        uuid.New().String(),
		OrderID:   orderID,
		TxID:      txID,
		Hash:      hash,
		Status:    TxPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := t.txs.Create(ctx, tx); err != nil {
		return nil, err
	}

	if err := t.stampOrder(ctx, o.ID, func(upd *order.Order) {
		upd.BlockchainTxID = txID
		upd.BlockchainHash = hash
		upd.BlockchainState = order.ChainPending
	}); err != nil {
		log.Printf("[Tracker] Failed to stamp order %s with submission %s: %v", orderID, txID, err)
	}

	t.publish(ctx, EventSettlementSubmitted, orderID, SettlementSubmitted{
		OrderID:     orderID,
		TxID:        txID,
		Hash:        hash,
		SubmittedAt: now,
	})

	return tx, nil
}

// Verify queries the oracle for the transaction's current on-chain state
// and applies it exactly once. Oracle failures leave stored state
// untouched and surface as ErrOracleUnavailable so the caller can retry.
func (t *Tracker) Verify(ctx context.Context, txID string) (*Transaction, error) {
	tx, err := t.txs.GetByTxID(ctx, txID)
	if err != nil {
		return nil, err
	}
	if tx.Status.Terminal() {
		return tx, nil
	}

	queryCtx, cancel := context.WithTimeout(ctx, oracleTimeout)
	defer cancel()
	receipt, err := t.oracle.QueryTransaction(queryCtx, txID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOracleUnavailable, err)
	}

	switch receipt.Status {
	case TxConfirmed:
		return t.applyConfirmed(ctx, tx, receipt)
	case TxFailed:
		return t.applyFailed(ctx, tx)
	default:
		// still pending on chain, nothing to record
		return tx, nil
	}
}

// applyConfirmed stamps the order first and flips the transaction last.
// The transaction only turns terminal once the order reflects the
// outcome, so a failure anywhere here leaves it pending and the next
// Verify repeats the whole sequence (the stamp is idempotent).
func (t *Tracker) applyConfirmed(ctx context.Context, tx *Transaction, receipt *Receipt) (*Transaction, error) {
	o, err := t.orders.Get(ctx, tx.OrderID)
	if err != nil {
		return nil, err
	}

	paid := o.PaymentMethod.OnChain() &&
		o.PaymentStatus != order.PaymentRefunded &&
		o.PaymentStatus != order.PaymentFailed

	if err := t.stampOrder(ctx, o.ID, func(upd *order.Order) {
		upd.BlockchainState = order.ChainVerified
		if paid {
			upd.PaymentStatus = order.PaymentPaid
		}
	}); err != nil {
		return nil, err
	}

	changed, err := t.txs.UpdateStatus(ctx, tx.TxID, TxPending, TxConfirmed, receipt.BlockNumber, receipt.GasUsed)
	if err != nil {
		return nil, err
	}
	if !changed {
		// a concurrent Verify won the race and published the event
		return t.txs.GetByTxID(ctx, tx.TxID)
	}

	t.publish(ctx, EventSettlementConfirmed, tx.OrderID, SettlementConfirmed{
		OrderID:     tx.OrderID,
		BuyerID:     o.BuyerID,
		FarmerID:    o.FarmerID,
		TxID:        tx.TxID,
		Hash:        tx.Hash,
		BlockNumber: receipt.BlockNumber,
		GasUsed:     receipt.GasUsed,
		PaymentPaid: paid,
		ConfirmedAt: time.Now(),
	})

	return t.txs.GetByTxID(ctx, tx.TxID)
}

// applyFailed records the failure but never cancels the order; a human
// decides what happens to a failed settlement. Same ordering as
// applyConfirmed: stamp, then flip, then notify.
func (t *Tracker) applyFailed(ctx context.Context, tx *Transaction) (*Transaction, error) {
	o, err := t.orders.Get(ctx, tx.OrderID)
	if err != nil {
		return nil, err
	}

	if err := t.stampOrder(ctx, o.ID, func(upd *order.Order) {
		upd.BlockchainState = order.ChainFailed
	}); err != nil {
		return nil, err
	}

	changed, err := t.txs.UpdateStatus(ctx, tx.TxID, TxPending, TxFailed, nil, nil)
	if err != nil {
		return nil, err
	}
	if !changed {
		return t.txs.GetByTxID(ctx, tx.TxID)
	}

	t.publish(ctx, EventSettlementFailed, tx.OrderID, SettlementFailed{
		OrderID:  tx.OrderID,
		BuyerID:  o.BuyerID,
		FarmerID: o.FarmerID,
		TxID:     tx.TxID,
		Hash:     tx.Hash,
		FailedAt: time.Now(),
	})

	return t.txs.GetByTxID(ctx, tx.TxID)
}

// stampOrder applies a mutation to the order with a short retry loop on
// version conflicts. The mutation must be commutative with whatever the
// conflicting writer did (it only touches settlement fields).
func (t *Tracker) stampOrder(ctx context.Context, orderID string, mutate func(*order.Order)) error {
	var lastErr error
	for attempt := 0; attempt < saveRetryAttempts; attempt++ {
		o, err := t.orders.Get(ctx, orderID)
		if err != nil {
			return err
		}
		upd := o.Clone()
		mutate(upd)
		upd.UpdatedAt = time.Now()

		if err := t.orders.Save(ctx, upd); err != nil {
			if errors.Is(err, order.ErrVersionConflict) {
				lastErr = err
				continue
			}
			return err
		}
		return nil
	}
	return lastErr
}

func (t *Tracker) publish(ctx context.Context, eventType, orderID string, payload any) {
	if t.publisher == nil {
		return
	}
	e, err := event.New(eventType, orderID, payload)
	if err != nil {
		log.Printf("[Tracker] Failed to build %s event for order %s: %v", eventType, orderID, err)
		return
	}
	if err := t.publisher.Publish(ctx, e); err != nil {
		log.Printf("[Tracker] Failed to publish %s event for order %s: %v", eventType, orderID, err)
	}
}
