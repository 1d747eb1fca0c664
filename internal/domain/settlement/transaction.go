package settlement

import (
	"context"
	"errors"
	"time"
)

// TxStatus is the on-chain confirmation state of a settlement attempt
type TxStatus string

const (
	TxPending   TxStatus = "pending"
	TxConfirmed TxStatus = "confirmed"
	TxFailed    TxStatus = "failed"
)

// Terminal reports whether no further transition can leave the status
func (s TxStatus) Terminal() bool {
	return s == TxConfirmed || s == TxFailed
}

var (
	ErrTxNotFound        = errors.New("transaction not found")
	ErrActiveTransaction = errors.New("order already has an active settlement transaction")
	ErrOracleUnavailable = errors.New("settlement oracle unavailable")
)

// Transaction records one settlement attempt for an order. An order has at
// most one active (pending or confirmed) transaction at a time; a failed
// attempt may be superseded by a new one.
type Transaction struct {
	ID          string    `json:"id"`
	OrderID     string    `json:"order_id"`
	TxID        string    `json:"tx_id"`
	Hash        string    `json:"hash"`
	Status      TxStatus  `json:"status"`
	BlockNumber *int64    `json:"block_number,omitempty"`
	GasUsed     *int64    `json:"gas_used,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Store persists settlement transactions. UpdateStatus performs a
// compare-and-set from one status to another and reports whether this
// call made the change; concurrent verifiers race on it so the observed
// transition fires exactly once.
type Store interface {
	Create(ctx context.Context, tx *Transaction) error
	GetByTxID(ctx context.Context, txID string) (*Transaction, error)
	GetActiveByOrder(ctx context.Context, orderID string) (*Transaction, error)
	UpdateStatus(ctx context.Context, txID string, from, to TxStatus, blockNumber, gasUsed *int64) (bool, error)
	ListPending(ctx context.Context) ([]*Transaction, error)
}

// Receipt is what the oracle reports about an on-chain transaction
type Receipt struct {
	Status      TxStatus `json:"status"`
	BlockNumber *int64   `json:"block_number,omitempty"`
	GasUsed     *int64   `json:"gas_used,omitempty"`
}

// Oracle queries the external settlement source (a chain explorer or
// node). Implementations must honor the context deadline; a transport
// failure is reported as an error, never as a receipt.
type Oracle interface {
	QueryTransaction(ctx context.Context, txID string) (*Receipt, error)
}
