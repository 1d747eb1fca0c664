package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/lib/pq"

	"github.com/example/agrimarket/internal/domain/order"
	"github.com/example/agrimarket/internal/domain/settlement"
)

// ConnectPostgres establishes a connection to PostgreSQL
func ConnectPostgres(connStr string) (*sql.DB, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	return db, nil
}

// PostgresOrderStore implements order.Store on PostgreSQL. Items and the
// shipping address are stored as JSONB; concurrent writes are serialized
// by the version column.
type PostgresOrderStore struct {
	db *sql.DB
}

func NewPostgresOrderStore(db *sql.DB) *PostgresOrderStore {
	return &PostgresOrderStore{db: db}
}

const orderColumns = `id, order_number, buyer_id, farmer_id, items, total_amount,
	status, payment_status, payment_method, shipping_address, delivery_date,
	blockchain_tx_id, blockchain_hash, blockchain_status, created_at, updated_at, version`

func (s *PostgresOrderStore) Get(ctx context.Context, id string) (*order.Order, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)
	return scanOrder(row)
}

func (s *PostgresOrderStore) Create(ctx context.Context, o *order.Order) error {
	items, err := json.Marshal(o.Items)
	if err != nil {
		return err
	}
	addr, err := json.Marshal(o.ShippingAddress)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO orders (`+orderColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`,
		o.ID, o.OrderNumber, o.BuyerID, o.FarmerID, items, o.TotalAmount,
		o.Status, o.PaymentStatus, o.PaymentMethod, addr, o.DeliveryDate,
		nullable(o.BlockchainTxID), nullable(o.BlockchainHash), nullable(string(o.BlockchainState)),
		o.CreatedAt, o.UpdatedAt, o.Version,
	)
	return err
}

// Save writes the order only when the stored version still matches,
// otherwise reports order.ErrVersionConflict
func (s *PostgresOrderStore) Save(ctx context.Context, o *order.Order) error {
	items, err := json.Marshal(o.Items)
	if err != nil {
		return err
	}
	addr, err := json.Marshal(o.ShippingAddress)
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE orders SET
			items = $2, total_amount = $3, status = $4, payment_status = $5,
			shipping_address = $6, delivery_date = $7, blockchain_tx_id = $8,
			blockchain_hash = $9, blockchain_status = $10, updated_at = $11,
			version = version + 1
		 WHERE id = $1 AND version = $12`,
		o.ID, items, o.TotalAmount, o.Status, o.PaymentStatus,
		addr, o.DeliveryDate, nullable(o.BlockchainTxID),
		nullable(o.BlockchainHash), nullable(string(o.BlockchainState)), o.UpdatedAt,
		o.Version,
	)
	if err != nil {
		return err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		// row missing or version mismatch; disambiguate
		var exists bool
		if err := s.db.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM orders WHERE id = $1)`, o.ID).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return order.ErrOrderNotFound
		}
		return order.ErrVersionConflict
	}

	o.Version++
	return nil
}

func (s *PostgresOrderStore) ListByBuyer(ctx context.Context, buyerID string) ([]*order.Order, error) {
	return s.query(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE buyer_id = $1 ORDER BY created_at DESC`, buyerID)
}

func (s *PostgresOrderStore) ListByFarmer(ctx context.Context, farmerID string) ([]*order.Order, error) {
	return s.query(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE farmer_id = $1 ORDER BY created_at DESC`, farmerID)
}

func (s *PostgresOrderStore) ListAll(ctx context.Context) ([]*order.Order, error) {
	return s.query(ctx,
		`SELECT `+orderColumns+` FROM orders ORDER BY created_at DESC`)
}

func (s *PostgresOrderStore) query(ctx context.Context, q string, args ...any) ([]*order.Order, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []*order.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*order.Order, error) {
	var (
		o              order.Order
		items, addr    []byte
		deliveryDate   sql.NullTime
		txID, hash, bs sql.NullString
	)

	err := row.Scan(
		&o.ID, &o.OrderNumber, &o.BuyerID, &o.FarmerID, &items, &o.TotalAmount,
		&o.Status, &o.PaymentStatus, &o.PaymentMethod, &addr, &deliveryDate,
		&txID, &hash, &bs, &o.CreatedAt, &o.UpdatedAt, &o.Version,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, order.ErrOrderNotFound
		}
		return nil, err
	}

	if err := json.Unmarshal(items, &o.Items); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(addr, &o.ShippingAddress); err != nil {
		return nil, err
	}
	if deliveryDate.Valid {
		o.DeliveryDate = &deliveryDate.Time
	}
	o.BlockchainTxID = txID.String
	o.BlockchainHash = hash.String
	o.BlockchainState = order.BlockchainStatus(bs.String)

	return &o, nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// PostgresTransactionStore implements settlement.Store on PostgreSQL
type PostgresTransactionStore struct {
	db *sql.DB
}

func NewPostgresTransactionStore(db *sql.DB) *PostgresTransactionStore {
	return &PostgresTransactionStore{db: db}
}

const txColumns = `id, order_id, tx_id, hash, status, block_number, gas_used, created_at, updated_at`

// one_active_tx_per_order is a partial unique index:
// CREATE UNIQUE INDEX one_active_tx_per_order
//   ON blockchain_transactions (order_id) WHERE status != 'failed'
// It makes the single-active-transaction rule hold even when two
// submissions interleave between the tracker's check and this insert.
const oneActiveTxPerOrderIndex = "one_active_tx_per_order"

func (s *PostgresTransactionStore) Create(ctx context.Context, tx *settlement.Transaction) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO blockchain_transactions (`+txColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		tx.ID, tx.OrderID, tx.TxID, tx.Hash, tx.Status,
		tx.BlockNumber, tx.GasUsed, tx.CreatedAt, tx.UpdatedAt,
	)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" && pqErr.Constraint == oneActiveTxPerOrderIndex {
		return settlement.ErrActiveTransaction
	}
	return err
}

func (s *PostgresTransactionStore) GetByTxID(ctx context.Context, txID string) (*settlement.Transaction, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+txColumns+` FROM blockchain_transactions WHERE tx_id = $1`, txID)
	return scanTransaction(row)
}

func (s *PostgresTransactionStore) GetActiveByOrder(ctx context.Context, orderID string) (*settlement.Transaction, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+txColumns+` FROM blockchain_transactions
		 WHERE order_id = $1 AND status != $2
		 ORDER BY created_at DESC LIMIT 1`,
		orderID, settlement.TxFailed)
	return scanTransaction(row)
}

// UpdateStatus is a conditional update; the affected-rows count tells the
// caller whether this call performed the transition
func (s *PostgresTransactionStore) UpdateStatus(ctx context.Context, txID string, from, to settlement.TxStatus, blockNumber, gasUsed *int64) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE blockchain_transactions
		 SET status = $3,
		     block_number = COALESCE($4, block_number),
		     gas_used = COALESCE($5, gas_used),
		     updated_at = $6
		 WHERE tx_id = $1 AND status = $2`,
		txID, from, to, blockNumber, gasUsed, time.Now(),
	)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func (s *PostgresTransactionStore) ListPending(ctx context.Context) ([]*settlement.Transaction, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+txColumns+` FROM blockchain_transactions
		 WHERE status = $1 ORDER BY created_at ASC`,
		settlement.TxPending)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var txs []*settlement.Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		txs = append(txs, tx)
	}
	return txs, rows.Err()
}

func scanTransaction(row rowScanner) (*settlement.Transaction, error) {
	var (
		tx         settlement.Transaction
		block, gas sql.NullInt64
	)

	err := row.Scan(&tx.ID, &tx.OrderID, &tx.TxID, &tx.Hash, &tx.Status,
		&block, &gas, &tx.CreatedAt, &tx.UpdatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, settlement.ErrTxNotFound
		}
		return nil, err
	}

	if block.Valid {
		tx.BlockNumber = &block.Int64
	}
	if gas.Valid {
		tx.GasUsed = &gas.Int64
	}
	return &tx, nil
}
