package settlement

import "time"

const (
	EventSettlementSubmitted = "settlement.submitted"
	EventSettlementConfirmed = "settlement.confirmed"
	EventSettlementFailed    = "settlement.failed"
)

type SettlementSubmitted struct {
	OrderID     string    `json:"order_id"`
	TxID        string    `json:"tx_id"`
	Hash        string    `json:"hash"`
	SubmittedAt time.Time `json:"submitted_at"`
}

type SettlementConfirmed struct {
	OrderID     string    `json:"order_id"`
	BuyerID     string    `json:"buyer_id"`
	FarmerID    string    `json:"farmer_id"`
	TxID        string    `json:"tx_id"`
	Hash        string    `json:"hash"`
	BlockNumber *int64    `json:"block_number,omitempty"`
	GasUsed     *int64    `json:"gas_used,omitempty"`
	PaymentPaid bool      `json:"payment_paid"`
	ConfirmedAt time.Time `json:"confirmed_at"`
}

type SettlementFailed struct {
	OrderID  string    `json:"order_id"`
	BuyerID  string    `json:"buyer_id"`
	FarmerID string    `json:"farmer_id"`
	TxID     string    `json:"tx_id"`
	Hash     string    `json:"hash"`
	FailedAt time.Time `json:"failed_at"`
}
