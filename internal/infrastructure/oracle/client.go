package oracle

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/example/agrimarket/internal/domain/settlement"
)

// Client queries a chain explorer's transaction endpoint. It implements
// settlement.Oracle; any transport or decode failure is an error, so the
// tracker can treat the oracle as unavailable without touching state.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// txResponse is the explorer's wire format
type txResponse struct {
	Status      string `json:"status"` // pending | confirmed | failed
	BlockNumber *int64 `json:"block_number,omitempty"`
	GasUsed     *int64 `json:"gas_used,omitempty"`
}

func (c *Client) QueryTransaction(ctx context.Context, txID string) (*settlement.Receipt, error) {
	endpoint := fmt.Sprintf("%s/api/v1/transactions/%s", c.baseURL, url.PathEscape(txID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("explorer returned status %d for tx %s", resp.StatusCode, txID)
	}

	var body txResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to decode explorer response: %w", err)
	}

	status := settlement.TxStatus(body.Status)
	switch status {
	case settlement.TxPending, settlement.TxConfirmed, settlement.TxFailed:
	default:
		return nil, fmt.Errorf("explorer returned unknown status %q for tx %s", body.Status, txID)
	}

	return &settlement.Receipt{
		Status:      status,
		BlockNumber: body.BlockNumber,
		GasUsed:     body.GasUsed,
	}, nil
}
