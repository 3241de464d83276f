// Package chain is a read-only client for the settlement chain's indexer
// API. It is used to observe confirmation of claim transfers; it never
// submits transactions.
package chain

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Client queries the chain indexer over HTTP.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates an indexer client. baseURL may be empty, in which case
// every call returns an error; claim confirmation then requires manual
// review instead of silently passing.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Transaction is an on-chain transfer as reported by the indexer.
type Transaction struct {
	Hash      string `json:"hash"`
	From      string `json:"from"`
	To        string `json:"to"`
	Value     string `json:"value"` // wei, decimal string
	BlockTime int64  `json:"block_time"`
	Success   bool   `json:"success"`
}

// GetTransaction fetches a transaction by hash. A nil result with nil error
// means the transaction is not yet indexed.
func (c *Client) GetTransaction(ctx context.Context, hash string) (*Transaction, error) {
	if c.baseURL == "" {
		return nil, fmt.Errorf("chain indexer not configured")
	}

	url := fmt.Sprintf("%s/transactions/%s", c.baseURL, hash)
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, err
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("indexer error: %s - %s", resp.Status, string(body))
	}

	var tx Transaction
	if err := json.NewDecoder(resp.Body).Decode(&tx); err != nil {
		return nil, err
	}
	return &tx, nil
}

// WaitForTransaction polls until the transaction appears or the timeout
// elapses.
func (c *Client) WaitForTransaction(ctx context.Context, hash string, timeout time.Duration) (*Transaction, error) {
	deadline := time.Now().Add(timeout)

	for time.Now().Before(deadline) {
		tx, err := c.GetTransaction(ctx, hash)
		if err != nil {
			return nil, err
		}
		if tx != nil {
			return tx, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(2 * time.Second):
		}
	}

	return nil, fmt.Errorf("transaction not found within timeout")
}
