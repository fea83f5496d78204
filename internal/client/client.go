package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/marcos1394/agritrust-fieldsync/internal/config"
	"github.com/marcos1394/agritrust-fieldsync/internal/log"

	"github.com/google/uuid"
)

// Crop mirrors the backend crop resource embedded in a harvest batch.
type Crop struct {
	ID      uuid.UUID `json:"id"`
	Name    string    `json:"name"`
	Variety string    `json:"variety"`
}

// HarvestBatch mirrors the backend harvest-batch resource. Scans are always
// recorded against one of these.
type HarvestBatch struct {
	ID          uuid.UUID `json:"id"`
	TenantID    uuid.UUID `json:"tenant_id"`
	BatchCode   string    `json:"batch_code"`
	HarvestDate time.Time `json:"harvest_date"`
	Crop        *Crop     `json:"crop,omitempty"`
}

// Client talks to the backend REST API. Every call is bounded by the
// configured submit timeout so a hung connection degrades to a failure
// instead of blocking the caller.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *log.Logger
}

func New(cfg *config.Config, logger *log.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(cfg.APIBaseURL, "/"),
		http:    &http.Client{Timeout: cfg.SubmitTimeout},
		logger:  logger,
	}
}

// SubmitScan posts one scan payload to POST /bins/scan. Any 2xx response is
// acceptance; everything else, including transport errors, is a failure the
// caller handles by queueing.
func (c *Client) SubmitScan(ctx context.Context, token string, payload json.RawMessage) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/bins/scan", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build scan request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("submit scan: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("submit scan: server returned %s", resp.Status)
	}
	return nil
}

// ListBatches fetches the harvest-batch catalog from GET /harvest-batches.
func (c *Client) ListBatches(ctx context.Context, token string) ([]HarvestBatch, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/harvest-batches", nil)
	if err != nil {
		return nil, fmt.Errorf("build batches request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("list batches: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, resp.Body)
		return nil, fmt.Errorf("list batches: server returned %s", resp.Status)
	}
	var batches []HarvestBatch
	if err := json.NewDecoder(resp.Body).Decode(&batches); err != nil {
		return nil, fmt.Errorf("decode batches: %w", err)
	}
	return batches, nil
}
