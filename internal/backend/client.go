// Package backend talks to the remote holdings service over its REST
// /stocks resource.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/zenrsr/capx-stockfolio/internal/models"
	"github.com/zenrsr/capx-stockfolio/internal/store"
)

type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

func NewClient(baseURL string, httpClient *http.Client, logger *zap.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
		logger:     logger,
	}
}

var _ store.HoldingRepository = (*Client)(nil)

func (c *Client) ListHoldings(ctx context.Context) ([]models.Holding, error) {
	var out []models.Holding
	if err := c.do(ctx, http.MethodGet, "/stocks", nil, &out); err != nil {
		return nil, fmt.Errorf("list stocks: %w", err)
	}
	holdings := make([]models.Holding, 0, len(out))
	for _, h := range out {
		holdings = append(holdings, h.Normalize())
	}
	return holdings, nil
}

func (c *Client) GetHolding(ctx context.Context, id int64) (models.Holding, error) {
	var out models.Holding
	if err := c.do(ctx, http.MethodGet, stockPath(id), nil, &out); err != nil {
		return models.Holding{}, fmt.Errorf("get stock %d: %w", id, err)
	}
	return out.Normalize(), nil
}

func (c *Client) CreateHolding(ctx context.Context, h models.Holding) (models.Holding, error) {
	var out models.Holding
	if err := c.do(ctx, http.MethodPost, "/stocks", h.Normalize(), &out); err != nil {
		return models.Holding{}, fmt.Errorf("create stock %s: %w", h.Ticker, err)
	}
	return out.Normalize(), nil
}

func (c *Client) UpdateHolding(ctx context.Context, h models.Holding) (models.Holding, error) {
	var out models.Holding
	if err := c.do(ctx, http.MethodPut, stockPath(h.ID), h.Normalize(), &out); err != nil {
		return models.Holding{}, fmt.Errorf("update stock %d: %w", h.ID, err)
	}
	return out.Normalize(), nil
}

func (c *Client) DeleteHolding(ctx context.Context, id int64) error {
	if err := c.do(ctx, http.MethodDelete, stockPath(id), nil, nil); err != nil {
		return fmt.Errorf("delete stock %d: %w", id, err)
	}
	return nil
}

func stockPath(id int64) string {
	return "/stocks/" + strconv.FormatInt(id, 10)
}

// do sends body as JSON and decodes the response into out when both are
// non-nil. A 404 maps to store.ErrNotFound.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	c.logger.Debug("backend call",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("elapsed", time.Since(start)))

	if resp.StatusCode == http.StatusNotFound {
		return store.ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s %s: %s: %s", method, path, resp.Status, strings.TrimSpace(string(msg)))
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
