// Package backend is the HTTP client for the trading backend's REST API.
// The watcher core only needs trade history, but the client mirrors the rest
// of the console surface (wallet configuration CRUD, logs, auth) so the
// surrounding pages share one token-attaching transport.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/solwatch/tradewatch/shared/models"
)

const requestTimeout = 10 * time.Second

// Client talks to the trading backend. It attaches the bearer token to every
// request when one is set.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     *logrus.Entry
}

// NewClient creates a backend client rooted at baseURL. token may be empty
// until Login is called.
func NewClient(baseURL, token string, logger *logrus.Logger) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: requestTimeout},
		logger:     logger.WithField("component", "backend"),
	}
}

// StreamURL returns the SSE trade stream endpoint.
func (c *Client) StreamURL() string {
	return c.baseURL + "/api/v1/trades/stream"
}

// Token returns the current bearer token.
func (c *Client) Token() string {
	return c.token
}

// TradeHistory fetches the most recent trade records, newest first, bounded
// by limit.
func (c *Client) TradeHistory(ctx context.Context, limit int) (*models.TradeHistoryResponse, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}

	var resp models.TradeHistoryResponse
	if err := c.getJSON(ctx, "/api/v1/trades/history", q, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// WalletConfigurations fetches all configured wallets keyed by address.
func (c *Client) WalletConfigurations(ctx context.Context) (map[string]models.WalletConfig, error) {
	var resp map[string]models.WalletConfig
	if err := c.getJSON(ctx, "/api/v1/wallets/configurations", nil, &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// UpdateWalletConfiguration creates or updates one wallet's configuration.
func (c *Client) UpdateWalletConfiguration(ctx context.Context, cfg models.WalletConfig) error {
	body, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode wallet config: %w", err)
	}
	return c.do(ctx, http.MethodPost, "/api/v1/wallets/configurations", body, nil)
}

// DeleteWalletConfiguration removes one wallet's configuration.
func (c *Client) DeleteWalletConfiguration(ctx context.Context, walletAddress string) error {
	return c.do(ctx, http.MethodDelete, "/api/v1/wallets/configurations/"+url.PathEscape(walletAddress), nil, nil)
}

// Logs fetches the backend's log files keyed by file name.
func (c *Client) Logs(ctx context.Context) (map[string]string, error) {
	var resp map[string]string
	if err := c.getJSON(ctx, "/api/v1/logs", nil, &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// ClearLogs truncates the backend's log files.
func (c *Client) ClearLogs(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/api/v1/logs/clear", nil, nil)
}

type loginResponse struct {
	Token string `json:"token"`
}

// Login authenticates and stores the returned token for subsequent requests.
func (c *Client) Login(ctx context.Context, username, password string) error {
	body, err := json.Marshal(map[string]string{
		"username": username,
		"password": password,
	})
	if err != nil {
		return fmt.Errorf("failed to encode credentials: %w", err)
	}

	var resp loginResponse
	if err := c.do(ctx, http.MethodPost, "/api/v1/auth/login", body, &resp); err != nil {
		return err
	}
	if resp.Token == "" {
		return fmt.Errorf("login response missing token")
	}
	c.token = resp.Token
	return nil
}

func (c *Client) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	full := path
	if len(query) > 0 {
		full += "?" + query.Encode()
	}
	return c.do(ctx, http.MethodGet, full, nil, out)
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request %s %s: %w", method, path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request %s %s failed: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("request %s %s: status %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response for %s %s: %w", method, path, err)
	}
	return nil
}
