package tradewise

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// APIError is returned for non-2xx responses.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("tradewise: %d %s: %s", e.StatusCode, http.StatusText(e.StatusCode), e.Message)
}

// IsNotFound reports whether err is a 404 from the server.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// Client provides a Go SDK for interacting with the tradewise-server API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a new tradewise API client.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 2 * time.Minute},
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.httpClient = hc
	return c
}

// RunBacktest runs a backtest on the server and returns the stored run.
func (c *Client) RunBacktest(ctx context.Context, req BacktestRequest) (*BacktestRun, error) {
	var run BacktestRun
	if err := c.do(ctx, http.MethodPost, "/api/backtests", req, &run); err != nil {
		return nil, err
	}
	return &run, nil
}

// GetBacktest retrieves a stored run by ID.
func (c *Client) GetBacktest(ctx context.Context, id string) (*BacktestRun, error) {
	var run BacktestRun
	if err := c.do(ctx, http.MethodGet, "/api/backtests/"+url.PathEscape(id), nil, &run); err != nil {
		return nil, err
	}
	return &run, nil
}

// ListBacktests returns stored runs, newest first.
func (c *Client) ListBacktests(ctx context.Context, opts ListOptions) ([]RunSummary, error) {
	q := url.Values{}
	if opts.Strategy != "" {
		q.Set("strategy", opts.Strategy)
	}
	if opts.Symbol != "" {
		q.Set("symbol", opts.Symbol)
	}
	if opts.Limit > 0 {
		q.Set("limit", strconv.Itoa(opts.Limit))
	}
	path := "/api/backtests"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var list RunList
	if err := c.do(ctx, http.MethodGet, path, nil, &list); err != nil {
		return nil, err
	}
	return list.Runs, nil
}

// ListStrategies returns the strategy families and presets the server knows.
func (c *Client) ListStrategies(ctx context.Context) ([]StrategyInfo, error) {
	var list StrategyList
	if err := c.do(ctx, http.MethodGet, "/api/strategies", nil, &list); err != nil {
		return nil, err
	}
	return list.Strategies, nil
}

// ListSymbols returns the symbols with stored bars in market.
func (c *Client) ListSymbols(ctx context.Context, market string) (*SymbolList, error) {
	path := "/api/symbols"
	if market != "" {
		path += "?market=" + url.QueryEscape(market)
	}
	var list SymbolList
	if err := c.do(ctx, http.MethodGet, path, nil, &list); err != nil {
		return nil, err
	}
	return &list, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var r io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		r = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, r)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var e ErrorResponse
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		if json.Unmarshal(data, &e) != nil || e.Error == "" {
			e.Error = strings.TrimSpace(string(data))
		}
		return &APIError{StatusCode: resp.StatusCode, Message: e.Error}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
