// Package remote talks to the expense API over HTTP.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"despesas/internal/core"
	"despesas/internal/ports"
)

const (
	DefaultTimeout = 10 * time.Second
	maxErrorBody   = 64 << 10
)

// APIError is a non-2xx answer from the expense API. Message carries the
// server's {"error": "..."} text when it sent one.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("expense api: %d %s", e.Status, http.StatusText(e.Status))
	}
	return fmt.Sprintf("expense api: %d %s", e.Status, e.Message)
}

// Is maps status codes onto the repository sentinels so callers can use
// errors.Is regardless of the backend.
func (e *APIError) Is(target error) bool {
	switch target {
	case ports.ErrExpenseNotFound:
		return e.Status == http.StatusNotFound
	case ports.ErrCategoryExists:
		return e.Status == http.StatusConflict
	}
	return false
}

// Client implements ports.Repository against a running expense API.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *slog.Logger
}

var (
	_ ports.Repository = (*Client)(nil)
	_ ports.Pinger     = (*Client)(nil)
)

type Option func(*Client)

// WithHTTPClient replaces the underlying client; its Timeout is kept as is.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

func New(baseURL string, timeout time.Duration, opts ...Option) (*Client, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid API URL %q", baseURL)
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	c := &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

func (c *Client) BaseURL() string { return c.baseURL }

// ListExpenses returns every expense, newest first, optionally restricted
// to the given categories.
func (c *Client) ListExpenses(ctx context.Context, categories ...string) ([]core.Expense, error) {
	path := "/expenses"
	var cats []string
	for _, cat := range categories {
		if cat = strings.TrimSpace(cat); cat != "" {
			cats = append(cats, cat)
		}
	}
	if len(cats) > 0 {
		path += "?" + url.Values{"category": {strings.Join(cats, ",")}}.Encode()
	}
	var out []core.Expense
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, fmt.Errorf("list expenses: %w", err)
	}
	if out == nil {
		out = []core.Expense{}
	}
	return out, nil
}

func (c *Client) GetExpense(ctx context.Context, id int64) (core.Expense, error) {
	var out core.Expense
	if err := c.do(ctx, http.MethodGet, expensePath(id), nil, &out); err != nil {
		return core.Expense{}, fmt.Errorf("get expense %d: %w", id, err)
	}
	return out, nil
}

func (c *Client) CreateExpense(ctx context.Context, in core.ExpenseInput) (int64, error) {
	var out struct {
		ID int64 `json:"id"`
	}
	if err := c.do(ctx, http.MethodPost, "/expenses", in.Normalize(), &out); err != nil {
		return 0, fmt.Errorf("create expense: %w", err)
	}
	return out.ID, nil
}

func (c *Client) UpdateExpense(ctx context.Context, id int64, in core.ExpenseInput) error {
	if err := c.do(ctx, http.MethodPut, expensePath(id), in.Normalize(), nil); err != nil {
		return fmt.Errorf("update expense %d: %w", id, err)
	}
	return nil
}

func (c *Client) DeleteExpense(ctx context.Context, id int64) error {
	if err := c.do(ctx, http.MethodDelete, expensePath(id), nil, nil); err != nil {
		return fmt.Errorf("delete expense %d: %w", id, err)
	}
	return nil
}

func (c *Client) ListCategories(ctx context.Context) ([]string, error) {
	var out []string
	if err := c.do(ctx, http.MethodGet, "/categories", nil, &out); err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	if out == nil {
		out = []string{}
	}
	return out, nil
}

func (c *Client) CreateCategory(ctx context.Context, name string) error {
	body := map[string]string{"name": strings.TrimSpace(name)}
	if err := c.do(ctx, http.MethodPost, "/categories", body, nil); err != nil {
		return fmt.Errorf("create category: %w", err)
	}
	return nil
}

// Health calls GET /health. Any non-2xx answer is an error.
func (c *Client) Health(ctx context.Context) error {
	var out struct {
		Status string `json:"status"`
		DB     string `json:"db"`
	}
	if err := c.do(ctx, http.MethodGet, "/health", nil, &out); err != nil {
		return fmt.Errorf("health: %w", err)
	}
	if out.Status != "" && out.Status != "ok" {
		return fmt.Errorf("health: status %q db %q", out.Status, out.DB)
	}
	return nil
}

func (c *Client) Ping(ctx context.Context) error { return c.Health(ctx) }

func expensePath(id int64) string {
	return "/expenses/" + strconv.FormatInt(id, 10)
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.WarnContext(ctx, "Expense API request failed",
			"method", method, "path", path, "error", err)
		return err
	}
	defer resp.Body.Close()

	c.logger.DebugContext(ctx, "Expense API request",
		"method", method,
		"path", path,
		"status", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds())

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	apiErr := &APIError{Status: resp.StatusCode}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil {
		return apiErr
	}
	var payload struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(raw, &payload) == nil && payload.Error != "" {
		apiErr.Message = payload.Error
	}
	return apiErr
}

// Message extracts the text worth showing a user from err: the API's own
// message when there is one, otherwise a generic network failure text.
func Message(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		if apiErr.Message != "" {
			return apiErr.Message
		}
		return http.StatusText(apiErr.Status)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "Tempo esgotado ao contactar o servidor"
	}
	return "Falha ao contactar o servidor"
}
