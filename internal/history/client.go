// Package history is the client side of the transfer history and contacts
// API: it records settled transfers and reads paginated history.
package history

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"monallopay/internal/models"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// APIError is a non-2xx answer from the history API.
type APIError struct {
	StatusCode int
	Message    string
	Details    string
}

func (e *APIError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("history api: %d %s: %s", e.StatusCode, e.Message, e.Details)
	}
	return fmt.Sprintf("history api: %d %s", e.StatusCode, e.Message)
}

func (e *APIError) retryable() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}

// Client talks to the history API with rate limiting, retries and
// structured logging.
type Client struct {
	BaseURL     string
	RateLimiter *rate.Limiter
	MaxRetries  int
	RetryDelay  time.Duration
	Logger      *zerolog.Logger
	HTTPClient  *http.Client
}

// NewClient creates a history client for the API at baseURL.
func NewClient(baseURL string, rateLimit float64, maxRetries int, retryDelay, httpTimeout time.Duration, logger *zerolog.Logger) *Client {
	if maxRetries < 1 {
		maxRetries = 1
	}
	return &Client{
		BaseURL:     strings.TrimRight(baseURL, "/"),
		RateLimiter: rate.NewLimiter(rate.Limit(rateLimit), 1),
		MaxRetries:  maxRetries,
		RetryDelay:  retryDelay,
		Logger:      logger,
		HTTPClient: &http.Client{
			Timeout:   httpTimeout,
			Transport: &CustomTransport{Base: http.DefaultTransport},
		},
	}
}

// CustomTransport sets the JSON headers and a request id on every call.
type CustomTransport struct {
	Base http.RoundTripper
}

func (t *CustomTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.Header.Set("Accept", "application/json")
	if req.Body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if req.Header.Get("X-Request-ID") == "" {
		req.Header.Set("X-Request-ID", uuid.NewString())
	}
	return t.Base.RoundTrip(req)
}

// RecordTransfer stores a settled transfer. The recipient must already be
// in hex form.
func (c *Client) RecordTransfer(ctx context.Context, rec models.TransferRecord) error {
	body := struct {
		Amount    string       `json:"amount"`
		Asset     models.Asset `json:"asset"`
		Sender    string       `json:"sender"`
		Recipient string       `json:"recipient"`
		TxHash    string       `json:"txHash"`
		Timestamp string       `json:"timestamp"`
	}{
		Amount:    rec.Amount,
		Asset:     rec.Asset,
		Sender:    rec.Sender,
		Recipient: rec.Recipient,
		TxHash:    rec.TxHash,
		Timestamp: rec.Timestamp.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
	}
	return c.do(ctx, http.MethodPost, "/api/recordTransfer", nil, body, nil)
}

// ListTransactions returns one page of the history of q.UserAddress.
func (c *Client) ListTransactions(ctx context.Context, q models.TransferQuery) (*models.TransferPage, error) {
	params := url.Values{}
	params.Set("userAddress", q.UserAddress)
	if q.Page > 0 {
		params.Set("page", strconv.Itoa(q.Page))
	}
	if q.Limit > 0 {
		params.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.Search != "" {
		params.Set("search", q.Search)
	}
	if q.Currency != "" {
		params.Set("currency", q.Currency)
	}

	var page models.TransferPage
	if err := c.do(ctx, http.MethodGet, "/api/transactions", params, nil, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// Contacts lists the address book of owner.
func (c *Client) Contacts(ctx context.Context, owner string) ([]models.Contact, error) {
	params := url.Values{"userId": {owner}}
	var contacts []models.Contact
	if err := c.do(ctx, http.MethodGet, "/api/contacts", params, nil, &contacts); err != nil {
		return nil, err
	}
	return contacts, nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, in, out interface{}) error {
	var payload []byte
	if in != nil {
		var err error
		if payload, err = json.Marshal(in); err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
	}

	endpoint := c.BaseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	c.Logger.Debug().
		Str("method", method).
		Str("url", endpoint).
		Msg("Calling history API")

	err := c.retry(ctx, func() error {
		if err := c.RateLimiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limit error: %w", err)
		}

		var body io.Reader
		if payload != nil {
			body = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
		if err != nil {
			return err
		}

		resp, err := c.HTTPClient.Do(req)
		if err != nil {
			return err
		}
		defer func(Body io.ReadCloser) {
			_ = Body.Close()
		}(resp.Body)

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return decodeAPIError(resp)
		}
		if out == nil {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
		return nil
	})
	if err != nil {
		c.Logger.Error().
			Err(err).
			Str("method", method).
			Str("path", path).
			Msg("History API call failed")
		return err
	}
	return nil
}

func decodeAPIError(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode, Message: resp.Status}
	var body struct {
		Error   string `json:"error"`
		Details string `json:"details"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&body); err == nil && body.Error != "" {
		apiErr.Message = body.Error
		apiErr.Details = body.Details
	}
	return apiErr
}

// retry runs fn up to MaxRetries times. Client errors are not retried.
func (c *Client) retry(ctx context.Context, fn func() error) error {
	var err error
	for i := 0; i < c.MaxRetries; i++ {
		if err = fn(); err == nil {
			return nil
		}
		var apiErr *APIError
		if errors.As(err, &apiErr) && !apiErr.retryable() {
			return err
		}
		if i == c.MaxRetries-1 {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.RetryDelay):
		}
	}
	return err
}

// Close closes idle HTTP connections.
func (c *Client) Close() {
	if c.HTTPClient != nil {
		c.HTTPClient.CloseIdleConnections()
	}
}
