// Package rates fetches the native coin's exchange rate from the OKX market
// API. Credentials stay server side; requests are signed here.
package rates

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"
)

var ErrNoQuote = errors.New("rates: no quote in response")

// Client signs and sends OKX REST requests.
type Client struct {
	BaseURL     string
	APIKey      string
	SecretKey   string
	Passphrase  string
	HTTPClient  *http.Client
	RateLimiter *rate.Limiter
	Logger      *zerolog.Logger
	now         func() time.Time
}

func NewClient(baseURL, apiKey, secretKey, passphrase string, timeout time.Duration, logger *zerolog.Logger) *Client {
	return &Client{
		BaseURL:     strings.TrimRight(baseURL, "/"),
		APIKey:      apiKey,
		SecretKey:   secretKey,
		Passphrase:  passphrase,
		HTTPClient:  &http.Client{Timeout: timeout},
		RateLimiter: rate.NewLimiter(rate.Limit(5), 1),
		Logger:      logger,
		now:         time.Now,
	}
}

type tickerResponse struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
	Data []struct {
		InstID string `json:"instId"`
		Last   string `json:"last"`
	} `json:"data"`
}

// Sign computes the OK-ACCESS-SIGN header: base64(HMAC-SHA256(secret,
// timestamp + method + requestPath + body)).
func Sign(secret, timestamp, method, requestPath, body string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp + strings.ToUpper(method) + requestPath + body))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// Ticker returns the last traded price of instID, e.g. "IMUA-maoUSDT".
func (c *Client) Ticker(ctx context.Context, instID string) (decimal.Decimal, error) {
	if err := c.RateLimiter.Wait(ctx); err != nil {
		return decimal.Zero, fmt.Errorf("rate limit error: %w", err)
	}

	requestPath := "/api/v5/market/ticker?instId=" + url.QueryEscape(instID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+requestPath, nil)
	if err != nil {
		return decimal.Zero, err
	}

	ts := c.now().UTC().Format("2006-01-02T15:04:05.000Z")
	req.Header.Set("OK-ACCESS-KEY", c.APIKey)
	req.Header.Set("OK-ACCESS-SIGN", Sign(c.SecretKey, ts, http.MethodGet, requestPath, ""))
	req.Header.Set("OK-ACCESS-TIMESTAMP", ts)
	req.Header.Set("OK-ACCESS-PASSPHRASE", c.Passphrase)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return decimal.Zero, err
	}
	defer func(Body io.ReadCloser) {
		_ = Body.Close()
	}(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return decimal.Zero, fmt.Errorf("HTTP error: %d - %s", resp.StatusCode, resp.Status)
	}

	var body tickerResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return decimal.Zero, fmt.Errorf("failed to decode response: %w", err)
	}
	if body.Code != "" && body.Code != "0" {
		return decimal.Zero, fmt.Errorf("okx error %s: %s", body.Code, body.Msg)
	}
	if len(body.Data) == 0 || body.Data[0].Last == "" {
		return decimal.Zero, ErrNoQuote
	}

	last, err := decimal.NewFromString(body.Data[0].Last)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse last price %q: %w", body.Data[0].Last, err)
	}
	return last, nil
}
