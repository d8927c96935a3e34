package rates

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSign(t *testing.T) {
	got := Sign("secret", "2020-12-08T09:08:57.715Z", "get", "/api/v5/account/balance?ccy=BTC", "")
	assert.Equal(t, "wpDvCwYCprcMQsQkxWJiWy+YADoQE4ep+OEKKLimMoY=", got)
	assert.NotEqual(t, Sign("other", "2020-12-08T09:08:57.715Z", "GET", "/api/v5/account/balance?ccy=BTC", ""), got)
}

func setupTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	logger := zerolog.Nop()
	c := NewClient(server.URL, "key", "secret", "pass", time.Second, &logger)
	c.now = func() time.Time { return time.Date(2025, 1, 2, 3, 4, 5, 600_000_000, time.UTC) }
	return c
}

func TestTicker(t *testing.T) {
	c := setupTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v5/market/ticker", r.URL.Path)
		assert.Equal(t, "IMUA-maoUSDT", r.URL.Query().Get("instId"))
		assert.Equal(t, "key", r.Header.Get("OK-ACCESS-KEY"))
		assert.Equal(t, "pass", r.Header.Get("OK-ACCESS-PASSPHRASE"))
		assert.Equal(t, "2025-01-02T03:04:05.600Z", r.Header.Get("OK-ACCESS-TIMESTAMP"))
		assert.Equal(t,
			Sign("secret", "2025-01-02T03:04:05.600Z", "GET", "/api/v5/market/ticker?instId=IMUA-maoUSDT", ""),
			r.Header.Get("OK-ACCESS-SIGN"))
		_, _ = w.Write([]byte(`{"code":"0","msg":"","data":[{"instId":"IMUA-maoUSDT","last":"0.4215"}]}`))
	})

	last, err := c.Ticker(context.Background(), "IMUA-maoUSDT")
	require.NoError(t, err)
	assert.Equal(t, "0.4215", last.String())
}

func TestTickerErrors(t *testing.T) {
	cases := map[string]string{
		"api error": `{"code":"51001","msg":"Instrument ID does not exist","data":[]}`,
		"no data":   `{"code":"0","msg":"","data":[]}`,
		"bad price": `{"code":"0","data":[{"last":"n/a"}]}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			c := setupTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(body))
			})
			_, err := c.Ticker(context.Background(), "IMUA-maoUSDT")
			assert.Error(t, err)
		})
	}
}

type stubQuoter struct {
	rate decimal.Decimal
	err  error
}

func (s *stubQuoter) Ticker(context.Context, string) (decimal.Decimal, error) {
	return s.rate, s.err
}

func TestPollerKeepsLastGoodRate(t *testing.T) {
	q := &stubQuoter{err: errors.New("timeout")}
	logger := zerolog.Nop()
	p := NewPoller(q, "IMUA-maoUSDT", time.Minute, &logger)

	assert.Error(t, p.Refresh(context.Background()))
	assert.Equal(t, "1", p.Current().Rate)
	assert.True(t, p.Rate().Equal(decimal.NewFromInt(1)))

	q.rate, q.err = decimal.RequireFromString("0.42"), nil
	require.NoError(t, p.Refresh(context.Background()))
	assert.Equal(t, "0.42", p.Current().Rate)
	assert.False(t, p.Current().UpdatedAt.IsZero())

	q.err = errors.New("down again")
	assert.Error(t, p.Refresh(context.Background()))
	assert.Equal(t, "0.42", p.Current().Rate)
}
