package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeHead struct{ n uint64 }

func (f *fakeHead) BlockNumber(context.Context) (uint64, error) {
	return atomic.AddUint64(&f.n, 1), nil
}

type fakeDB struct{ err error }

func (f *fakeDB) Ping(context.Context) error { return f.err }

func readiness(c *Checker) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	c.ReadinessHandler(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	return rec
}

func TestLiveness(t *testing.T) {
	logger := zerolog.Nop()
	c := NewChecker(nil, time.Minute, &logger)
	rec := httptest.NewRecorder()
	c.LivenessHandler(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestReadiness(t *testing.T) {
	logger := zerolog.Nop()
	db := &fakeDB{}
	c := NewChecker(db, time.Minute, &logger)

	assert.Equal(t, http.StatusServiceUnavailable, readiness(c).Code)

	c.SetReady(true)
	assert.Equal(t, http.StatusServiceUnavailable, readiness(c).Code, "no chain head yet")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.WatchChain(ctx, "imuachain", &fakeHead{}, 10*time.Millisecond)

	require.Eventually(t, func() bool {
		return readiness(c).Code == http.StatusOK
	}, time.Second, 5*time.Millisecond)

	var body struct {
		Status string      `json:"status"`
		Chain  ChainStatus `json:"chain"`
	}
	require.NoError(t, json.NewDecoder(readiness(c).Body).Decode(&body))
	assert.Equal(t, "Ready", body.Status)
	assert.Equal(t, "imuachain", body.Chain.Name)
	assert.NotZero(t, body.Chain.LastBlock)

	db.err = errors.New("connection refused")
	assert.Equal(t, http.StatusServiceUnavailable, readiness(c).Code)
}

func TestStaleHead(t *testing.T) {
	logger := zerolog.Nop()
	c := NewChecker(nil, time.Millisecond, &logger)
	c.SetReady(true)
	c.updateChainStatus("imuachain", 10)
	time.Sleep(5 * time.Millisecond)
	assert.Equal(t, http.StatusServiceUnavailable, readiness(c).Code)
}
