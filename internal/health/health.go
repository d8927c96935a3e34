package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

type ChainStatus struct {
	Name      string    `json:"name"`
	LastBlock uint64    `json:"last_block"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HeadSource reports the chain head.
type HeadSource interface {
	BlockNumber(ctx context.Context) (uint64, error)
}

// Pinger checks a backing store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Checker serves liveness and readiness. Ready means SetReady(true) was
// called, the chain head was read recently and the store answers a ping.
type Checker struct {
	isReady    int32
	db         Pinger
	staleAfter time.Duration
	logger     *zerolog.Logger

	statusMutex sync.RWMutex
	chain       *ChainStatus
}

func NewChecker(db Pinger, staleAfter time.Duration, logger *zerolog.Logger) *Checker {
	return &Checker{db: db, staleAfter: staleAfter, logger: logger}
}

func (c *Checker) SetReady(ready bool) {
	if ready {
		atomic.StoreInt32(&c.isReady, 1)
	} else {
		atomic.StoreInt32(&c.isReady, 0)
	}
}

func (c *Checker) LivenessHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (c *Checker) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	if reason := c.notReady(r.Context()); reason != "" {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("Not Ready: " + reason))
		return
	}

	c.statusMutex.RLock()
	status := *c.chain
	c.statusMutex.RUnlock()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"status": "Ready",
		"chain":  status,
	})
}

func (c *Checker) notReady(ctx context.Context) string {
	if atomic.LoadInt32(&c.isReady) == 0 {
		return "starting"
	}

	c.statusMutex.RLock()
	chain := c.chain
	c.statusMutex.RUnlock()
	if chain == nil {
		return "chain head unknown"
	}
	if c.staleAfter > 0 && time.Since(chain.UpdatedAt) > c.staleAfter {
		return "chain head stale"
	}

	if c.db != nil {
		ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		if err := c.db.Ping(ctx); err != nil {
			return "database unavailable"
		}
	}
	return ""
}

// WatchChain polls the chain head every interval until ctx is done.
func (c *Checker) WatchChain(ctx context.Context, name string, src HeadSource, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		head, err := src.BlockNumber(ctx)
		if err != nil {
			if ctx.Err() == nil {
				c.logger.Error().
					Err(err).
					Str("chain", name).
					Msg("Error getting latest block")
			}
		} else {
			c.updateChainStatus(name, head)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (c *Checker) updateChainStatus(name string, lastBlock uint64) {
	c.statusMutex.Lock()
	defer c.statusMutex.Unlock()
	c.chain = &ChainStatus{
		Name:      name,
		LastBlock: lastBlock,
		UpdatedAt: time.Now(),
	}
}
