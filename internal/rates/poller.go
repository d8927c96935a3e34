package rates

import (
	"context"
	"monallopay/internal/metrics"
	"monallopay/internal/models"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Quoter is the price source the poller reads.
type Quoter interface {
	Ticker(ctx context.Context, instID string) (decimal.Decimal, error)
}

// Poller keeps the last good rate for one pair. Until the first successful
// fetch the rate is 1.
type Poller struct {
	quoter   Quoter
	pair     string
	interval time.Duration
	logger   *zerolog.Logger

	mu      sync.RWMutex
	current models.ExchangeRate
	rate    decimal.Decimal
}

func NewPoller(quoter Quoter, pair string, interval time.Duration, logger *zerolog.Logger) *Poller {
	return &Poller{
		quoter:   quoter,
		pair:     pair,
		interval: interval,
		logger:   logger,
		current:  models.ExchangeRate{Pair: pair, Rate: "1"},
		rate:     decimal.NewFromInt(1),
	}
}

// Current returns the last known quote.
func (p *Poller) Current() models.ExchangeRate {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.current
}

// Rate returns the last known rate as a decimal.
func (p *Poller) Rate() decimal.Decimal {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.rate
}

// Refresh fetches a new quote. On error the previous quote is kept.
func (p *Poller) Refresh(ctx context.Context) error {
	start := time.Now()
	last, err := p.quoter.Ticker(ctx, p.pair)
	metrics.PollLatency.WithLabelValues("rates").Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.PollErrors.WithLabelValues("rates", p.pair).Inc()
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.rate = last
	p.current = models.ExchangeRate{Pair: p.pair, Rate: last.String(), UpdatedAt: time.Now().UTC()}
	return nil
}

// Run refreshes immediately and then every interval until ctx is done.
func (p *Poller) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		if err := p.Refresh(ctx); err != nil && ctx.Err() == nil {
			p.logger.Warn().Err(err).Str("pair", p.pair).Msg("Failed to fetch exchange rate")
		}
		select {
		case <-ctx.Done():
			p.logger.Info().Msg("Rate poller shutting down")
			return nil
		case <-ticker.C:
		}
	}
}
