// Package balance keeps the connected account's native and token balances
// fresh by polling the chain.
package balance

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"monallopay/internal/amount"
	"monallopay/internal/assets"
	"monallopay/internal/metrics"
	"monallopay/internal/models"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

var ErrNoAccount = errors.New("balance: no account")

// Reader is the chain read side of the wallet.
type Reader interface {
	NativeBalance(ctx context.Context, owner common.Address) (*big.Int, error)
	TokenDecimals(ctx context.Context, token common.Address) (uint8, error)
	TokenBalance(ctx context.Context, token, owner common.Address) (*big.Int, error)
}

// Poller refreshes balances on a fixed interval. Each asset's entry is only
// ever replaced whole, so a periodic refresh racing a post-transfer refresh
// resolves to whichever finished last.
type Poller struct {
	reader   Reader
	tokens   []assets.Token
	interval time.Duration
	logger   *zerolog.Logger

	mu       sync.RWMutex
	owner    common.Address
	hasOwner bool
	balances map[models.Asset]string
	decimals map[common.Address]uint8
	onUpdate func(map[models.Asset]string)
}

func NewPoller(reader Reader, registry *assets.Registry, interval time.Duration, logger *zerolog.Logger) *Poller {
	p := &Poller{
		reader:   reader,
		tokens:   registry.Tokens(),
		interval: interval,
		logger:   logger,
		decimals: make(map[common.Address]uint8),
	}
	p.balances = p.zero()
	return p
}

func (p *Poller) zero() map[models.Asset]string {
	out := map[models.Asset]string{models.IMUA: "0"}
	for _, t := range p.tokens {
		out[t.Asset] = "0"
	}
	return out
}

// SetAccount switches the watched account and resets every balance to zero.
// An empty or malformed account disconnects. It matches
// session.AccountListener.
func (p *Poller) SetAccount(account string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.balances = p.zero()
	if !common.IsHexAddress(account) {
		p.hasOwner = false
		p.owner = common.Address{}
		return
	}
	p.owner = common.HexToAddress(account)
	p.hasOwner = true
}

// Balances returns a copy of the latest balances as decimal strings.
func (p *Poller) Balances() map[models.Asset]string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make(map[models.Asset]string, len(p.balances))
	for k, v := range p.balances {
		out[k] = v
	}
	return out
}

// Refresh reads every balance once. A failed native read keeps the last
// value; a failed token read shows zero. The first error is returned after
// all reads finish.
func (p *Poller) Refresh(ctx context.Context) error {
	p.mu.RLock()
	owner, ok := p.owner, p.hasOwner
	p.mu.RUnlock()
	if !ok {
		return ErrNoAccount
	}

	start := time.Now()
	defer func() {
		metrics.PollLatency.WithLabelValues("balance").Observe(time.Since(start).Seconds())
	}()

	var g errgroup.Group
	g.Go(func() error {
		wei, err := p.reader.NativeBalance(ctx, owner)
		if err != nil {
			metrics.PollErrors.WithLabelValues("balance", models.IMUA.String()).Inc()
			return fmt.Errorf("%s balance: %w", models.IMUA, err)
		}
		p.store(owner, models.IMUA, amount.FromBaseUnits(wei, models.NativeDecimals))
		return nil
	})
	for _, token := range p.tokens {
		token := token
		g.Go(func() error {
			value, err := p.tokenBalance(ctx, token, owner)
			if err != nil {
				metrics.PollErrors.WithLabelValues("balance", token.Asset.String()).Inc()
				p.store(owner, token.Asset, "0")
				return fmt.Errorf("%s balance: %w", token.Asset, err)
			}
			p.store(owner, token.Asset, value)
			return nil
		})
	}
	return g.Wait()
}

func (p *Poller) tokenBalance(ctx context.Context, token assets.Token, owner common.Address) (string, error) {
	decimals, err := p.tokenDecimals(ctx, token)
	if err != nil {
		return "", err
	}
	raw, err := p.reader.TokenBalance(ctx, token.Contract, owner)
	if err != nil {
		return "", err
	}
	return amount.FromBaseUnits(raw, decimals), nil
}

// tokenDecimals prefers the configured hint, then a cached on-chain value.
func (p *Poller) tokenDecimals(ctx context.Context, token assets.Token) (uint8, error) {
	if token.Decimals != 0 {
		return token.Decimals, nil
	}
	p.mu.RLock()
	d, ok := p.decimals[token.Contract]
	p.mu.RUnlock()
	if ok {
		return d, nil
	}
	d, err := p.reader.TokenDecimals(ctx, token.Contract)
	if err != nil {
		return 0, err
	}
	p.mu.Lock()
	p.decimals[token.Contract] = d
	p.mu.Unlock()
	return d, nil
}

// store drops results read for an account that is no longer watched.
func (p *Poller) store(owner common.Address, asset models.Asset, value string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.hasOwner || p.owner != owner {
		return
	}
	p.balances[asset] = value
}

// OnUpdate registers fn to receive a copy of the balances after every
// periodic refresh that had an account to read.
func (p *Poller) OnUpdate(fn func(map[models.Asset]string)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onUpdate = fn
}

// Run refreshes immediately and then on every tick until ctx is done.
func (p *Poller) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			p.logger.Info().Msg("Balance poller shutting down")
			return nil
		case <-ticker.C:
			p.tick(ctx)
		}
	}
}

func (p *Poller) tick(ctx context.Context) {
	err := p.Refresh(ctx)
	switch {
	case errors.Is(err, ErrNoAccount), ctx.Err() != nil:
		return
	case err != nil:
		p.logger.Warn().Err(err).Msg("Balance refresh failed")
	}

	p.mu.RLock()
	fn := p.onUpdate
	p.mu.RUnlock()
	if fn != nil {
		fn(p.Balances())
	}
}

// TotalValue estimates the portfolio in USD: the native coin at nativeRate,
// stablecoins at par. Unparseable balances count as zero.
func TotalValue(balances map[models.Asset]string, nativeRate decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for asset, s := range balances {
		v, err := decimal.NewFromString(s)
		if err != nil {
			continue
		}
		if asset.IsNative() {
			v = v.Mul(nativeRate)
		}
		total = total.Add(v)
	}
	return total
}
