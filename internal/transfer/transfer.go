// Package transfer runs a single transfer attempt from user input to a
// settled outcome: validate, normalize the recipient, dispatch a native or
// token transfer, wait for inclusion, then record and refresh best-effort.
package transfer

import (
	"context"
	"fmt"
	"math/big"
	"monallopay/internal/addrcodec"
	"monallopay/internal/amount"
	"monallopay/internal/assets"
	"monallopay/internal/metrics"
	"monallopay/internal/models"
	"strings"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/rs/zerolog"
)

// State is the position of an attempt in the transfer lifecycle.
type State int

const (
	Idle State = iota
	Validating
	Dispatching
	AwaitingConfirmation
	Recording
	Settled
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Validating:
		return "validating"
	case Dispatching:
		return "dispatching"
	case AwaitingConfirmation:
		return "awaiting_confirmation"
	case Recording:
		return "recording"
	case Settled:
		return "settled"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Message IDs for notices and warnings.
const (
	NoticeComingSoon    = "AssetComingSoon"
	WarningRecordFailed = "RecordFailed"
)

// Wallet is the chain side of a transfer.
type Wallet interface {
	Account(ctx context.Context) (common.Address, error)
	TokenDecimals(ctx context.Context, token common.Address) (uint8, error)
	TokenBalance(ctx context.Context, token, owner common.Address) (*big.Int, error)
	SendNative(ctx context.Context, to common.Address, value *big.Int) (*types.Transaction, error)
	SendToken(ctx context.Context, token, to common.Address, value *big.Int) (*types.Transaction, error)
	WaitMined(ctx context.Context, tx *types.Transaction) (*types.Receipt, error)
}

// Registry resolves assets to token contracts.
type Registry interface {
	Token(asset models.Asset) (assets.Token, bool)
	ComingSoon(asset models.Asset) bool
}

// Recorder persists a transfer record to the history backend.
type Recorder interface {
	RecordTransfer(ctx context.Context, rec models.TransferRecord) error
}

// Notice is a non-error message for the user.
type Notice struct {
	MessageID string
	Asset     models.Asset
}

type Notifier interface {
	Notify(n Notice)
}

// BalanceRefresher re-reads balances after a successful transfer.
type BalanceRefresher interface {
	Refresh(ctx context.Context) error
}

// FormResetter clears the transfer inputs once a transfer settles
// successfully.
type FormResetter interface {
	ClearForm()
}

// Request is the user input for one attempt. Recipient may be bech32 or hex.
type Request struct {
	Asset     models.Asset
	Amount    string
	Recipient string
}

// Result describes a finished attempt. A successful transfer is reported as
// such even when Warnings is non-empty.
type Result struct {
	State    State
	Success  bool
	TxHash   string
	Record   *models.TransferRecord
	Notice   string
	Warnings []string
	Err      error
}

// Service runs transfers for one wallet session. At most one attempt is in
// flight at a time.
type Service struct {
	wallet    Wallet
	registry  Registry
	recorder  Recorder
	notifier  Notifier
	refresher BalanceRefresher
	form      FormResetter
	onState   func(State)
	hrp       string
	now       func() time.Time
	inFlight  atomic.Bool
	logger    *zerolog.Logger
}

type Option func(*Service)

func WithRecorder(r Recorder) Option {
	return func(s *Service) { s.recorder = r }
}

func WithNotifier(n Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

func WithRefresher(r BalanceRefresher) Option {
	return func(s *Service) { s.refresher = r }
}

func WithForm(f FormResetter) Option {
	return func(s *Service) { s.form = f }
}

// WithStateHook observes every state transition, e.g. to render progress.
func WithStateHook(fn func(State)) Option {
	return func(s *Service) { s.onState = fn }
}

// WithAddressPrefix sets the bech32 prefix accepted for recipients.
func WithAddressPrefix(hrp string) Option {
	return func(s *Service) { s.hrp = hrp }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(w Wallet, registry Registry, logger *zerolog.Logger, opts ...Option) *Service {
	s := &Service{
		wallet:   w,
		registry: registry,
		hrp:      addrcodec.DefaultHRP,
		now:      time.Now,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Transfer runs one attempt. The returned error is nil on success and when
// the asset is not yet available; otherwise it is classified by KindOf and
// also stored in Result.Err.
func (s *Service) Transfer(ctx context.Context, req Request) (*Result, error) {
	res := &Result{State: Idle}

	if !s.inFlight.CompareAndSwap(false, true) {
		return res, s.fail(res, req.Asset, ErrTransferInFlight)
	}
	defer s.inFlight.Store(false)

	s.transition(res, Validating)

	if strings.TrimSpace(req.Amount) == "" {
		return res, s.fail(res, req.Asset, fmt.Errorf("%w: amount is required", ErrValidation))
	}
	if strings.TrimSpace(req.Recipient) == "" {
		return res, s.fail(res, req.Asset, fmt.Errorf("%w: recipient is required", ErrValidation))
	}
	asset, err := models.ParseAsset(req.Asset.String())
	if err != nil {
		return res, s.fail(res, req.Asset, fmt.Errorf("%w: %w", ErrValidation, err))
	}
	req.Asset = asset

	if s.registry.ComingSoon(req.Asset) {
		// Not a failure: the attempt never starts.
		res.State = Idle
		res.Notice = NoticeComingSoon
		if s.notifier != nil {
			s.notifier.Notify(Notice{MessageID: NoticeComingSoon, Asset: req.Asset})
		}
		metrics.ComingSoonNotices.Inc()
		s.logger.Info().Str("asset", req.Asset.String()).Msg("Asset not yet available")
		return res, nil
	}

	value, err := amount.Parse(req.Amount)
	if err != nil {
		return res, s.fail(res, req.Asset, fmt.Errorf("%w: %w", ErrValidation, err))
	}

	sender, err := s.wallet.Account(ctx)
	if err != nil {
		return res, s.fail(res, req.Asset, classify(err))
	}

	s.transition(res, Dispatching)
	start := time.Now()

	recipientHex, err := addrcodec.Normalize(s.hrp, req.Recipient)
	if err != nil {
		return res, s.fail(res, req.Asset, err)
	}
	recipient := common.HexToAddress(recipientHex)

	tx, err := s.dispatch(ctx, req.Asset, value.String(), sender, recipient)
	if err != nil {
		return res, s.fail(res, req.Asset, err)
	}
	res.TxHash = tx.Hash().Hex()

	s.transition(res, AwaitingConfirmation)
	if _, err = s.wallet.WaitMined(ctx, tx); err != nil {
		return res, s.fail(res, req.Asset, classify(err))
	}
	metrics.TransferDuration.WithLabelValues(req.Asset.String()).Observe(time.Since(start).Seconds())

	s.transition(res, Recording)
	rec := models.TransferRecord{
		Amount:    value.String(),
		Asset:     req.Asset,
		Sender:    sender.Hex(),
		Recipient: recipientHex,
		TxHash:    res.TxHash,
		Timestamp: s.now().UTC(),
	}
	res.Record = &rec
	s.record(ctx, res, rec)

	s.transition(res, Settled)
	res.Success = true
	metrics.TransfersTotal.WithLabelValues(req.Asset.String(), KindNone.String()).Inc()
	s.logger.Info().
		Str("asset", req.Asset.String()).
		Str("amount", rec.Amount).
		Str("recipient", recipientHex).
		Str("txHash", res.TxHash).
		Msg("Transfer settled")

	if s.form != nil {
		s.form.ClearForm()
	}
	s.refresh(ctx, res)

	return res, nil
}

// dispatch sends the transaction for asset. Token transfers check the
// sender's balance first and send nothing when it is short.
func (s *Service) dispatch(ctx context.Context, asset models.Asset, value string, sender, to common.Address) (*types.Transaction, error) {
	if asset.IsNative() {
		wei, err := amount.ToBaseUnits(value, models.NativeDecimals)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrValidation, err)
		}
		tx, err := s.wallet.SendNative(ctx, to, wei)
		if err != nil {
			return nil, classify(err)
		}
		return tx, nil
	}

	token, ok := s.registry.Token(asset)
	if !ok {
		return nil, fmt.Errorf("%w: no contract for %s", ErrConfiguration, asset)
	}

	decimals, err := s.wallet.TokenDecimals(ctx, token.Contract)
	if err != nil {
		return nil, classify(err)
	}
	units, err := amount.ToBaseUnits(value, decimals)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrValidation, err)
	}

	balance, err := s.wallet.TokenBalance(ctx, token.Contract, sender)
	if err != nil {
		return nil, classify(err)
	}
	if balance.Cmp(units) < 0 {
		return nil, fmt.Errorf("%w: have %s, need %s %s", ErrInsufficientBalance,
			amount.FromBaseUnits(balance, decimals), value, asset)
	}

	tx, err := s.wallet.SendToken(ctx, token.Contract, to, units)
	if err != nil {
		return nil, classify(err)
	}
	return tx, nil
}

// record writes the history entry. Failures become warnings only.
func (s *Service) record(ctx context.Context, res *Result, rec models.TransferRecord) {
	if s.recorder == nil {
		return
	}
	if err := s.recorder.RecordTransfer(ctx, rec); err != nil {
		res.Warnings = append(res.Warnings, WarningRecordFailed)
		metrics.RecordFailures.WithLabelValues(rec.Asset.String()).Inc()
		s.logger.Warn().
			Err(err).
			Str("txHash", rec.TxHash).
			Msg("Transfer succeeded on chain but recording it failed")
	}
}

func (s *Service) refresh(ctx context.Context, res *Result) {
	if s.refresher == nil {
		return
	}
	if err := s.refresher.Refresh(ctx); err != nil {
		s.logger.Warn().
			Err(err).
			Str("txHash", res.TxHash).
			Msg("Balance refresh after transfer failed")
	}
}

func (s *Service) transition(res *Result, next State) {
	res.State = next
	s.logger.Debug().Str("state", next.String()).Msg("Transfer state")
	if s.onState != nil {
		s.onState(next)
	}
}

func (s *Service) fail(res *Result, asset models.Asset, err error) error {
	res.Err = err
	kind := KindOf(err)
	metrics.TransfersTotal.WithLabelValues(asset.String(), kind.String()).Inc()

	if kind == KindInFlight {
		// The running attempt owns the state; this one never started.
		return err
	}

	s.transition(res, Settled)
	ev := s.logger.Error()
	if kind == KindUserRejected {
		ev = s.logger.Info()
	}
	ev.Err(err).
		Str("asset", asset.String()).
		Str("kind", kind.String()).
		Str("txHash", res.TxHash).
		Msg("Transfer failed")
	return err
}
