// Package wallet is the chain-facing side of a transfer: it reads native and
// token balances, signs and broadcasts transactions, and waits for receipts
// on a single EVM chain.
package wallet

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog"
)

var (
	ErrNoAccount     = errors.New("wallet: no account connected")
	ErrUserRejected  = errors.New("wallet: user rejected the request")
	ErrChainMismatch = errors.New("wallet: connected to the wrong chain")
	ErrReverted      = errors.New("wallet: transaction reverted")
)

// TxRequest describes a transaction about to be signed. It is what a
// confirmation prompt shows the user.
type TxRequest struct {
	From  common.Address
	To    common.Address
	Token *common.Address
	Value *big.Int
}

// ConfirmFunc approves or declines a transaction before it is signed.
// Returning false maps to ErrUserRejected.
type ConfirmFunc func(ctx context.Context, req TxRequest) (bool, error)

// Backend is the subset of ethclient.Client the wallet needs.
type Backend interface {
	bind.ContractBackend
	bind.DeployBackend
	ChainID(ctx context.Context) (*big.Int, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	BlockNumber(ctx context.Context) (uint64, error)
	Close()
}

var _ Backend = (*ethclient.Client)(nil)

// EVMWallet signs with a local key. A nil key gives a read-only wallet.
type EVMWallet struct {
	backend Backend
	key     *ecdsa.PrivateKey
	from    common.Address
	chainID *big.Int
	confirm ConfirmFunc
	logger  *zerolog.Logger
}

type Option func(*EVMWallet)

func WithConfirm(fn ConfirmFunc) Option {
	return func(w *EVMWallet) { w.confirm = fn }
}

func WithKey(key *ecdsa.PrivateKey) Option {
	return func(w *EVMWallet) {
		w.key = key
		if key != nil {
			w.from = crypto.PubkeyToAddress(key.PublicKey)
		}
	}
}

// Dial connects to the chain RPC and verifies it serves expectedChainID.
func Dial(ctx context.Context, rpcURL string, expectedChainID int64, logger *zerolog.Logger, opts ...Option) (*EVMWallet, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial chain rpc: %w", err)
	}
	w, err := New(ctx, client, expectedChainID, logger, opts...)
	if err != nil {
		client.Close()
		return nil, err
	}
	return w, nil
}

// New wraps an existing backend.
func New(ctx context.Context, backend Backend, expectedChainID int64, logger *zerolog.Logger, opts ...Option) (*EVMWallet, error) {
	w := &EVMWallet{backend: backend, logger: logger}
	for _, opt := range opts {
		opt(w)
	}
	if err := w.ensureChain(ctx, expectedChainID); err != nil {
		return nil, err
	}
	return w, nil
}

// ensureChain is the server-side stand-in for switching the wallet network:
// the RPC endpoint cannot be switched, so a mismatch is reported.
func (w *EVMWallet) ensureChain(ctx context.Context, expected int64) error {
	id, err := w.backend.ChainID(ctx)
	if err != nil {
		return fmt.Errorf("query chain id: %w", err)
	}
	if expected != 0 && id.Cmp(big.NewInt(expected)) != 0 {
		return fmt.Errorf("%w: want %d, got %s", ErrChainMismatch, expected, id)
	}
	w.chainID = id
	return nil
}

func (w *EVMWallet) ChainID() *big.Int {
	return new(big.Int).Set(w.chainID)
}

// Account returns the signing address.
func (w *EVMWallet) Account(_ context.Context) (common.Address, error) {
	if w.key == nil {
		return common.Address{}, ErrNoAccount
	}
	return w.from, nil
}

func (w *EVMWallet) NativeBalance(ctx context.Context, owner common.Address) (*big.Int, error) {
	bal, err := w.backend.BalanceAt(ctx, owner, nil)
	if err != nil {
		return nil, fmt.Errorf("native balance: %w", err)
	}
	return bal, nil
}

func (w *EVMWallet) TokenDecimals(ctx context.Context, token common.Address) (uint8, error) {
	d, err := newERC20(token, w.backend).decimals(ctx)
	if err != nil {
		return 0, fmt.Errorf("erc20 decimals %s: %w", token.Hex(), err)
	}
	return d, nil
}

func (w *EVMWallet) TokenBalance(ctx context.Context, token, owner common.Address) (*big.Int, error) {
	bal, err := newERC20(token, w.backend).balanceOf(ctx, owner)
	if err != nil {
		return nil, fmt.Errorf("erc20 balanceOf %s: %w", token.Hex(), err)
	}
	return bal, nil
}

// BlockNumber reports the chain head, used by readiness checks.
func (w *EVMWallet) BlockNumber(ctx context.Context) (uint64, error) {
	return w.backend.BlockNumber(ctx)
}

// SendNative transfers value wei to the recipient.
func (w *EVMWallet) SendNative(ctx context.Context, to common.Address, value *big.Int) (*types.Transaction, error) {
	if err := w.approve(ctx, TxRequest{From: w.from, To: to, Value: value}); err != nil {
		return nil, err
	}

	nonce, err := w.backend.PendingNonceAt(ctx, w.from)
	if err != nil {
		return nil, fmt.Errorf("pending nonce: %w", err)
	}
	gas, err := w.backend.EstimateGas(ctx, ethereum.CallMsg{From: w.from, To: &to, Value: value})
	if err != nil {
		return nil, fmt.Errorf("estimate gas: %w", err)
	}

	var txdata types.TxData
	head, err := w.backend.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("latest header: %w", err)
	}
	if head.BaseFee != nil {
		tip, err := w.backend.SuggestGasTipCap(ctx)
		if err != nil {
			return nil, fmt.Errorf("suggest tip: %w", err)
		}
		feeCap := new(big.Int).Add(tip, new(big.Int).Mul(head.BaseFee, big.NewInt(2)))
		txdata = &types.DynamicFeeTx{
			ChainID:   w.chainID,
			Nonce:     nonce,
			GasTipCap: tip,
			GasFeeCap: feeCap,
			Gas:       gas,
			To:        &to,
			Value:     value,
		}
	} else {
		price, err := w.backend.SuggestGasPrice(ctx)
		if err != nil {
			return nil, fmt.Errorf("suggest gas price: %w", err)
		}
		txdata = &types.LegacyTx{Nonce: nonce, GasPrice: price, Gas: gas, To: &to, Value: value}
	}

	signed, err := types.SignNewTx(w.key, types.LatestSignerForChainID(w.chainID), txdata)
	if err != nil {
		return nil, fmt.Errorf("sign transaction: %w", err)
	}
	if err := w.backend.SendTransaction(ctx, signed); err != nil {
		return nil, fmt.Errorf("send transaction: %w", err)
	}

	w.logger.Info().
		Str("txHash", signed.Hash().Hex()).
		Str("to", to.Hex()).
		Str("value", value.String()).
		Msg("Native transfer broadcast")
	return signed, nil
}

// SendToken calls transfer(to, value) on the token contract.
func (w *EVMWallet) SendToken(ctx context.Context, token, to common.Address, value *big.Int) (*types.Transaction, error) {
	if err := w.approve(ctx, TxRequest{From: w.from, To: to, Token: &token, Value: value}); err != nil {
		return nil, err
	}

	opts, err := bind.NewKeyedTransactorWithChainID(w.key, w.chainID)
	if err != nil {
		return nil, fmt.Errorf("transactor: %w", err)
	}
	opts.Context = ctx

	tx, err := newERC20(token, w.backend).transfer(opts, to, value)
	if err != nil {
		return nil, fmt.Errorf("erc20 transfer: %w", err)
	}

	w.logger.Info().
		Str("txHash", tx.Hash().Hex()).
		Str("token", token.Hex()).
		Str("to", to.Hex()).
		Str("value", value.String()).
		Msg("Token transfer broadcast")
	return tx, nil
}

// WaitMined blocks until tx is included. A failed receipt is ErrReverted.
func (w *EVMWallet) WaitMined(ctx context.Context, tx *types.Transaction) (*types.Receipt, error) {
	receipt, err := bind.WaitMined(ctx, w.backend, tx)
	if err != nil {
		return nil, fmt.Errorf("wait for %s: %w", tx.Hash().Hex(), err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return receipt, fmt.Errorf("%w: %s in block %s", ErrReverted, tx.Hash().Hex(), receipt.BlockNumber)
	}
	return receipt, nil
}

func (w *EVMWallet) approve(ctx context.Context, req TxRequest) error {
	if w.key == nil {
		return ErrNoAccount
	}
	if w.confirm == nil {
		return nil
	}
	ok, err := w.confirm(ctx, req)
	if err != nil {
		return fmt.Errorf("confirm transaction: %w", err)
	}
	if !ok {
		return ErrUserRejected
	}
	return nil
}

func (w *EVMWallet) Close() {
	w.backend.Close()
}
