package transfer

import (
	"context"
	"errors"
	"fmt"
	"monallopay/internal/addrcodec"
	"monallopay/internal/wallet"
	"net"

	"github.com/ethereum/go-ethereum/rpc"
)

var (
	ErrValidation          = errors.New("invalid transfer request")
	ErrNotConnected        = errors.New("no wallet account connected")
	ErrConfiguration       = errors.New("asset is not configured")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrUserRejected        = errors.New("transfer rejected by user")
	ErrNetwork             = errors.New("network error")
	ErrChain               = errors.New("chain error")
	ErrTransferInFlight    = errors.New("another transfer is in progress")
)

// userRejectedCode is the EIP-1193 code wallets return when the user
// declines a request.
const userRejectedCode = 4001

// Kind groups transfer errors by how the caller should present them.
type Kind int

const (
	KindNone Kind = iota
	KindValidation
	KindFormat
	KindNotConnected
	KindConfiguration
	KindInsufficientBalance
	KindUserRejected
	KindNetwork
	KindChain
	KindInFlight
)

var kindNames = map[Kind]string{
	KindNone:                "none",
	KindValidation:          "validation",
	KindFormat:              "format",
	KindNotConnected:        "not_connected",
	KindConfiguration:       "configuration",
	KindInsufficientBalance: "insufficient_balance",
	KindUserRejected:        "user_rejected",
	KindNetwork:             "network",
	KindChain:               "chain",
	KindInFlight:            "in_flight",
}

// Message IDs understood by the i18n bundle.
var kindMessages = map[Kind]string{
	KindNone:                "TransferSuccess",
	KindValidation:          "TransferInvalidInput",
	KindFormat:              "InvalidAddressFormat",
	KindNotConnected:        "WalletNotConnected",
	KindConfiguration:       "AssetUnsupported",
	KindInsufficientBalance: "InsufficientBalance",
	KindUserRejected:        "TransferCancelled",
	KindNetwork:             "NetworkError",
	KindChain:               "TransferFailed",
	KindInFlight:            "TransferInProgress",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// MessageID is the localization key for the status shown to the user.
func (k Kind) MessageID() string {
	return kindMessages[k]
}

// Retryable reports whether resubmitting the same request may succeed.
func (k Kind) Retryable() bool {
	return k == KindNetwork || k == KindChain || k == KindInFlight
}

// KindOf classifies any error returned by Service.Transfer.
func KindOf(err error) Kind {
	var fe *addrcodec.FormatError
	switch {
	case err == nil:
		return KindNone
	case errors.As(err, &fe):
		return KindFormat
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrNotConnected):
		return KindNotConnected
	case errors.Is(err, ErrConfiguration):
		return KindConfiguration
	case errors.Is(err, ErrInsufficientBalance):
		return KindInsufficientBalance
	case errors.Is(err, ErrUserRejected):
		return KindUserRejected
	case errors.Is(err, ErrNetwork):
		return KindNetwork
	case errors.Is(err, ErrTransferInFlight):
		return KindInFlight
	default:
		return KindChain
	}
}

// classify maps a wallet or RPC failure onto the taxonomy, keeping the
// original error in the chain for display.
func classify(err error) error {
	var (
		rpcErr  rpc.Error
		httpErr rpc.HTTPError
		netErr  net.Error
	)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, wallet.ErrUserRejected), errors.Is(err, context.Canceled):
		return fmt.Errorf("%w: %w", ErrUserRejected, err)
	case errors.As(err, &rpcErr) && rpcErr.ErrorCode() == userRejectedCode:
		return fmt.Errorf("%w: %w", ErrUserRejected, err)
	case errors.Is(err, wallet.ErrNoAccount):
		return fmt.Errorf("%w: %w", ErrNotConnected, err)
	case errors.Is(err, context.DeadlineExceeded), errors.As(err, &httpErr), errors.As(err, &netErr):
		return fmt.Errorf("%w: %w", ErrNetwork, err)
	default:
		return fmt.Errorf("%w: %w", ErrChain, err)
	}
}
