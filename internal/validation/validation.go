package validation

import (
	"errors"
	"fmt"
	"monallopay/internal/addrcodec"
	"monallopay/internal/amount"
	"monallopay/internal/models"
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	MaxContactNameLength = 64
	MaxPageSize          = 100
	DefaultPageSize      = 10
)

var (
	txHashRegex = regexp.MustCompile(`^0x[a-fA-F0-9]{64}$`)
	urlRegex    = regexp.MustCompile(`^https?://[^\s/$.?#].[^\s]*$`)
)

// ErrInvalid marks every error returned by this package.
var ErrInvalid = errors.New("validation failed")

func invalid(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalid, fmt.Sprintf(format, args...))
}

// ValidateTransferRecord checks a record submitted for persistence. The
// recipient must already be in hex form.
func ValidateTransferRecord(rec models.TransferRecord) error {
	if _, err := amount.Parse(rec.Amount); err != nil {
		return invalid("amount: %v", err)
	}
	if _, err := models.ParseAsset(rec.Asset.String()); err != nil {
		return invalid("asset: %v", err)
	}
	if !addrcodec.ValidateHex(rec.Sender) {
		return invalid("sender %q is not a hex address", rec.Sender)
	}
	if !addrcodec.ValidateHex(rec.Recipient) {
		return invalid("recipient %q is not a hex address", rec.Recipient)
	}
	if err := ValidateTxHash(rec.TxHash); err != nil {
		return err
	}
	if rec.Timestamp.IsZero() {
		return invalid("timestamp is required")
	}
	return nil
}

// ValidateTxHash validates an EVM transaction hash.
func ValidateTxHash(txHash string) error {
	if txHash == "" {
		return invalid("transaction hash cannot be empty")
	}
	if !txHashRegex.MatchString(txHash) {
		return invalid("invalid transaction hash %q", txHash)
	}
	return nil
}

// ValidateContact checks a contact before it is stored. Addresses use the
// address book rule, which also admits 64-digit hash-style strings.
func ValidateContact(name, address string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return invalid("contact name cannot be empty")
	}
	if utf8.RuneCountInString(name) > MaxContactNameLength {
		return invalid("contact name longer than %d characters", MaxContactNameLength)
	}
	if !addrcodec.ValidateContactAddress(address) {
		return invalid("invalid contact address %q", address)
	}
	return nil
}

// NormalizePaging clamps page and limit into their accepted ranges.
func NormalizePaging(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	return page, limit
}

// ValidateURL validates URL format
func ValidateURL(url string) error {
	if url == "" {
		return invalid("URL cannot be empty")
	}
	if !urlRegex.MatchString(url) {
		return invalid("invalid URL format %q", url)
	}
	return nil
}
