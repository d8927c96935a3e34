// Package addrcodec converts chain addresses between their bech32 and
// 0x-prefixed hex forms and validates hex address well-formedness.
package addrcodec

import (
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"

	"github.com/btcsuite/btcd/btcutil/bech32"
)

// DefaultHRP is the human-readable prefix of Imuachain addresses.
const DefaultHRP = "imua"

// AddressLength is the payload size of an account address in bytes.
const AddressLength = 20

var (
	hexAddressRegex = regexp.MustCompile(`^0x[a-fA-F0-9]{40}$`)
	hashRegex       = regexp.MustCompile(`^[a-fA-F0-9]{64}$`)
)

// FormatError reports a malformed address.
type FormatError struct {
	Address string
	Reason  string
	Err     error
}

func (e *FormatError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid address %q: %s: %v", e.Address, e.Reason, e.Err)
	}
	return fmt.Sprintf("invalid address %q: %s", e.Address, e.Reason)
}

func (e *FormatError) Unwrap() error {
	return e.Err
}

func formatErr(addr, reason string, err error) error {
	return &FormatError{Address: addr, Reason: reason, Err: err}
}

// Decode converts a bech32 address to its 0x-prefixed hex form. The decoded
// prefix must equal hrp and the payload must be exactly 20 bytes.
func Decode(hrp, address string) (string, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return "", formatErr(address, "empty address", nil)
	}

	prefix, words, err := bech32.Decode(address)
	if err != nil {
		return "", formatErr(address, "bech32 decode failed", err)
	}
	if prefix != strings.ToLower(hrp) {
		return "", formatErr(address, fmt.Sprintf("expected prefix %q, got %q", hrp, prefix), nil)
	}

	data, err := bech32.ConvertBits(words, 5, 8, false)
	if err != nil {
		return "", formatErr(address, "payload is not a byte sequence", err)
	}
	if len(data) != AddressLength {
		return "", formatErr(address, fmt.Sprintf("payload is %d bytes, want %d", len(data), AddressLength), nil)
	}

	return "0x" + hex.EncodeToString(data), nil
}

// Encode converts a hex address (with or without 0x) to bech32 under hrp.
func Encode(hrp, hexAddress string) (string, error) {
	raw := strings.TrimPrefix(strings.TrimPrefix(strings.TrimSpace(hexAddress), "0x"), "0X")
	if raw == "" {
		return "", formatErr(hexAddress, "empty address", nil)
	}
	if len(raw)%2 != 0 {
		return "", formatErr(hexAddress, "odd-length hex", nil)
	}

	data, err := hex.DecodeString(raw)
	if err != nil {
		return "", formatErr(hexAddress, "not hex", err)
	}

	words, err := bech32.ConvertBits(data, 8, 5, true)
	if err != nil {
		return "", formatErr(hexAddress, "regroup payload", err)
	}

	out, err := bech32.Encode(strings.ToLower(hrp), words)
	if err != nil {
		return "", formatErr(hexAddress, "bech32 encode failed", err)
	}
	return out, nil
}

// ValidateHex reports whether address is 0x followed by exactly 40 hex
// digits. This is the check every transfer recipient must pass.
func ValidateHex(address string) bool {
	return hexAddressRegex.MatchString(address)
}

// ValidateContactAddress is the address book check: a hex address or a bare
// 64-digit hash-style string.
func ValidateContactAddress(address string) bool {
	return hexAddressRegex.MatchString(address) || hashRegex.MatchString(address)
}

// Normalize turns a user supplied recipient into the hex form expected by
// the wallet. Bech32 input must carry hrp; hex input must be 42 characters.
func Normalize(hrp, address string) (string, error) {
	address = strings.TrimSpace(address)
	switch {
	case address == "":
		return "", formatErr(address, "empty address", nil)
	case strings.HasPrefix(strings.ToLower(address), strings.ToLower(hrp)+"1"):
		return Decode(hrp, address)
	case strings.HasPrefix(address, "0x"):
		if len(address) != 42 {
			return "", formatErr(address, fmt.Sprintf("hex address length %d, want 42", len(address)), nil)
		}
		if !ValidateHex(address) {
			return "", formatErr(address, "hex address contains non-hex characters", nil)
		}
		return address, nil
	default:
		return "", formatErr(address, "unrecognized address format", nil)
	}
}

// ToChainAddress renders a hex address in the chain's bech32 form.
func ToChainAddress(hrp, hexAddress string) (string, error) {
	return Encode(hrp, strings.ToLower(hexAddress))
}

// Truncate shortens an address for display, keeping start leading and end
// trailing characters. Negative counts are treated as zero.
func Truncate(address string, start, end int) string {
	start, end = max(start, 0), max(end, 0)
	if len(address) <= start+end {
		return address
	}
	return address[:start] + "..." + address[len(address)-end:]
}
