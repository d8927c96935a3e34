package wallet

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/crypto"
)

var ErrNoKey = errors.New("wallet: no private key or keystore configured")

// PassphraseFunc supplies the keystore passphrase when it is not configured.
type PassphraseFunc func() (string, error)

// LoadKey resolves the signing key from a raw hex key or a keystore file.
// The raw key wins when both are set.
func LoadKey(privateKeyHex, keystorePath, passphrase string, prompt PassphraseFunc) (*ecdsa.PrivateKey, error) {
	if privateKeyHex != "" {
		key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(privateKeyHex), "0x"))
		if err != nil {
			return nil, fmt.Errorf("parse private key: %w", err)
		}
		return key, nil
	}
	if keystorePath == "" {
		return nil, ErrNoKey
	}

	blob, err := os.ReadFile(keystorePath)
	if err != nil {
		return nil, fmt.Errorf("read keystore: %w", err)
	}
	if passphrase == "" && prompt != nil {
		if passphrase, err = prompt(); err != nil {
			return nil, fmt.Errorf("read passphrase: %w", err)
		}
	}

	k, err := keystore.DecryptKey(blob, passphrase)
	if err != nil {
		return nil, fmt.Errorf("decrypt keystore %s: %w", keystorePath, err)
	}
	return k.PrivateKey, nil
}
