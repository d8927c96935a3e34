package models

import (
	"fmt"
	"strings"
)

// Asset identifies a transferable currency on the chain.
type Asset string

const (
	IMUA    Asset = "IMUA"
	MaoUSDT Asset = "maoUSDT"
	MaoUSDC Asset = "maoUSDC"
	// MaoEURC has no contract yet; transfers short-circuit with a notice.
	MaoEURC Asset = "maoEURC"
)

// NativeDecimals is the fixed-point precision of the native coin.
const NativeDecimals = 18

var allAssets = []Asset{IMUA, MaoUSDT, MaoUSDC, MaoEURC}

func (a Asset) String() string {
	return string(a)
}

func (a Asset) IsNative() bool {
	return a == IMUA
}

func (a Asset) IsPlaceholder() bool {
	return a == MaoEURC
}

// Assets lists every known asset in display order.
func Assets() []Asset {
	out := make([]Asset, len(allAssets))
	copy(out, allAssets)
	return out
}

// ParseAsset resolves a symbol case-insensitively.
func ParseAsset(s string) (Asset, error) {
	s = strings.TrimSpace(s)
	for _, a := range allAssets {
		if strings.EqualFold(s, string(a)) {
			return a, nil
		}
	}
	return "", fmt.Errorf("unknown asset %q", s)
}
