// Package assets maps asset symbols to their token contracts.
package assets

import (
	"fmt"
	"monallopay/internal/addrcodec"
	"monallopay/internal/config"
	"monallopay/internal/models"

	"github.com/ethereum/go-ethereum/common"
)

// Token is a configured ERC20-style contract.
type Token struct {
	Asset    models.Asset
	Contract common.Address
	// Decimals is a configured hint; zero means read decimals() on chain.
	Decimals uint8
}

// Registry resolves assets to contracts. It is immutable after creation.
type Registry struct {
	tokens map[models.Asset]Token
}

// NewRegistry validates the configured contracts. Empty or zero addresses
// leave the asset unbound.
func NewRegistry(cfg map[models.Asset]config.AssetConfig) (*Registry, error) {
	r := &Registry{tokens: make(map[models.Asset]Token, len(cfg))}
	for asset, ac := range cfg {
		if asset.IsNative() {
			return nil, fmt.Errorf("assets: native %s cannot have a contract", asset)
		}
		if ac.Contract == "" {
			continue
		}
		if !addrcodec.ValidateHex(ac.Contract) {
			return nil, fmt.Errorf("assets: %s contract %q is not a hex address", asset, ac.Contract)
		}
		addr := common.HexToAddress(ac.Contract)
		if addr == (common.Address{}) {
			continue
		}
		r.tokens[asset] = Token{Asset: asset, Contract: addr, Decimals: ac.Decimals}
	}
	return r, nil
}

// Token returns the contract binding for asset.
func (r *Registry) Token(asset models.Asset) (Token, bool) {
	t, ok := r.tokens[asset]
	return t, ok
}

// ComingSoon reports whether asset is the placeholder and nothing has been
// bound to it yet.
func (r *Registry) ComingSoon(asset models.Asset) bool {
	if !asset.IsPlaceholder() {
		return false
	}
	_, ok := r.tokens[asset]
	return !ok
}

// Tokens lists bound tokens in display order.
func (r *Registry) Tokens() []Token {
	var out []Token
	for _, a := range models.Assets() {
		if t, ok := r.tokens[a]; ok {
			out = append(out, t)
		}
	}
	return out
}
