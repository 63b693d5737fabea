// Package chain defines the read-only port to on-chain balance and identity data.
package chain

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

// ErrUnavailable is returned when the chain cannot be reached or answered badly.
var ErrUnavailable = errors.New("chain: data unavailable")

// Identity is one record of the on-chain identity registry.
type Identity struct {
	TokenID  uint64 `json:"token_id"`
	Owner    string `json:"owner"`
	TokenURI string `json:"token_uri,omitempty"`
}

// Reader reads on-chain state. It never writes or signs.
type Reader interface {
	// Balance returns the native balance of address, in whole units.
	Balance(ctx context.Context, address string) (decimal.Decimal, error)

	// Registry lists the identities minted in the registry contract.
	Registry(ctx context.Context) ([]Identity, error)
}
