// Package ledger defines the reputation ledger domain: agents, factions,
// cred balances, tiers and the state machine that mutates them.
//
// State is not safe for concurrent use; the service layer owns serialization
// and persistence.
package ledger

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/nice-bills/substrate/internal/domain"
)

// InfinitySymbol is how the genesis sentinel balance is rendered.
const InfinitySymbol = "∞"

// Cred is a non-negative cred amount, or the unbounded genesis sentinel.
// The zero value is a finite zero balance.
type Cred struct {
	amount   decimal.Decimal
	infinite bool
}

// Infinite is the sentinel balance held by the genesis agent.
var Infinite = Cred{infinite: true}

// CredFromInt is a convenience for whole-number amounts.
func CredFromInt(n int64) Cred {
	return Cred{amount: decimal.NewFromInt(n)}
}

// ParseCred parses a decimal string or the infinity symbol.
func ParseCred(s string) (Cred, error) {
	s = strings.TrimSpace(s)
	if s == InfinitySymbol || strings.EqualFold(s, "inf") || strings.EqualFold(s, "infinity") {
		return Infinite, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Cred{}, fmt.Errorf("parse cred %q: %w", s, domain.ErrInvalidInput)
	}
	return Cred{amount: d}, nil
}

// ParseAmount parses a strictly positive finite amount, as required by every
// balance-moving operation.
func ParseAmount(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("amount %q is not a number: %w", s, domain.ErrInvalidInput)
	}
	if !d.IsPositive() {
		return decimal.Decimal{}, fmt.Errorf("amount must be greater than zero: %w", domain.ErrInvalidInput)
	}
	return d, nil
}

// IsInfinite reports whether c is the genesis sentinel.
func (c Cred) IsInfinite() bool { return c.infinite }

// Decimal returns the finite amount. It is zero for the sentinel.
func (c Cred) Decimal() decimal.Decimal {
	if c.infinite {
		return decimal.Decimal{}
	}
	return c.amount
}

// Covers reports whether c can fund a debit of d.
func (c Cred) Covers(d decimal.Decimal) bool {
	return c.infinite || c.amount.GreaterThanOrEqual(d)
}

// Add returns c + d. The sentinel absorbs any finite amount.
func (c Cred) Add(d decimal.Decimal) Cred {
	if c.infinite {
		return c
	}
	return Cred{amount: c.amount.Add(d)}
}

// Sub returns c - d. The sentinel is never reduced.
func (c Cred) Sub(d decimal.Decimal) Cred {
	if c.infinite {
		return c
	}
	return Cred{amount: c.amount.Sub(d)}
}

// Cmp compares two balances; the sentinel is greater than every finite amount.
func (c Cred) Cmp(o Cred) int {
	switch {
	case c.infinite && o.infinite:
		return 0
	case c.infinite:
		return 1
	case o.infinite:
		return -1
	}
	return c.amount.Cmp(o.amount)
}

// IsNegative reports whether a finite balance dropped below zero.
func (c Cred) IsNegative() bool {
	return !c.infinite && c.amount.IsNegative()
}

func (c Cred) String() string {
	if c.infinite {
		return InfinitySymbol
	}
	return c.amount.String()
}

// MarshalJSON encodes the amount as a decimal string, or "∞" for the sentinel.
func (c Cred) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

// UnmarshalJSON accepts a decimal string, a bare JSON number or "∞".
func (c *Cred) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return fmt.Errorf("cred must be a string or number: %w", err)
		}
		s = n.String()
	}
	parsed, err := ParseCred(s)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}
