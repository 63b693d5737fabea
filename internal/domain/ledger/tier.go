package ledger

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Tier is a named rank derived from an agent's cred balance.
type Tier int

// Tiers in ascending order. Genesis is never derived from a balance.
const (
	TierVoid Tier = iota
	TierSettler
	TierBuilder
	TierArchitect
	TierGenesis
)

var tierNames = [...]string{"Void", "Settler", "Builder", "Architect", "Genesis"}

// AllTiers lists every tier in ascending order.
func AllTiers() []Tier {
	return []Tier{TierVoid, TierSettler, TierBuilder, TierArchitect, TierGenesis}
}

func (t Tier) String() string {
	if t < TierVoid || t > TierGenesis {
		return fmt.Sprintf("Tier(%d)", int(t))
	}
	return tierNames[t]
}

// ParseTier resolves a tier name, case-insensitively.
func ParseTier(s string) (Tier, error) {
	for i, name := range tierNames {
		if strings.EqualFold(strings.TrimSpace(s), name) {
			return Tier(i), nil
		}
	}
	return TierVoid, fmt.Errorf("unknown tier %q", s)
}

// MarshalJSON encodes the tier by name.
func (t Tier) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// UnmarshalJSON decodes a tier name.
func (t *Tier) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseTier(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// TierTable holds the minimum balance of each balance-derived tier above Void.
type TierTable struct {
	Settler   decimal.Decimal
	Builder   decimal.Decimal
	Architect decimal.Decimal
}

// DefaultTierTable returns the 10 / 100 / 500 thresholds.
func DefaultTierTable() TierTable {
	return TierTable{
		Settler:   decimal.NewFromInt(10),
		Builder:   decimal.NewFromInt(100),
		Architect: decimal.NewFromInt(500),
	}
}

// Validate checks that thresholds are positive and strictly increasing.
func (tt TierTable) Validate() error {
	if !tt.Settler.IsPositive() {
		return errors.New("settler threshold must be greater than zero")
	}
	if !tt.Builder.GreaterThan(tt.Settler) {
		return errors.New("builder threshold must exceed settler threshold")
	}
	if !tt.Architect.GreaterThan(tt.Builder) {
		return errors.New("architect threshold must exceed builder threshold")
	}
	return nil
}

// For returns the highest tier whose minimum is <= balance.
func (tt TierTable) For(balance decimal.Decimal) Tier {
	switch {
	case balance.GreaterThanOrEqual(tt.Architect):
		return TierArchitect
	case balance.GreaterThanOrEqual(tt.Builder):
		return TierBuilder
	case balance.GreaterThanOrEqual(tt.Settler):
		return TierSettler
	default:
		return TierVoid
	}
}
