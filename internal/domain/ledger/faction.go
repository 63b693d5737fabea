package ledger

import (
	"slices"
	"time"

	"github.com/shopspring/decimal"
)

// Faction is a named group of agents with a shared treasury.
type Faction struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Metadata  string          `json:"metadata,omitempty"`
	FounderID string          `json:"founder_id"`
	Members   []string        `json:"members"`
	Treasury  decimal.Decimal `json:"treasury"`
	CreatedAt time.Time       `json:"created_at"`

	seq uint64
}

// HasMember reports whether agentID belongs to the faction.
func (f Faction) HasMember(agentID string) bool {
	return slices.Contains(f.Members, agentID)
}

func (f *Faction) clone() Faction {
	out := *f
	out.Members = slices.Clone(f.Members)
	return out
}
