package ledger_test

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/nice-bills/substrate/internal/domain"
	"github.com/nice-bills/substrate/internal/domain/ledger"
)

func TestEscrowMilestones(t *testing.T) {
	f := newFixture(t)
	a := f.register("Contractor")

	e, err := f.state.FundEscrow("e1", a.ID, amt(150), "audit work", f.tick())
	if err != nil {
		t.Fatalf("fund: %v", err)
	}
	if e.Status != ledger.EscrowFunded || !e.Remaining().Equal(amt(150)) {
		t.Fatalf("unexpected escrow %+v", e)
	}
	if got, _ := f.state.Agent(a.ID); !got.Balance.Decimal().IsZero() {
		t.Fatalf("funding must not credit the payee, got %s", got.Balance)
	}
	if st := f.state.Stats(); !st.EscrowHeld.Equal(amt(150)) || !st.TotalCred.IsZero() {
		t.Fatalf("expected 150 held and 0 cred, got %s and %s", st.EscrowHeld, st.TotalCred)
	}

	e, paid, err := f.state.ReleaseEscrow("e1", amt(50), "phase one", f.tick())
	if err != nil {
		t.Fatalf("partial release: %v", err)
	}
	if e.Status != ledger.EscrowPartial || !paid.Balance.Decimal().Equal(amt(50)) || paid.Tier != ledger.TierSettler {
		t.Fatalf("unexpected partial release: %+v / %+v", e, paid)
	}

	if _, _, err := f.state.ReleaseEscrow("e1", amt(101), "", f.tick()); !errors.Is(err, domain.ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance for over-release, got %v", err)
	}

	e, paid, err = f.state.ReleaseEscrow("e1", decimal.Zero, "done", f.tick())
	if err != nil {
		t.Fatalf("final release: %v", err)
	}
	if e.Status != ledger.EscrowReleased || !e.Remaining().IsZero() || len(e.Milestones) != 2 {
		t.Fatalf("unexpected final escrow %+v", e)
	}
	if !paid.Balance.Decimal().Equal(amt(150)) || paid.Tier != ledger.TierBuilder {
		t.Fatalf("expected 150 Builder, got %s %s", paid.Balance, paid.Tier)
	}
	if _, _, err := f.state.ReleaseEscrow("e1", decimal.Zero, "", f.tick()); !errors.Is(err, domain.ErrInsufficientBalance) {
		t.Fatalf("expected released escrow to refuse more, got %v", err)
	}

	hist, _ := f.state.History(a.ID)
	if len(hist) != 2 || hist[1].Kind != ledger.EntryEscrowRelease || hist[1].CounterpartyID != "e1" || hist[1].Note != "done" {
		t.Errorf("unexpected history %+v", hist)
	}
	if st := f.state.Stats(); !st.EscrowHeld.IsZero() || !st.TotalCred.Equal(amt(150)) {
		t.Errorf("expected nothing held and 150 cred, got %s and %s", st.EscrowHeld, st.TotalCred)
	}
}

func TestEscrowRejects(t *testing.T) {
	f := newFixture(t)
	g, _, _ := f.state.EnsureGenesis("g", "Genesis", f.tick())
	a := f.register("A")

	tests := []struct {
		name    string
		id      string
		agentID string
		amount  int64
		want    error
	}{
		{"zero amount", "e", a.ID, 0, domain.ErrInvalidInput},
		{"missing id", "", a.ID, 5, domain.ErrInvalidInput},
		{"unknown payee", "e", "ghost", 5, domain.ErrNotFound},
		{"genesis payee", "e", g.ID, 5, domain.ErrInvalidInput},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := f.state.FundEscrow(tc.id, tc.agentID, amt(tc.amount), "", f.tick()); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}

	if _, err := f.state.FundEscrow("e", a.ID, amt(5), "", f.tick()); err != nil {
		t.Fatal(err)
	}
	if _, err := f.state.FundEscrow("e", a.ID, amt(5), "", f.tick()); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected duplicate escrow id rejected, got %v", err)
	}
	if _, _, err := f.state.ReleaseEscrow("e", amt(-1), "", f.tick()); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected negative release rejected, got %v", err)
	}
	if _, _, err := f.state.ReleaseEscrow("nope", amt(1), "", f.tick()); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if n := len(f.state.Escrows()); n != 1 {
		t.Errorf("expected 1 escrow, got %d", n)
	}
}

func TestEscrowSurvivesSnapshot(t *testing.T) {
	f := newFixture(t)
	a := f.register("A")
	if _, err := f.state.FundEscrow("e1", a.ID, amt(40), "design", f.tick()); err != nil {
		t.Fatal(err)
	}
	if _, _, err := f.state.ReleaseEscrow("e1", amt(15), "draft", f.tick()); err != nil {
		t.Fatal(err)
	}
	data, err := f.state.MarshalSnapshot()
	if err != nil {
		t.Fatal(err)
	}
	restored, err := ledger.RestoreState(ledger.DefaultRules(), data)
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	e, err := restored.Escrow("e1")
	if err != nil {
		t.Fatal(err)
	}
	if e.Status != ledger.EscrowPartial || !e.Released.Equal(amt(15)) || e.Milestones[0].Reason != "draft" {
		t.Fatalf("escrow not restored: %+v", e)
	}
	if _, _, err := restored.ReleaseEscrow("e1", amt(26), "", f.tick()); !errors.Is(err, domain.ErrInsufficientBalance) {
		t.Fatalf("expected restored remainder of 25, got %v", err)
	}
}
