package main

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"github.com/nice-bills/substrate/internal/domain/ledger"
)

func TestHashToken(t *testing.T) {
	if _, err := hashToken("short"); err == nil {
		t.Fatal("expected error for short token")
	}

	const token = "correct-horse-battery-staple"
	hash, err := hashToken(token)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(token)); err != nil {
		t.Fatalf("expected hash to verify, got %v", err)
	}
}

func seededState(t *testing.T) *ledger.State {
	t.Helper()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	st := ledger.NewState(ledger.DefaultRules())
	if _, _, err := st.EnsureGenesis("genesis", "Genesis", now); err != nil {
		t.Fatalf("genesis: %v", err)
	}
	for _, id := range []string{"a1", "a2", "a3"} {
		if _, err := st.RegisterAgent(id, ledger.Profile{Name: "agent-" + id}, now); err != nil {
			t.Fatalf("register %s: %v", id, err)
		}
	}
	if _, err := st.AwardCred("a2", decimal.NewFromInt(150), "seed", now); err != nil {
		t.Fatalf("award: %v", err)
	}
	if _, err := st.CreateFaction("f1", "Builders", "", "a2", now); err != nil {
		t.Fatalf("faction: %v", err)
	}
	return st
}

func TestSummarizeCapsLeaderboard(t *testing.T) {
	sum := summarize(7, seededState(t), 2)

	if sum.Version != 7 {
		t.Fatalf("expected version 7, got %d", sum.Version)
	}
	if len(sum.Agents) != 2 {
		t.Fatalf("expected 2 agents, got %d", len(sum.Agents))
	}
	if sum.Stats.TotalAgents != 4 {
		t.Fatalf("expected 4 agents in stats, got %d", sum.Stats.TotalAgents)
	}
	if len(sum.Factions) != 1 {
		t.Fatalf("expected 1 faction, got %d", len(sum.Factions))
	}
}

func TestWriteSummaryTable(t *testing.T) {
	var buf bytes.Buffer
	if err := writeSummaryTable(&buf, summarize(3, seededState(t), 0)); err != nil {
		t.Fatalf("write: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"snapshot v3", "RANK", "agent-a2", "Builders"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected output to contain %q, got:\n%s", want, out)
		}
	}
}

func TestWriteSummaryJSON(t *testing.T) {
	var buf bytes.Buffer
	if err := writeSummaryJSON(&buf, summarize(3, seededState(t), 0)); err != nil {
		t.Fatalf("write: %v", err)
	}
	var got struct {
		Version uint64 `json:"version"`
		Agents  []struct {
			ID string `json:"id"`
		} `json:"agents"`
	}
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Version != 3 || len(got.Agents) != 4 {
		t.Fatalf("expected version 3 with 4 agents, got %d with %d", got.Version, len(got.Agents))
	}
}
