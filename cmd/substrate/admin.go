package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"syscall"
	"text/tabwriter"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/term"

	"github.com/nice-bills/substrate/internal/adapter/postgres"
	"github.com/nice-bills/substrate/internal/config"
	"github.com/nice-bills/substrate/internal/domain/ledger"
	"github.com/nice-bills/substrate/internal/port/snapshot"
)

// minTokenLength guards against trivially guessable admin tokens.
const minTokenLength = 16

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFrom(path)
	}
	return config.Load()
}

// runAdmin dispatches admin subcommands (hash-token, snapshot, migrate).
func runAdmin(args []string) error {
	if len(args) == 0 || args[0] == "help" || args[0] == "--help" {
		printAdminHelp()
		return nil
	}

	switch args[0] {
	case "hash-token":
		return runAdminHashToken(args[1:])
	case "snapshot":
		return runAdminSnapshot(args[1:])
	case "migrate":
		return runAdminMigrate(args[1:])
	default:
		printAdminHelp()
		return fmt.Errorf("unknown admin command: %s", args[0])
	}
}

func printAdminHelp() {
	fmt.Fprintf(os.Stderr, `Usage: substrate admin <command> [options]

Commands:
  hash-token   Hash an admin token for auth.admin_token_hash
  snapshot     Summarize the persisted ledger snapshot
  migrate      Show or roll back the postgres schema version
  help         Show this help message

Examples:
  substrate admin hash-token
  substrate admin snapshot --config substrate.yaml --top 20
  substrate admin snapshot --json
  substrate admin migrate --down 1
`)
}

func runAdminHashToken(args []string) error {
	fs := flag.NewFlagSet("hash-token", flag.ContinueOnError)
	token := fs.String("token", "", "admin token (prompted if not provided)") //nolint:gosec // CLI flag
	if err := fs.Parse(args); err != nil {
		return err
	}

	plain := *token
	if plain == "" {
		var err error
		plain, err = promptPassword("Admin token: ")
		if err != nil {
			return fmt.Errorf("read token: %w", err)
		}
		confirm, err := promptPassword("Confirm token: ")
		if err != nil {
			return fmt.Errorf("read token: %w", err)
		}
		if plain != confirm {
			return errors.New("tokens do not match")
		}
	}

	hash, err := hashToken(plain)
	if err != nil {
		return err
	}
	fmt.Println(hash)
	return nil
}

// hashToken returns the bcrypt hash stored in auth.admin_token_hash.
func hashToken(token string) (string, error) {
	if len(token) < minTokenLength {
		return "", fmt.Errorf("token must be at least %d characters", minTokenLength)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(token), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash token: %w", err)
	}
	return string(hash), nil
}

func runAdminSnapshot(args []string) error {
	fs := flag.NewFlagSet("snapshot", flag.ContinueOnError)
	configPath := fs.String("config", "", "path to substrate.yaml")
	top := fs.Int("top", 10, "number of leaderboard rows to show")
	asJSON := fs.Bool("json", false, "print JSON even on a terminal")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	rules, err := cfg.Ledger.Rules()
	if err != nil {
		return err
	}

	ctx := context.Background()
	store, cleanup, err := openSnapshotStore(ctx, cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		return err
	}
	defer cleanup()

	version, data, err := store.Load(ctx)
	if errors.Is(err, snapshot.ErrNoSnapshot) {
		fmt.Fprintln(os.Stderr, "no snapshot persisted yet")
		return nil
	}
	if err != nil {
		return fmt.Errorf("load snapshot: %w", err)
	}
	st, err := ledger.RestoreState(rules, data)
	if err != nil {
		return fmt.Errorf("restore snapshot: %w", err)
	}

	sum := summarize(version, st, *top)
	if *asJSON || !term.IsTerminal(int(os.Stdout.Fd())) { //nolint:gosec // fd fits in int
		return writeSummaryJSON(os.Stdout, sum)
	}
	return writeSummaryTable(os.Stdout, sum)
}

// snapshotSummary is what `admin snapshot` reports.
type snapshotSummary struct {
	Version  uint64           `json:"version"`
	Stats    ledger.Stats     `json:"stats"`
	Agents   []ledger.Agent   `json:"agents"`
	Factions []ledger.Faction `json:"factions"`
}

func summarize(version uint64, st *ledger.State, top int) snapshotSummary {
	agents := st.Agents()
	if top > 0 && len(agents) > top {
		agents = agents[:top]
	}
	return snapshotSummary{
		Version:  version,
		Stats:    st.Stats(),
		Agents:   agents,
		Factions: st.Factions(),
	}
}

func writeSummaryJSON(w io.Writer, sum snapshotSummary) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(sum)
}

func writeSummaryTable(out io.Writer, sum snapshotSummary) error {
	_, _ = fmt.Fprintf(out, "snapshot v%d: %d agents, %d factions, %s cred in circulation, %s transferred\n\n",
		sum.Version, sum.Stats.TotalAgents, sum.Stats.TotalFactions, sum.Stats.TotalCred, sum.Stats.TransferVolume)

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "RANK\tID\tNAME\tCRED\tTIER\tFACTION")
	for i := range sum.Agents {
		a := &sum.Agents[i]
		_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\n", i+1, a.ID, a.Name, a.Balance, a.Tier, a.FactionID)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	if len(sum.Factions) == 0 {
		return nil
	}

	_, _ = fmt.Fprintln(out)
	w = tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "FACTION\tNAME\tMEMBERS\tTREASURY")
	for i := range sum.Factions {
		f := &sum.Factions[i]
		_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", f.ID, f.Name, len(f.Members), f.Treasury)
	}
	return w.Flush()
}

func runAdminMigrate(args []string) error {
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	configPath := fs.String("config", "", "path to substrate.yaml")
	down := fs.Int("down", 0, "roll back this many migrations")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.Storage.Driver != config.StoragePostgres {
		return fmt.Errorf("migrate needs storage.driver=%s, got %s", config.StoragePostgres, cfg.Storage.Driver)
	}

	ctx := context.Background()
	if *down > 0 {
		if err := postgres.RollbackMigrations(ctx, cfg.Postgres.DSN, *down); err != nil {
			return fmt.Errorf("rollback: %w", err)
		}
	}
	v, err := postgres.MigrationVersion(ctx, cfg.Postgres.DSN)
	if err != nil {
		return fmt.Errorf("migration version: %w", err)
	}
	fmt.Fprintf(os.Stderr, "schema version %d\n", v)
	return nil
}

// promptPassword reads a secret from the terminal without echoing.
func promptPassword(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	b, err := term.ReadPassword(int(syscall.Stdin)) //nolint:unconvert // int conversion needed on some platforms
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
