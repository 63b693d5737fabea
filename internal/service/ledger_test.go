package service_test

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/nice-bills/substrate/internal/domain"
	"github.com/nice-bills/substrate/internal/domain/ledger"
	"github.com/nice-bills/substrate/internal/port/messagequeue"
	"github.com/nice-bills/substrate/internal/port/snapshot"
	"github.com/nice-bills/substrate/internal/service"
)

// memStore is an in-memory snapshot.Store whose writes can be made to fail.
type memStore struct {
	mu      sync.Mutex
	version uint64
	data    []byte
	saves   int
	failErr error
}

func (m *memStore) Load(context.Context) (uint64, []byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data == nil {
		return 0, nil, snapshot.ErrNoSnapshot
	}
	return m.version, m.data, nil
}

func (m *memStore) Save(_ context.Context, version uint64, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failErr != nil {
		return m.failErr
	}
	m.saves++
	if version >= m.version {
		m.version, m.data = version, append([]byte(nil), data...)
	}
	return nil
}

func (m *memStore) fail(err error) {
	m.mu.Lock()
	m.failErr = err
	m.mu.Unlock()
}

// recordingQueue captures published subjects.
type recordingQueue struct {
	mu       sync.Mutex
	subjects []string
}

func (q *recordingQueue) Publish(_ context.Context, subject string, data []byte) error {
	if err := messagequeue.Validate(subject, data); err != nil {
		return err
	}
	q.mu.Lock()
	q.subjects = append(q.subjects, subject)
	q.mu.Unlock()
	return nil
}

func (q *recordingQueue) Subscribe(context.Context, string, messagequeue.Handler) (func(), error) {
	return func() {}, nil
}
func (q *recordingQueue) Drain() error      { return nil }
func (q *recordingQueue) Close() error      { return nil }
func (q *recordingQueue) IsConnected() bool { return true }

func (q *recordingQueue) take() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.subjects
	q.subjects = nil
	return out
}

type ledgerFixture struct {
	svc   *service.LedgerService
	store *memStore
	queue *recordingQueue
}

func newLedger(t *testing.T) *ledgerFixture {
	t.Helper()
	store := &memStore{}
	return openLedger(t, store)
}

func openLedger(t *testing.T, store *memStore) *ledgerFixture {
	t.Helper()
	q := &recordingQueue{}
	svc := service.NewLedgerService(store, q, nil, ledger.DefaultRules())
	if _, err := svc.Open(context.Background(), "Genesis"); err != nil {
		t.Fatalf("open: %v", err)
	}
	q.take()
	return &ledgerFixture{svc: svc, store: store, queue: q}
}

func (f *ledgerFixture) register(t *testing.T, name string) ledger.Agent {
	t.Helper()
	a, err := f.svc.RegisterAgent(context.Background(), "", ledger.Profile{Name: name})
	if err != nil {
		t.Fatalf("register %s: %v", name, err)
	}
	return a
}

func (f *ledgerFixture) award(t *testing.T, id string, n int64) ledger.Agent {
	t.Helper()
	a, err := f.svc.AwardCred(context.Background(), "", id, decimal.NewFromInt(n), "")
	if err != nil {
		t.Fatalf("award: %v", err)
	}
	return a
}

func TestLedgerOpenCreatesGenesisOnce(t *testing.T) {
	f := newLedger(t)
	g, ok := genesisOf(f.svc)
	if !ok || g.Tier != ledger.TierGenesis || !g.Balance.IsInfinite() {
		t.Fatalf("expected genesis agent, got %+v", g)
	}
	if f.svc.DurableVersion() != 1 {
		t.Fatalf("expected genesis persisted at version 1, got %d", f.svc.DurableVersion())
	}

	reopened := openLedger(t, f.store)
	agents := reopened.svc.ListAgents(context.Background())
	if len(agents) != 1 || agents[0].ID != g.ID {
		t.Fatalf("expected the same single genesis after reopen, got %+v", agents)
	}
	if f.store.saves != 1 {
		t.Fatalf("expected reopen not to write, got %d saves", f.store.saves)
	}
}

func genesisOf(svc *service.LedgerService) (ledger.Agent, bool) {
	for _, a := range svc.ListAgents(context.Background()) {
		if a.Genesis {
			return a, true
		}
	}
	return ledger.Agent{}, false
}

func TestLedgerScenarioPublishesEvents(t *testing.T) {
	f := newLedger(t)
	ctx := context.Background()
	a := f.register(t, "A")
	b := f.register(t, "B")

	if _, _, err := f.svc.TransferCred(ctx, "", a.ID, b.ID, decimal.NewFromInt(50), ""); !errors.Is(err, domain.ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
	f.award(t, a.ID, 100)
	from, to, err := f.svc.TransferCred(ctx, "", a.ID, b.ID, decimal.NewFromInt(50), "thanks")
	if err != nil {
		t.Fatal(err)
	}
	if from.Tier != ledger.TierSettler || to.Tier != ledger.TierSettler {
		t.Fatalf("expected both Settler, got %s and %s", from.Tier, to.Tier)
	}

	got := f.queue.take()
	want := []string{
		messagequeue.SubjectAgentRegistered,
		messagequeue.SubjectAgentRegistered,
		messagequeue.SubjectCredAwarded,
		messagequeue.SubjectTierChanged, // A: Void -> Builder
		messagequeue.SubjectCredTransferred,
		messagequeue.SubjectTierChanged, // A: Builder -> Settler
		messagequeue.SubjectTierChanged, // B: Void -> Settler
	}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Fatalf("expected events %v, got %v", want, got)
	}
}

func TestLedgerIdempotencyTokens(t *testing.T) {
	f := newLedger(t)
	ctx := context.Background()
	a := f.register(t, "A")
	b := f.register(t, "B")

	if _, _, err := f.svc.TransferCred(ctx, "tok-1", a.ID, b.ID, decimal.NewFromInt(5), ""); !errors.Is(err, domain.ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
	f.award(t, a.ID, 10)

	// The failed attempt did not consume the token.
	if _, _, err := f.svc.TransferCred(ctx, "tok-1", a.ID, b.ID, decimal.NewFromInt(5), ""); err != nil {
		t.Fatalf("expected retry with same token to succeed, got %v", err)
	}
	if _, _, err := f.svc.TransferCred(ctx, "tok-1", a.ID, b.ID, decimal.NewFromInt(5), ""); !errors.Is(err, domain.ErrDuplicateOperation) {
		t.Fatalf("expected ErrDuplicateOperation, got %v", err)
	}
	got, _ := f.svc.GetAgent(ctx, a.ID)
	if !got.Balance.Decimal().Equal(decimal.NewFromInt(5)) {
		t.Fatalf("expected balance 5 after one transfer, got %s", got.Balance)
	}
}

func TestLedgerPersistenceFailureRollsBack(t *testing.T) {
	f := newLedger(t)
	ctx := context.Background()
	a := f.register(t, "A")
	f.award(t, a.ID, 100)
	f.queue.take()
	before := f.svc.DurableVersion()

	f.store.fail(errors.New("disk full"))
	_, err := f.svc.AwardCred(ctx, "tok-x", a.ID, decimal.NewFromInt(900), "")
	if !errors.Is(err, domain.ErrPersistence) {
		t.Fatalf("expected ErrPersistence, got %v", err)
	}
	if domain.Kind(err) != domain.KindPersistenceFailure {
		t.Fatalf("expected kind PersistenceFailure, got %s", domain.Kind(err))
	}
	_, err = f.svc.RegisterAgent(ctx, "", ledger.Profile{Name: "Ghost"})
	if !errors.Is(err, domain.ErrPersistence) {
		t.Fatalf("expected ErrPersistence, got %v", err)
	}

	got, _ := f.svc.GetAgent(ctx, a.ID)
	if !got.Balance.Decimal().Equal(decimal.NewFromInt(100)) || got.Tier != ledger.TierBuilder {
		t.Fatalf("expected rollback to balance 100 Builder, got %s %s", got.Balance, got.Tier)
	}
	if n := len(f.svc.ListAgents(ctx)); n != 2 {
		t.Fatalf("expected 2 agents after rollback, got %d", n)
	}
	if evs := f.queue.take(); len(evs) != 0 {
		t.Fatalf("expected no events for failed writes, got %v", evs)
	}
	if f.svc.DurableVersion() != before {
		t.Fatalf("durable version moved from %d to %d", before, f.svc.DurableVersion())
	}

	f.store.fail(nil)
	if _, err := f.svc.AwardCred(ctx, "tok-x", a.ID, decimal.NewFromInt(1), ""); err != nil {
		t.Fatalf("expected token of rolled back op to be reusable, got %v", err)
	}
	restored, err := ledger.RestoreState(ledger.DefaultRules(), f.store.data)
	if err != nil {
		t.Fatal(err)
	}
	if len(restored.Agents()) != 2 {
		t.Fatalf("expected ghost agent absent from snapshot, got %d agents", len(restored.Agents()))
	}
	ra, _ := restored.Agent(a.ID)
	if !ra.Balance.Decimal().Equal(decimal.NewFromInt(101)) {
		t.Fatalf("expected durable balance 101, got %s", ra.Balance)
	}
}

func TestLedgerConcurrentTransfersConserveCred(t *testing.T) {
	f := newLedger(t)
	ctx := context.Background()
	var ids []string
	for i := range 8 {
		a := f.register(t, fmt.Sprintf("agent-%d", i))
		f.award(t, a.ID, 100)
		ids = append(ids, a.ID)
	}

	var wg sync.WaitGroup
	for w := range 16 {
		wg.Add(1)
		go func(seed uint64) {
			defer wg.Done()
			rng := rand.New(rand.NewPCG(seed, seed+1))
			for range 50 {
				from, to := ids[rng.IntN(len(ids))], ids[rng.IntN(len(ids))]
				amount := decimal.NewFromInt(rng.Int64N(60) + 1)
				_, _, err := f.svc.TransferCred(ctx, "", from, to, amount, "")
				if err != nil && !errors.Is(err, domain.ErrInsufficientBalance) && !errors.Is(err, domain.ErrInvalidInput) {
					t.Errorf("unexpected error: %v", err)
				}
			}
		}(uint64(w) + 1)
	}
	wg.Wait()

	total := decimal.Zero
	for _, a := range f.svc.ListAgents(ctx) {
		if a.Balance.IsNegative() {
			t.Fatalf("agent %s negative: %s", a.ID, a.Balance)
		}
		if !a.Genesis {
			total = total.Add(a.Balance.Decimal())
		}
	}
	if !total.Equal(decimal.NewFromInt(800)) {
		t.Fatalf("expected total 800, got %s", total)
	}

	restored, err := ledger.RestoreState(ledger.DefaultRules(), f.store.data)
	if err != nil {
		t.Fatal(err)
	}
	if st := restored.Stats(); !st.TotalCred.Equal(decimal.NewFromInt(800)) {
		t.Fatalf("expected durable total 800, got %s", st.TotalCred)
	}
	if f.store.version != f.svc.DurableVersion() {
		t.Fatalf("store version %d != durable version %d", f.store.version, f.svc.DurableVersion())
	}
}

func TestLedgerClockAndIDInjection(t *testing.T) {
	store := &memStore{}
	svc := service.NewLedgerService(store, nil, nil, ledger.DefaultRules())
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	n := 0
	svc.SetClock(func() time.Time { return fixed })
	svc.SetIDGenerator(func() string { n++; return fmt.Sprintf("id-%d", n) })
	if _, err := svc.Open(context.Background(), "Genesis"); err != nil {
		t.Fatal(err)
	}
	a, err := svc.RegisterAgent(context.Background(), "", ledger.Profile{Name: "A"})
	if err != nil {
		t.Fatal(err)
	}
	if a.ID != "id-2" || !a.CreatedAt.Equal(fixed) {
		t.Fatalf("expected injected id and clock, got %s %s", a.ID, a.CreatedAt)
	}
}

func TestLedgerEscrowRelease(t *testing.T) {
	ctx := context.Background()
	f := newLedger(t)
	a := f.register(t, "Contractor")
	f.queue.take()

	e, err := f.svc.FundEscrow(ctx, "", a.ID, decimal.NewFromInt(120), "bounty")
	if err != nil {
		t.Fatalf("fund: %v", err)
	}
	if got := f.queue.take(); len(got) != 1 || got[0] != messagequeue.SubjectEscrowFunded {
		t.Fatalf("expected escrow funded event, got %v", got)
	}

	e, paid, err := f.svc.ReleaseEscrow(ctx, "rel-1", e.ID, decimal.NewFromInt(20), "spec")
	if err != nil {
		t.Fatalf("release: %v", err)
	}
	if e.Status != ledger.EscrowPartial || paid.Tier != ledger.TierSettler {
		t.Fatalf("expected partial escrow and Settler payee, got %s / %s", e.Status, paid.Tier)
	}
	got := f.queue.take()
	if len(got) != 2 || got[0] != messagequeue.SubjectEscrowReleased || got[1] != messagequeue.SubjectTierChanged {
		t.Fatalf("expected release then tier change, got %v", got)
	}
	if _, _, err := f.svc.ReleaseEscrow(ctx, "rel-1", e.ID, decimal.NewFromInt(20), "spec"); !errors.Is(err, domain.ErrDuplicateOperation) {
		t.Fatalf("expected duplicate release token rejected, got %v", err)
	}

	reopened := openLedger(t, f.store)
	restored, err := reopened.svc.GetEscrow(ctx, e.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !restored.Remaining().Equal(decimal.NewFromInt(100)) || len(reopened.svc.ListEscrows(ctx)) != 1 {
		t.Fatalf("expected 100 still held after reopen, got %s", restored.Remaining())
	}
}

func TestLedgerRegistrationApproval(t *testing.T) {
	ctx := context.Background()
	f := newLedger(t)

	r, err := f.svc.SubmitRegistration(ctx, "", ledger.RegistrationRequest{Name: "Oracle", Metadata: "feeds"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if got := f.queue.take(); len(got) != 1 || got[0] != messagequeue.SubjectRegistrationQueued {
		t.Fatalf("expected queued event, got %v", got)
	}
	if pending := f.svc.ListRegistrations(ctx, ledger.RegistrationPending); len(pending) != 1 {
		t.Fatalf("expected 1 pending registration, got %d", len(pending))
	}

	r, a, err := f.svc.ProcessRegistration(ctx, "", r.ID, true)
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if r.AgentID != a.ID || a.Name != "Oracle" {
		t.Fatalf("expected approved agent Oracle, got %+v / %+v", r, a)
	}
	got := f.queue.take()
	if len(got) != 2 || got[0] != messagequeue.SubjectRegistrationDecided || got[1] != messagequeue.SubjectAgentRegistered {
		t.Fatalf("expected decided then registered, got %v", got)
	}
	if _, err := f.svc.GetAgent(ctx, a.ID); err != nil {
		t.Fatalf("approved agent missing: %v", err)
	}
}

func TestLedgerGenesisSpendsOnlyThroughAwards(t *testing.T) {
	ctx := context.Background()
	f := newLedger(t)
	g, _ := genesisOf(f.svc)
	a := f.register(t, "Mallory")
	versionBefore := f.svc.DurableVersion()

	if _, _, err := f.svc.TransferCred(ctx, "", g.ID, a.ID, decimal.NewFromInt(1_000_000), ""); !errors.Is(err, domain.ErrPermissionDenied) {
		t.Fatalf("expected ErrPermissionDenied, got %v", err)
	}
	if got, _ := f.svc.GetAgent(ctx, a.ID); !got.Balance.Decimal().IsZero() {
		t.Fatalf("expected Mallory to stay at 0, got %s", got.Balance)
	}
	if f.svc.DurableVersion() != versionBefore {
		t.Errorf("rejected transfer must not persist a snapshot")
	}
}
