package ledger

import (
	"fmt"
	"time"

	"github.com/nice-bills/substrate/internal/domain"
)

// Operation names recorded alongside idempotency tokens.
const (
	OpRegisterAgent       = "register_agent"
	OpAwardCred           = "award_cred"
	OpTransferCred        = "transfer_cred"
	OpCreateFaction       = "create_faction"
	OpJoinFaction         = "join_faction"
	OpContributeTreasury  = "contribute_treasury"
	OpAnnounceAgent       = "announce_agent"
	OpFundEscrow          = "fund_escrow"
	OpReleaseEscrow       = "release_escrow"
	OpSubmitRegistration  = "submit_registration"
	OpProcessRegistration = "process_registration"
)

// OpRecord remembers one accepted idempotency token.
type OpRecord struct {
	Token string    `json:"token"`
	Op    string    `json:"op"`
	At    time.Time `json:"at"`
}

// OperationLog is the bounded recent-operation log keyed by token. Records
// expire once older than window or when more than capacity are held.
type OperationLog struct {
	window   time.Duration
	capacity int
	records  []OpRecord
	index    map[string]struct{}
}

// NewOperationLog creates an empty log.
func NewOperationLog(window time.Duration, capacity int) *OperationLog {
	return &OperationLog{
		window:   window,
		capacity: capacity,
		index:    make(map[string]struct{}),
	}
}

// Check fails with ErrDuplicateOperation if token was accepted within the window.
// An empty token is never a duplicate.
func (l *OperationLog) Check(token string, now time.Time) error {
	if token == "" {
		return nil
	}
	l.prune(now)
	if _, ok := l.index[token]; ok {
		return fmt.Errorf("token %q already used: %w", token, domain.ErrDuplicateOperation)
	}
	return nil
}

// Record stores token as accepted for op.
func (l *OperationLog) Record(token, op string, now time.Time) {
	if token == "" {
		return
	}
	l.records = append(l.records, OpRecord{Token: token, Op: op, At: now})
	l.index[token] = struct{}{}
	l.prune(now)
}

// Len returns the number of live records.
func (l *OperationLog) Len() int { return len(l.records) }

// Records returns a copy of the live records, oldest first.
func (l *OperationLog) Records() []OpRecord {
	out := make([]OpRecord, len(l.records))
	copy(out, l.records)
	return out
}

func (l *OperationLog) prune(now time.Time) {
	drop := 0
	for drop < len(l.records) {
		r := l.records[drop]
		expired := l.window > 0 && now.Sub(r.At) > l.window
		overfull := l.capacity > 0 && len(l.records)-drop > l.capacity
		if !expired && !overfull {
			break
		}
		delete(l.index, r.Token)
		drop++
	}
	if drop > 0 {
		l.records = append(l.records[:0:0], l.records[drop:]...)
	}
}
