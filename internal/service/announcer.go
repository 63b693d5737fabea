package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/nice-bills/substrate/internal/domain/ledger"
	"github.com/nice-bills/substrate/internal/logger"
	"github.com/nice-bills/substrate/internal/port/messagequeue"
	"github.com/nice-bills/substrate/internal/port/social"
)

const hashtag = "#AgentEconomy"

// AnnouncerService turns ledger events into public social posts: new agents,
// new factions and tier promotions. Posting failures are logged and dropped;
// they never reach the ledger.
type AnnouncerService struct {
	queue  messagequeue.Queue
	poster social.Poster
	log    *slog.Logger
}

// NewAnnouncerService creates an AnnouncerService.
func NewAnnouncerService(queue messagequeue.Queue, poster social.Poster) *AnnouncerService {
	return &AnnouncerService{queue: queue, poster: poster, log: slog.Default()}
}

// SetLogger sets the service logger.
func (s *AnnouncerService) SetLogger(l *slog.Logger) { s.log = l }

// Start subscribes to ledger events. The returned function unsubscribes.
func (s *AnnouncerService) Start(ctx context.Context) (func(), error) {
	stop, err := s.queue.Subscribe(ctx, messagequeue.SubjectAll, s.Handle)
	if err != nil {
		return nil, fmt.Errorf("announcer subscribe: %w", err)
	}
	s.log.Info("announcer started", "posters", s.poster.Name())
	return stop, nil
}

// Handle posts an announcement for one ledger event. It always returns nil
// so the queue never redelivers an event because a platform was down.
func (s *AnnouncerService) Handle(ctx context.Context, subject string, data []byte) error {
	log := logger.From(ctx, s.log)
	text, ok, err := announcement(subject, data)
	if err != nil {
		log.Warn("announcer: undecodable event", "subject", subject, "error", err)
		return nil
	}
	if !ok {
		return nil
	}
	id, err := s.poster.Publish(ctx, text)
	if err != nil {
		log.Warn("announcer: post failed", "subject", subject, "posters", s.poster.Name(), "error", err)
		return nil
	}
	log.Info("announcer: posted", "subject", subject, "post_id", id)
	return nil
}

// announcement renders the post for an event. ok is false for events that
// are not announced.
func announcement(subject string, data []byte) (text string, ok bool, err error) {
	switch subject {
	case messagequeue.SubjectAgentRegistered:
		var p messagequeue.AgentRegisteredPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return "", false, err
		}
		if p.Genesis {
			return "", false, nil
		}
		name := p.Name
		if p.Emoji != "" {
			name = p.Emoji + " " + name
		}
		return fmt.Sprintf("◆ New agent joined Substrate: %s\n\nThe economy grows.\n\n%s", name, hashtag), true, nil

	case messagequeue.SubjectFactionCreated:
		var p messagequeue.FactionCreatedPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return "", false, err
		}
		return fmt.Sprintf("◆ New faction: %q\nFounder: %s\n\nAgents are organizing.\n\n%s", p.Name, p.FounderName, hashtag), true, nil

	case messagequeue.SubjectTierChanged:
		var p messagequeue.TierChangedPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return "", false, err
		}
		from, err := ledger.ParseTier(p.From)
		if err != nil {
			return "", false, err
		}
		to, err := ledger.ParseTier(p.To)
		if err != nil {
			return "", false, err
		}
		if to <= from {
			return "", false, nil
		}
		return fmt.Sprintf("◆ %s reached %s with %s cred!\n\nReputation economy in action.\n\n%s", p.Name, to, p.Balance, hashtag), true, nil
	}
	return "", false, nil
}
