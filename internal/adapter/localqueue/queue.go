// Package localqueue implements the message queue port in-process, used when
// no NATS URL is configured. Delivery is asynchronous and best-effort.
package localqueue

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"github.com/nice-bills/substrate/internal/logger"
	"github.com/nice-bills/substrate/internal/port/messagequeue"
)

// ErrClosed is returned by Publish and Subscribe after Close or Drain.
var ErrClosed = errors.New("localqueue: closed")

type envelope struct {
	requestID string
	subject   string
	data      []byte
}

type subscription struct {
	pattern string
	handler messagequeue.Handler
	ch      chan envelope
	done    chan struct{}
	once    sync.Once
}

// Queue fans messages out to subscribers whose pattern matches the subject.
// Each subscription has its own buffered channel and worker goroutine; a
// full buffer drops the message with a warning.
type Queue struct {
	mu     sync.RWMutex
	subs   map[*subscription]struct{}
	closed bool
	buffer int
	wg     sync.WaitGroup
	log    *slog.Logger
}

// New creates an in-process queue. buffer is the per-subscription backlog.
func New(buffer int, log *slog.Logger) *Queue {
	if buffer <= 0 {
		buffer = 256
	}
	if log == nil {
		log = slog.Default()
	}
	return &Queue{subs: make(map[*subscription]struct{}), buffer: buffer, log: log}
}

// Publish validates data and hands it to every matching subscriber.
func (q *Queue) Publish(ctx context.Context, subject string, data []byte) error {
	if err := messagequeue.Validate(subject, data); err != nil {
		return err
	}
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrClosed
	}
	env := envelope{requestID: logger.RequestID(ctx), subject: subject, data: data}
	for s := range q.subs {
		if !Match(s.pattern, subject) {
			continue
		}
		select {
		case s.ch <- env:
		default:
			q.log.Warn("localqueue: subscriber backlog full, dropping", "subject", subject, "pattern", s.pattern)
		}
	}
	return nil
}

// Subscribe registers handler for subjects matching pattern (NATS wildcards
// "*" and ">" are supported). The returned function stops the subscription.
func (q *Queue) Subscribe(_ context.Context, pattern string, handler messagequeue.Handler) (func(), error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil, ErrClosed
	}
	s := &subscription{
		pattern: pattern,
		handler: handler,
		ch:      make(chan envelope, q.buffer),
		done:    make(chan struct{}),
	}
	q.subs[s] = struct{}{}
	q.wg.Add(1)
	go q.run(s)

	return func() {
		q.mu.Lock()
		delete(q.subs, s)
		q.mu.Unlock()
		s.once.Do(func() { close(s.done) })
	}, nil
}

func (q *Queue) run(s *subscription) {
	defer q.wg.Done()
	for {
		select {
		case env, ok := <-s.ch:
			if !ok {
				return
			}
			q.deliver(s, env)
		case <-s.done:
			return
		}
	}
}

func (q *Queue) deliver(s *subscription, env envelope) {
	ctx := context.Background()
	if env.requestID != "" {
		ctx = logger.WithRequestID(ctx, env.requestID)
	}
	if err := s.handler(ctx, env.subject, env.data); err != nil {
		logger.From(ctx, q.log).Error("message handler failed", "subject", env.subject, "error", err)
	}
}

// Drain stops accepting messages and waits for subscribers to process
// what is already queued.
func (q *Queue) Drain() error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	for s := range q.subs {
		close(s.ch)
	}
	q.subs = map[*subscription]struct{}{}
	q.mu.Unlock()
	q.wg.Wait()
	return nil
}

// Close stops all subscribers without waiting for queued messages.
func (q *Queue) Close() error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	for s := range q.subs {
		s.once.Do(func() { close(s.done) })
	}
	q.subs = map[*subscription]struct{}{}
	q.mu.Unlock()
	q.wg.Wait()
	return nil
}

// IsConnected reports whether the queue still accepts messages.
func (q *Queue) IsConnected() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return !q.closed
}

// Match reports whether subject matches a NATS-style pattern.
func Match(pattern, subject string) bool {
	p := strings.Split(pattern, ".")
	s := strings.Split(subject, ".")
	for i, tok := range p {
		if tok == ">" {
			return len(s) > i
		}
		if i >= len(s) {
			return false
		}
		if tok != "*" && tok != s[i] {
			return false
		}
	}
	return len(p) == len(s)
}
