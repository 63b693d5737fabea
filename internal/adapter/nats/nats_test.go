package nats

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/shopspring/decimal"

	"github.com/nice-bills/substrate/internal/logger"
	"github.com/nice-bills/substrate/internal/port/messagequeue"
)

const waitFor = 10 * time.Second

var errHandler = errors.New("handler failed")

// connect returns a Queue against NATS_URL or skips.
func connect(t *testing.T) *Queue {
	t.Helper()
	url := os.Getenv("NATS_URL")
	if url == "" {
		t.Skip("requires NATS_URL")
	}
	q, err := Connect(context.Background(), url, nil)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { _ = q.Close() })
	return q
}

type delivery struct {
	ctx  context.Context
	data []byte
}

// subscribe collects deliveries on subject through Queue.Subscribe.
func subscribe(t *testing.T, q *Queue, subject string, fail bool) <-chan delivery {
	t.Helper()
	ch := make(chan delivery, 16)
	stop, err := q.Subscribe(context.Background(), subject, func(ctx context.Context, _ string, data []byte) error {
		select {
		case ch <- delivery{ctx: ctx, data: data}:
		default:
		}
		if fail {
			return errHandler
		}
		return nil
	})
	if err != nil {
		t.Fatalf("subscribe %s: %v", subject, err)
	}
	t.Cleanup(stop)
	return ch
}

// watchDLQ reads the dead letter subject with a raw consumer so payloads
// are not validated a second time.
func watchDLQ(t *testing.T, q *Queue, subject string) <-chan []byte {
	t.Helper()
	ctx := context.Background()
	cons, err := q.js.CreateOrUpdateConsumer(ctx, streamName, jetstream.ConsumerConfig{
		FilterSubject: dlqPrefix + subject,
		AckPolicy:     jetstream.AckExplicitPolicy,
		DeliverPolicy: jetstream.DeliverNewPolicy,
	})
	if err != nil {
		t.Fatalf("dlq consumer: %v", err)
	}
	ch := make(chan []byte, 4)
	cc, err := cons.Consume(func(msg jetstream.Msg) {
		select {
		case ch <- msg.Data():
		default:
		}
		_ = msg.Ack()
	})
	if err != nil {
		t.Fatalf("dlq consume: %v", err)
	}
	t.Cleanup(cc.Stop)
	return ch
}

func receive[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(waitFor):
		t.Fatal("timed out waiting for message")
	}
	var zero T
	return zero
}

func TestCredAwardedRoundTrip(t *testing.T) {
	q := connect(t)
	got := subscribe(t, q, messagequeue.SubjectCredAwarded, false)

	sent := messagequeue.CredAwardedPayload{AgentID: "agent-" + t.Name(), Amount: decimal.RequireFromString("12.5"), Balance: "12.5"}
	data, _ := json.Marshal(sent)
	ctx := logger.WithRequestID(context.Background(), "req-award-1")
	if err := q.Publish(ctx, messagequeue.SubjectCredAwarded, data); err != nil {
		t.Fatalf("publish: %v", err)
	}

	// Earlier runs may have left messages on the subject; wait for ours.
	deadline := time.After(waitFor)
	for {
		select {
		case d := <-got:
			var p messagequeue.CredAwardedPayload
			if json.Unmarshal(d.data, &p) != nil || p.AgentID != sent.AgentID {
				continue
			}
			if !p.Amount.Equal(sent.Amount) {
				t.Errorf("expected amount %s, got %s", sent.Amount, p.Amount)
			}
			if id := logger.RequestID(d.ctx); id != "req-award-1" {
				t.Errorf("expected request id req-award-1, got %q", id)
			}
			return
		case <-deadline:
			t.Fatal("timed out waiting for cred.awarded")
		}
	}
}

func TestInvalidPayloadGoesToDLQ(t *testing.T) {
	q := connect(t)
	subject := messagequeue.SubjectTierChanged
	dlq := watchDLQ(t, q, subject)
	subscribe(t, q, subject, false)

	if err := q.Publish(context.Background(), subject, []byte(`{"agent_id":""}`)); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if got := string(receive(t, dlq)); got != `{"agent_id":""}` {
		t.Errorf("expected rejected payload in DLQ, got %q", got)
	}
}

func TestRetriesExhaustedGoToDLQ(t *testing.T) {
	q := connect(t)
	subject := "ledger.test." + t.Name()
	dlq := watchDLQ(t, q, subject)
	subscribe(t, q, subject, true)

	// Already on the last attempt: the next failure dead-letters it.
	msg := &nats.Msg{Subject: subject, Data: []byte(`{"attempt":"last"}`), Header: nats.Header{}}
	msg.Header.Set(headerRetryCount, strconv.Itoa(maxRetries-1))
	if _, err := q.js.PublishMsg(context.Background(), msg); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if got := string(receive(t, dlq)); got != `{"attempt":"last"}` {
		t.Errorf("expected exhausted payload in DLQ, got %q", got)
	}
}

func TestIdempotencyBucket(t *testing.T) {
	q := connect(t)
	ctx := context.Background()

	kv, err := q.KeyValue(ctx, "TEST_IDEMPOTENCY", time.Minute)
	if err != nil {
		t.Fatalf("key value: %v", err)
	}
	if _, err := kv.Put(ctx, "register.k1", []byte(`{"status":201}`)); err != nil {
		t.Fatalf("put: %v", err)
	}
	entry, err := kv.Get(ctx, "register.k1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(entry.Value()) != `{"status":201}` {
		t.Errorf("expected stored response, got %q", entry.Value())
	}
	if err := kv.Delete(ctx, "register.k1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := kv.Get(ctx, "register.k1"); !errors.Is(err, jetstream.ErrKeyNotFound) {
		t.Errorf("expected ErrKeyNotFound after delete, got %v", err)
	}
	if !q.IsConnected() {
		t.Error("expected queue to report connected")
	}
}

func TestRetryCount(t *testing.T) {
	for _, tc := range []struct {
		header string
		want   int
	}{
		{"", 0},
		{"2", 2},
		{"-1", 0},
		{"garbage", 0},
	} {
		h := nats.Header{}
		if tc.header != "" {
			h.Set(headerRetryCount, tc.header)
		}
		if got := retryCount(h); got != tc.want {
			t.Errorf("retryCount(%q): expected %d, got %d", tc.header, tc.want, got)
		}
	}
}
