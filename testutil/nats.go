package testutil

import (
	"context"
	"maps"
	"sync"
	"testing"
	"time"

	"github.com/c360/barstreams/natsclient"
)

// Message is one message recorded by Transport.
type Message struct {
	Subject string
	Data    []byte
	Headers map[string]string
}

// Transport is an in-memory natsclient stand-in. It is safe for concurrent
// use.
type Transport struct {
	mu        sync.Mutex
	handlers  map[string]func(context.Context, *natsclient.Message)
	queues    map[string]string
	published []Message

	publishFailures int
	publishErr      error
	subscribeErr    error
}

// NewTransport creates an empty transport.
func NewTransport() *Transport {
	return &Transport{
		handlers: make(map[string]func(context.Context, *natsclient.Message)),
		queues:   make(map[string]string),
	}
}

// FailPublish makes the next n publishes return err.
func (tr *Transport) FailPublish(n int, err error) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	tr.publishFailures, tr.publishErr = n, err
}

// FailSubscribe makes every later subscribe return err.
func (tr *Transport) FailSubscribe(err error) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	tr.subscribeErr = err
}

// PublishMsg records the message.
func (tr *Transport) PublishMsg(_ context.Context, subject string, data []byte, headers map[string]string) error {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	if tr.publishFailures > 0 {
		tr.publishFailures--
		return tr.publishErr
	}
	tr.published = append(tr.published, Message{
		Subject: subject,
		Data:    append([]byte(nil), data...),
		Headers: maps.Clone(headers),
	})
	return nil
}

// Publish records the message without headers.
func (tr *Transport) Publish(ctx context.Context, subject string, data []byte) error {
	return tr.PublishMsg(ctx, subject, data, nil)
}

// SubscribeMsg keeps handler as the subject's only handler. The returned
// subscription is nil, which callers must tolerate on Stop.
func (tr *Transport) SubscribeMsg(
	ctx context.Context, subject string, handler func(context.Context, *natsclient.Message),
) (*natsclient.Subscription, error) {
	return tr.QueueSubscribeMsg(ctx, subject, "", handler)
}

// QueueSubscribeMsg is SubscribeMsg that also records the queue group.
func (tr *Transport) QueueSubscribeMsg(
	_ context.Context, subject, queue string, handler func(context.Context, *natsclient.Message),
) (*natsclient.Subscription, error) {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	if tr.subscribeErr != nil {
		return nil, tr.subscribeErr
	}
	tr.handlers[subject] = handler
	tr.queues[subject] = queue
	return nil, nil
}

// Subscribed reports whether subject has a handler.
func (tr *Transport) Subscribed(subject string) bool {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	_, ok := tr.handlers[subject]
	return ok
}

// Queue returns the queue group subject was subscribed with.
func (tr *Transport) Queue(subject string) string {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return tr.queues[subject]
}

// Deliver runs subject's handler on one message, with a one second
// deadline. It fails the test when nothing subscribed to subject.
func (tr *Transport) Deliver(t testing.TB, subject string, data []byte, headers map[string]string) {
	t.Helper()
	tr.mu.Lock()
	handler := tr.handlers[subject]
	tr.mu.Unlock()
	if handler == nil {
		t.Fatalf("no subscription on %s", subject)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	handler(ctx, &natsclient.Message{Subject: subject, Data: data, Headers: headers})
}

// Published returns the messages recorded on subject, in publish order.
func (tr *Transport) Published(subject string) []Message {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	var out []Message
	for _, m := range tr.published {
		if m.Subject == subject {
			out = append(out, m)
		}
	}
	return out
}

// Count returns the number of recorded messages on every subject.
func (tr *Transport) Count() int {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	return len(tr.published)
}

// Reset drops every recorded message.
func (tr *Transport) Reset() {
	tr.mu.Lock()
	defer tr.mu.Unlock()
	tr.published = nil
}

// WaitForMessages polls until subject holds at least n messages and returns
// them, failing the test after timeout.
func (tr *Transport) WaitForMessages(t testing.TB, subject string, n int, timeout time.Duration) []Message {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for {
		msgs := tr.Published(subject)
		if len(msgs) >= n {
			return msgs
		}
		if time.Now().After(deadline) {
			t.Fatalf("timeout waiting for %d messages on %s (got %d)", n, subject, len(msgs))
			return nil
		}
		time.Sleep(5 * time.Millisecond)
	}
}
