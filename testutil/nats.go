package testutil

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/c360/fr-service/natsclient"
)

var _ natsclient.Messenger = (*MockNATSClient)(nil)

// MockNATSClient is an in-memory natsclient.Messenger. Publish records the
// message and calls every handler whose subscription matches the subject,
// including "*" and ">" wildcards. Safe for concurrent use.
type MockNATSClient struct {
	mu       sync.RWMutex
	messages map[string][][]byte
	subs     map[int]*mockSubscription
	nextID   int
	closed   bool

	// PublishErr, when set, is returned by Publish without recording.
	PublishErr error
}

type mockSubscription struct {
	client  *MockNATSClient
	id      int
	subject string
	handler func(context.Context, []byte)
}

// Unsubscribe removes the subscription. Calling it twice is harmless.
func (s *mockSubscription) Unsubscribe() error {
	s.client.mu.Lock()
	defer s.client.mu.Unlock()
	delete(s.client.subs, s.id)
	return nil
}

// NewMockNATSClient creates a new mock NATS client.
func NewMockNATSClient() *MockNATSClient {
	return &MockNATSClient{
		messages: make(map[string][][]byte),
		subs:     make(map[int]*mockSubscription),
	}
}

// Publish records data under subject and delivers it synchronously.
func (c *MockNATSClient) Publish(ctx context.Context, subject string, data []byte) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return fmt.Errorf("client is closed")
	}
	if c.PublishErr != nil {
		err := c.PublishErr
		c.mu.Unlock()
		return err
	}

	msg := append([]byte(nil), data...)
	c.messages[subject] = append(c.messages[subject], msg)

	// Copy handlers to avoid holding lock during callbacks
	var handlers []func(context.Context, []byte)
	for _, sub := range c.subs {
		if SubjectMatches(sub.subject, subject) {
			handlers = append(handlers, sub.handler)
		}
	}
	c.mu.Unlock()

	for _, handler := range handlers {
		msgCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		handler(msgCtx, msg)
		cancel()
	}
	return nil
}

// Subscribe registers handler for subject, which may contain wildcards.
func (c *MockNATSClient) Subscribe(ctx context.Context, subject string, handler func(context.Context, []byte)) (natsclient.Subscription, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, fmt.Errorf("client is closed")
	}

	c.nextID++
	sub := &mockSubscription{client: c, id: c.nextID, subject: subject, handler: handler}
	c.subs[sub.id] = sub
	return sub, nil
}

// SubscriptionCount returns the number of live subscriptions.
func (c *MockNATSClient) SubscriptionCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.subs)
}

// GetMessages returns a copy of all messages published on subject.
func (c *MockNATSClient) GetMessages(subject string) [][]byte {
	c.mu.RLock()
	defer c.mu.RUnlock()

	msgs := c.messages[subject]
	if msgs == nil {
		return nil
	}
	result := make([][]byte, len(msgs))
	copy(result, msgs)
	return result
}

// GetMessageCount returns the number of messages on a subject.
func (c *MockNATSClient) GetMessageCount(subject string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.messages[subject])
}

// Subjects returns every subject that has seen a message.
func (c *MockNATSClient) Subjects() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	subjects := make([]string, 0, len(c.messages))
	for s := range c.messages {
		subjects = append(subjects, s)
	}
	return subjects
}

// ClearAll clears all messages from all subjects.
func (c *MockNATSClient) ClearAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = make(map[string][][]byte)
}

// Close closes the mock client.
func (c *MockNATSClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

// IsClosed returns whether the client is closed.
func (c *MockNATSClient) IsClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}

// SubjectMatches reports whether subject matches pattern using NATS
// wildcard rules: "*" matches one token, a trailing ">" one or more.
func SubjectMatches(pattern, subject string) bool {
	pt := strings.Split(pattern, ".")
	st := strings.Split(subject, ".")
	for i, tok := range pt {
		if tok == ">" {
			return i == len(pt)-1 && len(st) > i
		}
		if i >= len(st) {
			return false
		}
		if tok != "*" && tok != st[i] {
			return false
		}
	}
	return len(pt) == len(st)
}

// WaitForMessageCount waits until subject has at least count messages.
func WaitForMessageCount(t testing.TB, client *MockNATSClient, subject string, count int, timeout time.Duration) [][]byte {
	t.Helper()

	deadline := time.After(timeout)
	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()

	for {
		if msgs := client.GetMessages(subject); len(msgs) >= count {
			return msgs
		}
		select {
		case <-deadline:
			t.Fatalf("timeout waiting for %d messages on subject %s (got %d)",
				count, subject, client.GetMessageCount(subject))
			return nil
		case <-ticker.C:
		}
	}
}

// AssertNoMessages checks that no messages were received on a subject.
func AssertNoMessages(t testing.TB, client *MockNATSClient, subject string) {
	t.Helper()
	if n := client.GetMessageCount(subject); n > 0 {
		t.Fatalf("expected no messages on subject %s, got %d", subject, n)
	}
}
