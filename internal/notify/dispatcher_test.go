package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"support-chat/backend/pkg/logger"
	"support-chat/backend/pkg/resilience"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sent struct {
	recipient int64
	text      string
	link      string
}

type fakeChannel struct {
	mu       sync.Mutex
	sent     []sent
	calls    map[int64]int
	failures map[int64]error
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{calls: map[int64]int{}, failures: map[int64]error{}}
}

func (c *fakeChannel) Send(_ context.Context, recipient int64, text, link string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls[recipient]++
	if err := c.failures[recipient]; err != nil {
		return err
	}
	c.sent = append(c.sent, sent{recipient, text, link})
	return nil
}

func (c *fakeChannel) delivered() []sent {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]sent(nil), c.sent...)
}

func (c *fakeChannel) callsTo(recipient int64) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[recipient]
}

func testConfig(recipients ...int64) Config {
	return Config{
		Recipients:     recipients,
		BaseURL:        "https://support.example.com/",
		Workers:        2,
		MaxAttempts:    3,
		InitialBackoff: time.Millisecond,
	}
}

func defaultBreaker() *resilience.CircuitBreaker {
	return resilience.NewCircuitBreaker(resilience.DefaultConfig("telegram"), logger.Discard())
}

func TestNotificationText(t *testing.T) {
	assert.Equal(t, "📩 New message:\n\nHello\n\nChat ID: 42", Notification{ChatID: 42, Preview: "Hello"}.Text())
	assert.Equal(t, "📩 New message:\n\n📎 Attachment: /uploads/a.png\n\nChat ID: 7", Notification{ChatID: 7, Attachment: "/uploads/a.png"}.Text())
	assert.Equal(t, "📩 New message:\n\nEmpty message\n\nChat ID: 7", Notification{ChatID: 7, Preview: "  "}.Text())

	long := Notification{ChatID: 1, Preview: strings.Repeat("я", maxPreviewRunes+10)}.Text()
	assert.Contains(t, long, "…")
}

func TestChatLink(t *testing.T) {
	assert.Equal(t, "https://support.example.com/operator?chat_id=42", ChatLink("https://support.example.com/", 42))
}

func TestDeliverIsolatesFailingRecipient(t *testing.T) {
	ch := newFakeChannel()
	ch.failures[2] = errors.New("timeout")
	d := NewDispatcher(NewMemoryQueue(4), ch, defaultBreaker(), testConfig(1, 2, 3), logger.Discard(), nil)

	errs := d.Deliver(context.Background(), Notification{ChatID: 42, Preview: "Hello"})
	require.Len(t, errs, 1)

	var ne *NotificationError
	require.ErrorAs(t, errs[0], &ne)
	assert.Equal(t, int64(2), ne.Recipient)
	assert.Equal(t, uint(42), ne.ChatID)
	assert.Equal(t, 3, ne.Attempts)
	assert.Equal(t, 3, ch.callsTo(2))

	delivered := ch.delivered()
	require.Len(t, delivered, 2)
	assert.Equal(t, int64(1), delivered[0].recipient)
	assert.Equal(t, int64(3), delivered[1].recipient)
	assert.Equal(t, "https://support.example.com/operator?chat_id=42", delivered[0].link)
	assert.Contains(t, delivered[0].text, "Hello")
	assert.Contains(t, delivered[0].text, "Chat ID: 42")
}

func TestDeliverDoesNotRetryRejections(t *testing.T) {
	ch := newFakeChannel()
	ch.failures[5] = fmt.Errorf("%w: chat not found", ErrRejected)
	d := NewDispatcher(NewMemoryQueue(1), ch, defaultBreaker(), testConfig(5), logger.Discard(), nil)

	errs := d.Deliver(context.Background(), Notification{ChatID: 1, Preview: "hi"})
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], ErrRejected)
	assert.Equal(t, 1, ch.callsTo(5))
}

func TestDeliverRejectionsDoNotOpenCircuit(t *testing.T) {
	ch := newFakeChannel()
	for id := int64(1); id <= 5; id++ {
		ch.failures[id] = fmt.Errorf("%w: chat not found", ErrRejected)
	}
	breaker := defaultBreaker()
	d := NewDispatcher(NewMemoryQueue(1), ch, breaker, testConfig(1, 2, 3, 4, 5, 6), logger.Discard(), nil)

	for i := 0; i < 3; i++ {
		errs := d.Deliver(context.Background(), Notification{ChatID: 9, Preview: "hi"})
		require.Len(t, errs, 5)
		for _, err := range errs {
			assert.ErrorIs(t, err, ErrRejected)
		}
	}

	assert.Equal(t, resilience.StateClosed, breaker.State())
	assert.Equal(t, 3, ch.callsTo(6))
	assert.Len(t, ch.delivered(), 3)
}

// A channel-wide outage opens the circuit and later recipients are skipped
func TestDeliverStopsWhenCircuitOpens(t *testing.T) {
	ch := newFakeChannel()
	ch.failures[1] = errors.New("bad gateway")
	breaker := resilience.NewCircuitBreaker(resilience.Config{FailureThreshold: 1, SuccessThreshold: 1, RetryTimeout: time.Hour}, logger.Discard())
	d := NewDispatcher(NewMemoryQueue(1), ch, breaker, testConfig(1, 2), logger.Discard(), nil)

	errs := d.Deliver(context.Background(), Notification{ChatID: 1, Preview: "hi"})
	require.Len(t, errs, 2)
	assert.ErrorIs(t, errs[1], resilience.ErrCircuitOpen)
	assert.Equal(t, 1, ch.callsTo(1))
	assert.Zero(t, ch.callsTo(2))
}

func TestNotifyDropsWhenQueueFull(t *testing.T) {
	q := NewMemoryQueue(1)
	d := NewDispatcher(q, newFakeChannel(), nil, testConfig(1), logger.Discard(), nil)

	d.NotifyNewMessage(1, "first", "")
	d.NotifyNewMessage(1, "second", "")
	assert.Equal(t, 1, q.Len())

	n := <-q.Messages()
	assert.Equal(t, "first", n.Preview)
}

func TestNotifyWithoutRecipientsIsNoop(t *testing.T) {
	q := NewMemoryQueue(1)
	d := NewDispatcher(q, newFakeChannel(), nil, testConfig(), logger.Discard(), nil)

	d.NotifyNewMessage(1, "hello", "")
	assert.Zero(t, q.Len())
}

func TestDispatcherWorkersDeliverAndStop(t *testing.T) {
	ch := newFakeChannel()
	d := NewDispatcher(NewMemoryQueue(8), ch, nil, testConfig(10, 20), logger.Discard(), nil)
	d.Start()

	d.NotifyNewMessage(3, "Hello", "")
	assert.Eventually(t, func() bool { return len(ch.delivered()) == 2 }, time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, d.Stop(ctx))
	require.NoError(t, d.Stop(ctx), "stop is idempotent")

	// publishing after stop is dropped, not blocked
	d.NotifyNewMessage(3, "late", "")
}
