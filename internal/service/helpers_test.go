package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"support-chat/backend/internal/repository/repotest"
	"support-chat/backend/pkg/cache"
	"support-chat/backend/pkg/config"
	"support-chat/backend/pkg/logger"
)

var epoch = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock { return &fakeClock{now: epoch} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestCache(t *testing.T, clock *fakeClock) *cache.Cache {
	c := cache.New(cache.WithClock(clock.Now), cache.WithCleanupInterval(0))
	t.Cleanup(func() { _ = c.Close() })
	return c
}

var errStoreDown = errors.New("connection refused")

// downStore fails every call
type downStore struct{}

func (downStore) Set(context.Context, string, string, time.Duration) error { return errStoreDown }
func (downStore) Get(context.Context, string) (string, bool, error)        { return "", false, errStoreDown }
func (downStore) Exists(context.Context, string) (bool, error)             { return false, errStoreDown }
func (downStore) Delete(context.Context, string) error                     { return errStoreDown }

type notification struct {
	sessionID  uint
	preview    string
	attachment string
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []notification
}

func (n *recordingNotifier) NotifyNewMessage(sessionID uint, preview, attachment string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, notification{sessionID, preview, attachment})
}

func (n *recordingNotifier) all() []notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]notification(nil), n.sent...)
}

type fixture struct {
	clock    *fakeClock
	sessions *SessionManager
	presence *PresenceTracker
	typing   *TypingTracker
	notifier *recordingNotifier
	coord    *Coordinator
}

func newFixture(t *testing.T, store EphemeralStore) *fixture {
	t.Helper()
	clock := newFakeClock()
	if store == nil {
		store = newTestCache(t, clock)
	}
	repo, _ := repotest.NewRepository(t)

	f := &fixture{
		clock:    clock,
		sessions: NewSessionManager(repo, false, clock.Now),
		presence: NewPresenceTracker(store, PresenceConfig{
			TTL:       35 * time.Second,
			Freshness: 30 * time.Second,
			Mode:      config.PresencePerRole,
		}, clock.Now),
		typing:   NewTypingTracker(store, 3*time.Second, config.TypingScopeSession),
		notifier: &recordingNotifier{},
	}
	f.coord = NewCoordinator(f.sessions, f.presence, f.typing, f.notifier, WithLogger(logger.Discard()))
	return f
}

func strPtr(s string) *string { return &s }
