package service

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"support-chat/backend/internal/models"
	"support-chat/backend/internal/repository"
	"support-chat/backend/internal/repository/repotest"
	"support-chat/backend/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const window = 3 * 24 * time.Hour

func TestReaperDeactivatesOnlyStaleSessions(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	repo, _ := repotest.NewRepository(t)
	sessions := NewSessionManager(repo, false, clock.Now)
	reaper := NewReaper(repo, ReaperConfig{Interval: time.Hour, Window: window}, clock.Now, logger.Discard(), nil)

	stale, err := sessions.StartSession(ctx, "stale")
	require.NoError(t, err)

	clock.Advance(2 * 24 * time.Hour)
	busy, err := sessions.StartSession(ctx, "busy")
	require.NoError(t, err)

	clock.Advance(24*time.Hour + time.Second)
	_, err = sessions.AppendMessage(ctx, busy.ID, models.SenderVisitor, models.MessagePayload{Text: strPtr("ping")})
	require.NoError(t, err)

	n, err := reaper.SweepOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, _, err := sessions.GetSession(ctx, stale.ID)
	require.NoError(t, err)
	assert.False(t, got.IsActive)

	got, _, err = sessions.GetSession(ctx, busy.ID)
	require.NoError(t, err)
	assert.True(t, got.IsActive)

	// a later message does not reactivate
	_, err = sessions.AppendMessage(ctx, stale.ID, models.SenderVisitor, models.MessagePayload{Text: strPtr("back")})
	require.NoError(t, err)
	n, err = reaper.SweepOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	got, _, err = sessions.GetSession(ctx, stale.ID)
	require.NoError(t, err)
	assert.False(t, got.IsActive)
}

func TestReaperSessionAtExactWindowStaysActive(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	repo, _ := repotest.NewRepository(t)
	sessions := NewSessionManager(repo, false, clock.Now)
	reaper := NewReaper(repo, ReaperConfig{Interval: time.Hour, Window: window}, clock.Now, logger.Discard(), nil)

	s, err := sessions.StartSession(ctx, "edge")
	require.NoError(t, err)

	clock.Advance(window)
	n, err := reaper.SweepOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	got, _, err := sessions.GetSession(ctx, s.ID)
	require.NoError(t, err)
	assert.True(t, got.IsActive)
}

func TestReaperRunStopsOnCancel(t *testing.T) {
	repo, _ := repotest.NewRepository(t)
	reaper := NewReaper(repo, ReaperConfig{Interval: 10 * time.Millisecond, Window: window, RunOnStart: true}, nil, logger.Discard(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		reaper.Run(ctx)
		close(done)
	}()

	time.Sleep(30 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("reaper did not stop after cancellation")
	}
}

// flakyRepo fails the first DeactivateStale call and succeeds afterwards
type flakyRepo struct {
	repository.ChatRepository
	sweeps atomic.Int32
}

func (r *flakyRepo) DeactivateStale(ctx context.Context, cutoff time.Time) (int64, error) {
	if r.sweeps.Add(1) == 1 {
		return 0, errors.New("database is locked")
	}
	return r.ChatRepository.DeactivateStale(ctx, cutoff)
}

func TestReaperRunContinuesAfterSweepFailure(t *testing.T) {
	base, _ := repotest.NewRepository(t)
	repo := &flakyRepo{ChatRepository: base}
	reaper := NewReaper(repo, ReaperConfig{Interval: 10 * time.Millisecond, Window: window, RunOnStart: true}, nil, logger.Discard(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		reaper.Run(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool { return repo.sweeps.Load() >= 2 }, time.Second, 5*time.Millisecond)

	select {
	case <-done:
		t.Fatal("reaper stopped before cancellation")
	default:
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("reaper did not stop after cancellation")
	}
}
