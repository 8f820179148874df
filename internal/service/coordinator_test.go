package service

import (
	"context"
	"testing"
	"time"

	"support-chat/backend/internal/models"
	"support-chat/backend/internal/repository/repotest"
	"support-chat/backend/pkg/config"
	"support-chat/backend/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVisitorConversationFlow(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	started, err := f.coord.StartSession(ctx)
	require.NoError(t, err)
	assert.NotZero(t, started.SessionID)
	assert.NotEmpty(t, started.VisitorToken)

	f.coord.SetTyping(ctx, started.SessionID, models.SenderVisitor, true)
	assert.True(t, f.coord.GetTyping(ctx, started.SessionID, ""))

	_, err = f.coord.AppendVisitorMessage(ctx, started.SessionID, models.MessagePayload{Text: strPtr("Hello")})
	require.NoError(t, err)
	assert.False(t, f.coord.GetTyping(ctx, started.SessionID, ""), "sending clears the typing flag")

	_, err = f.coord.AppendOperatorMessage(ctx, started.SessionID, models.MessagePayload{Text: strPtr("Hi, how can I help?")})
	require.NoError(t, err)

	view, err := f.coord.FetchSession(ctx, started.SessionID)
	require.NoError(t, err)
	require.Len(t, view.Messages, 2)
	assert.Equal(t, models.SenderVisitor, view.Messages[0].Sender)
	assert.Equal(t, models.SenderOperator, view.Messages[1].Sender)

	sent := f.notifier.all()
	require.Len(t, sent, 1, "only visitor messages alert operators")
	assert.Equal(t, notification{sessionID: started.SessionID, preview: "Hello"}, sent[0])
}

func TestVisitorAttachmentNotification(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	started, err := f.coord.StartSession(ctx)
	require.NoError(t, err)

	_, err = f.coord.AppendVisitorMessage(ctx, started.SessionID, models.MessagePayload{Attachment: strPtr("/uploads/x.pdf")})
	require.NoError(t, err)

	sent := f.notifier.all()
	require.Len(t, sent, 1)
	assert.Empty(t, sent[0].preview)
	assert.Equal(t, "/uploads/x.pdf", sent[0].attachment)
}

func TestRejectedMessagesDoNotNotify(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	_, err := f.coord.AppendVisitorMessage(ctx, 12345, models.MessagePayload{Text: strPtr("anyone?")})
	assert.ErrorIs(t, err, ErrSessionNotFound)

	started, err := f.coord.StartSession(ctx)
	require.NoError(t, err)
	_, err = f.coord.AppendVisitorMessage(ctx, started.SessionID, models.MessagePayload{})
	assert.True(t, IsValidation(err))

	assert.Empty(t, f.notifier.all())
}

func TestEphemeralOutageDoesNotFailMessages(t *testing.T) {
	f := newFixture(t, downStore{})
	ctx := context.Background()

	started, err := f.coord.StartSession(ctx)
	require.NoError(t, err)

	f.coord.SetTyping(ctx, started.SessionID, models.SenderVisitor, true)
	f.coord.Heartbeat(ctx, started.SessionID, models.SenderVisitor)

	_, err = f.coord.AppendVisitorMessage(ctx, started.SessionID, models.MessagePayload{Text: strPtr("Hello")})
	require.NoError(t, err)

	assert.False(t, f.coord.GetTyping(ctx, started.SessionID, ""))
	assert.Equal(t, OnlineStatus{}, f.coord.OnlineStatus(ctx, started.SessionID))

	view, err := f.coord.FetchSession(ctx, started.SessionID)
	require.NoError(t, err)
	assert.Len(t, view.Messages, 1)
	assert.Len(t, f.notifier.all(), 1)
}

func TestPresenceThroughCoordinator(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	f.coord.Heartbeat(ctx, 9, models.SenderOperator)
	assert.Equal(t, OnlineStatus{OperatorOnline: true}, f.coord.OnlineStatus(ctx, 9))

	f.clock.Advance(31 * time.Second)
	assert.Equal(t, OnlineStatus{}, f.coord.OnlineStatus(ctx, 9))
}

func TestCoordinatorWithoutNotifier(t *testing.T) {
	clock := newFakeClock()
	store := newTestCache(t, clock)
	repo, _ := repotest.NewRepository(t)
	coord := NewCoordinator(
		NewSessionManager(repo, false, clock.Now),
		NewPresenceTracker(store, PresenceConfig{TTL: time.Minute, Freshness: time.Minute}, clock.Now),
		NewTypingTracker(store, time.Second, config.TypingScopeSession),
		nil,
		WithLogger(logger.Discard()),
	)
	ctx := context.Background()

	started, err := coord.StartSession(ctx)
	require.NoError(t, err)
	_, err = coord.AppendVisitorMessage(ctx, started.SessionID, models.MessagePayload{Text: strPtr("Hello")})
	require.NoError(t, err)

	require.NoError(t, coord.CloseSession(ctx, started.SessionID))
	sessions, err := coord.ListSessions(ctx, true, 10)
	require.NoError(t, err)
	assert.Empty(t, sessions)
}
