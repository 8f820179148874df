package service

import (
	"context"
	"errors"
	"time"

	"support-chat/backend/internal/models"
	"support-chat/backend/pkg/logger"
	"support-chat/backend/shared/observability"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const defaultEphemeralTimeout = 2 * time.Second

var tracer = otel.Tracer("support-chat/backend/internal/service")

// Notifier accepts new-message alerts for operators. Implementations must not block.
type Notifier interface {
	NotifyNewMessage(sessionID uint, previewText, attachmentRef string)
}

// StartResult identifies a freshly started chat to the visitor
type StartResult struct {
	SessionID    uint   `json:"chat_id"`
	VisitorToken string `json:"session_id"`
}

// SessionView is a session with its full message history
type SessionView struct {
	Session  *models.ChatSession
	Messages []models.Message
}

// Coordinator exposes the chat operations used by the HTTP layer.
// Only persistence failures fail a request; typing, presence and
// notification problems are logged and absorbed.
type Coordinator struct {
	sessions         *SessionManager
	presence         *PresenceTracker
	typing           *TypingTracker
	notifier         Notifier
	log              *logger.Logger
	metrics          *observability.ChatMetrics
	ephemeralTimeout time.Duration
}

// CoordinatorOption customizes a Coordinator
type CoordinatorOption func(*Coordinator)

// WithLogger sets the coordinator logger
func WithLogger(l *logger.Logger) CoordinatorOption {
	return func(c *Coordinator) { c.log = l }
}

// WithMetrics sets the counters the coordinator records to
func WithMetrics(m *observability.ChatMetrics) CoordinatorOption {
	return func(c *Coordinator) { c.metrics = m }
}

// WithEphemeralTimeout bounds each typing/presence store call
func WithEphemeralTimeout(d time.Duration) CoordinatorOption {
	return func(c *Coordinator) { c.ephemeralTimeout = d }
}

// NewCoordinator wires the chat components together. notifier may be nil.
func NewCoordinator(sessions *SessionManager, presence *PresenceTracker, typing *TypingTracker, notifier Notifier, opts ...CoordinatorOption) *Coordinator {
	c := &Coordinator{
		sessions:         sessions,
		presence:         presence,
		typing:           typing,
		notifier:         notifier,
		ephemeralTimeout: defaultEphemeralTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.log == nil {
		c.log = logger.GetGlobal()
	}
	return c
}

func startSpan(ctx context.Context, name string, sessionID uint) (context.Context, trace.Span) {
	ctx, span := tracer.Start(ctx, name)
	if sessionID != 0 {
		span.SetAttributes(attribute.Int64("chat.id", int64(sessionID)))
	}
	return ctx, span
}

func endSpan(span trace.Span, err error) {
	if err != nil && !errors.Is(err, ErrSessionNotFound) && !IsValidation(err) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// StartSession creates a visitor and an active session for it
func (c *Coordinator) StartSession(ctx context.Context) (res *StartResult, err error) {
	ctx, span := startSpan(ctx, "chat.start_session", 0)
	defer func() { endSpan(span, err) }()

	token := uuid.NewString()
	session, err := c.sessions.StartSession(ctx, token)
	if err != nil {
		return nil, err
	}
	c.metrics.SessionStarted(ctx)

	c.log.WithChatID(session.ID).Info("Chat session started")
	return &StartResult{SessionID: session.ID, VisitorToken: token}, nil
}

// AppendVisitorMessage stores a visitor message, clears the visitor's typing flag and alerts operators
func (c *Coordinator) AppendVisitorMessage(ctx context.Context, sessionID uint, payload models.MessagePayload) (msg *models.Message, err error) {
	ctx, span := startSpan(ctx, "chat.append_visitor_message", sessionID)
	defer func() { endSpan(span, err) }()

	msg, err = c.appendMessage(ctx, sessionID, models.SenderVisitor, payload)
	if err != nil {
		return nil, err
	}

	if c.notifier != nil {
		var preview, attachment string
		if msg.Text != nil {
			preview = *msg.Text
		}
		if msg.FileURL != nil {
			attachment = *msg.FileURL
		}
		c.notifier.NotifyNewMessage(sessionID, preview, attachment)
	}
	return msg, nil
}

// AppendOperatorMessage stores an operator reply and clears the operator's typing flag
func (c *Coordinator) AppendOperatorMessage(ctx context.Context, sessionID uint, payload models.MessagePayload) (msg *models.Message, err error) {
	ctx, span := startSpan(ctx, "chat.append_operator_message", sessionID)
	defer func() { endSpan(span, err) }()

	return c.appendMessage(ctx, sessionID, models.SenderOperator, payload)
}

func (c *Coordinator) appendMessage(ctx context.Context, sessionID uint, sender models.Sender, payload models.MessagePayload) (*models.Message, error) {
	msg, err := c.sessions.AppendMessage(ctx, sessionID, sender, payload)
	if err != nil {
		return nil, err
	}
	c.metrics.MessageStored(ctx, string(sender))

	// The message is durable at this point; a stale typing flag expires on its own
	ectx, cancel := c.ephemeralContext(ctx)
	defer cancel()
	if err := c.typing.Clear(ectx, sessionID, sender); err != nil {
		c.ephemeralFailed(ctx, "clear_typing", sessionID, err)
	}
	return msg, nil
}

// FetchSession returns a session and its history
func (c *Coordinator) FetchSession(ctx context.Context, sessionID uint) (view *SessionView, err error) {
	ctx, span := startSpan(ctx, "chat.fetch_session", sessionID)
	defer func() { endSpan(span, err) }()

	session, messages, err := c.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return &SessionView{Session: session, Messages: messages}, nil
}

// CloseSession deactivates a session
func (c *Coordinator) CloseSession(ctx context.Context, sessionID uint) (err error) {
	ctx, span := startSpan(ctx, "chat.close_session", sessionID)
	defer func() { endSpan(span, err) }()

	if err = c.sessions.CloseSession(ctx, sessionID); err != nil {
		return err
	}
	c.log.WithChatID(sessionID).Info("Chat session closed")
	return nil
}

// ListSessions returns the operator overview
func (c *Coordinator) ListSessions(ctx context.Context, activeOnly bool, limit int) (sessions []models.ChatSession, err error) {
	ctx, span := startSpan(ctx, "chat.list_sessions", 0)
	defer func() { endSpan(span, err) }()

	return c.sessions.ListSessions(ctx, activeOnly, limit)
}

// SetTyping raises or clears a typing flag. Store failures are logged.
func (c *Coordinator) SetTyping(ctx context.Context, sessionID uint, role models.Role, isTyping bool) {
	ctx, span := startSpan(ctx, "chat.set_typing", sessionID)
	defer span.End()

	ectx, cancel := c.ephemeralContext(ctx)
	defer cancel()
	if err := c.typing.SetTyping(ectx, sessionID, role, isTyping); err != nil {
		c.ephemeralFailed(ctx, "set_typing", sessionID, err)
	}
}

// GetTyping reports whether role (or anyone, for an empty role) is typing. Store failures read as false.
func (c *Coordinator) GetTyping(ctx context.Context, sessionID uint, role models.Role) bool {
	ctx, span := startSpan(ctx, "chat.get_typing", sessionID)
	defer span.End()

	ectx, cancel := c.ephemeralContext(ctx)
	defer cancel()
	typing, err := c.typing.IsTyping(ectx, sessionID, role)
	if err != nil {
		c.ephemeralFailed(ctx, "get_typing", sessionID, err)
		return false
	}
	return typing
}

// Heartbeat records role as present. Store failures are logged.
func (c *Coordinator) Heartbeat(ctx context.Context, sessionID uint, role models.Role) {
	ctx, span := startSpan(ctx, "chat.heartbeat", sessionID)
	defer span.End()

	ectx, cancel := c.ephemeralContext(ctx)
	defer cancel()
	if err := c.presence.Heartbeat(ectx, sessionID, role); err != nil {
		c.ephemeralFailed(ctx, "heartbeat", sessionID, err)
	}
}

// OnlineStatus reports which parties are online. Store failures read as offline.
func (c *Coordinator) OnlineStatus(ctx context.Context, sessionID uint) OnlineStatus {
	ctx, span := startSpan(ctx, "chat.online_status", sessionID)
	defer span.End()

	ectx, cancel := c.ephemeralContext(ctx)
	defer cancel()
	status, err := c.presence.OnlineStatus(ectx, sessionID)
	if err != nil {
		c.ephemeralFailed(ctx, "online", sessionID, err)
		return OnlineStatus{}
	}
	return status
}

func (c *Coordinator) ephemeralContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.ephemeralTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.ephemeralTimeout)
}

func (c *Coordinator) ephemeralFailed(ctx context.Context, op string, sessionID uint, err error) {
	c.metrics.EphemeralError(ctx, op)
	c.log.WithChatID(sessionID).Warn("Ephemeral store operation failed", "op", op, "error", err.Error())
}
