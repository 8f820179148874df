package service

import (
	"context"
	"errors"
	"strings"

	"support-chat/backend/internal/models"
	"support-chat/backend/internal/repository"
)

// SessionManager owns chat session lifecycle and the message log
type SessionManager struct {
	repo       repository.ChatRepository
	allowEmpty bool
	now        Clock
}

// NewSessionManager creates a manager. allowEmpty accepts messages with neither text nor attachment.
func NewSessionManager(repo repository.ChatRepository, allowEmpty bool, now Clock) *SessionManager {
	if now == nil {
		now = UTCNow
	}
	return &SessionManager{repo: repo, allowEmpty: allowEmpty, now: now}
}

// StartSession creates a visitor identified by visitorToken and a new active session for it
func (m *SessionManager) StartSession(ctx context.Context, visitorToken string) (*models.ChatSession, error) {
	if strings.TrimSpace(visitorToken) == "" {
		return nil, &ValidationError{Field: "visitor_token", Reason: "must not be empty"}
	}
	session, err := m.repo.CreateSession(ctx, visitorToken, m.now())
	if err != nil {
		return nil, &StorageError{Op: "start_session", Err: err}
	}
	return session, nil
}

// AppendMessage stores a message and advances the session's last activity
func (m *SessionManager) AppendMessage(ctx context.Context, sessionID uint, sender models.Sender, payload models.MessagePayload) (*models.Message, error) {
	if !sender.Valid() {
		return nil, &ValidationError{Field: "sender", Reason: "must be visitor or operator"}
	}
	if !m.allowEmpty && payload.IsEmpty() {
		return nil, &ValidationError{Field: "message", Reason: "text or attachment is required"}
	}

	msg := &models.Message{
		ChatSessionID: sessionID,
		Sender:        sender,
		Text:          payload.Text,
		CreatedAt:     m.now(),
	}
	if payload.HasAttachment() {
		msg.FileURL = payload.Attachment
	}

	if err := m.repo.AppendMessage(ctx, msg); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, &StorageError{Op: "append_message", Err: err}
	}
	return msg, nil
}

// GetSession returns the session and its messages in creation order
func (m *SessionManager) GetSession(ctx context.Context, sessionID uint) (*models.ChatSession, []models.Message, error) {
	session, err := m.repo.GetSession(ctx, sessionID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, nil, &StorageError{Op: "get_session", Err: err}
	}

	messages, err := m.repo.ListMessages(ctx, sessionID)
	if err != nil {
		return nil, nil, &StorageError{Op: "list_messages", Err: err}
	}
	if messages == nil {
		messages = []models.Message{}
	}
	return session, messages, nil
}

// CloseSession deactivates a session on request
func (m *SessionManager) CloseSession(ctx context.Context, sessionID uint) error {
	err := m.repo.CloseSession(ctx, sessionID, m.now())
	if errors.Is(err, repository.ErrNotFound) {
		return ErrSessionNotFound
	}
	if err != nil {
		return &StorageError{Op: "close_session", Err: err}
	}
	return nil
}

// ListSessions returns sessions most recently active first
func (m *SessionManager) ListSessions(ctx context.Context, activeOnly bool, limit int) ([]models.ChatSession, error) {
	sessions, err := m.repo.ListSessions(ctx, activeOnly, limit)
	if err != nil {
		return nil, &StorageError{Op: "list_sessions", Err: err}
	}
	if sessions == nil {
		sessions = []models.ChatSession{}
	}
	return sessions, nil
}
