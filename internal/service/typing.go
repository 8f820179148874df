package service

import (
	"context"
	"fmt"
	"time"

	"support-chat/backend/internal/models"
	"support-chat/backend/pkg/config"
)

const typingValue = "1"

// TypingTracker keeps short-lived "is typing" flags
type TypingTracker struct {
	store EphemeralStore
	ttl   time.Duration
	scope string
}

// NewTypingTracker creates a tracker with the given flag lifetime and key scope
func NewTypingTracker(store EphemeralStore, ttl time.Duration, scope string) *TypingTracker {
	if scope == "" {
		scope = config.TypingScopeSession
	}
	return &TypingTracker{store: store, ttl: ttl, scope: scope}
}

func (t *TypingTracker) key(sessionID uint, role models.Role) string {
	if t.scope == config.TypingScopeRole && role != "" {
		return fmt.Sprintf("typing:%d:%s", sessionID, role)
	}
	return fmt.Sprintf("typing:%d", sessionID)
}

// SetTyping raises the flag for ttl, or removes it
func (t *TypingTracker) SetTyping(ctx context.Context, sessionID uint, role models.Role, isTyping bool) error {
	key := t.key(sessionID, role)
	if isTyping {
		if err := t.store.Set(ctx, key, typingValue, t.ttl); err != nil {
			return &EphemeralStoreError{Op: "set_typing", Key: key, Err: err}
		}
		return nil
	}
	return t.Clear(ctx, sessionID, role)
}

// IsTyping reports whether a flag exists. An empty role in role scope means either party.
func (t *TypingTracker) IsTyping(ctx context.Context, sessionID uint, role models.Role) (bool, error) {
	if t.scope == config.TypingScopeRole && role == "" {
		for _, r := range []models.Role{models.SenderVisitor, models.SenderOperator} {
			typing, err := t.exists(ctx, t.key(sessionID, r))
			if err != nil || typing {
				return typing, err
			}
		}
		return false, nil
	}
	return t.exists(ctx, t.key(sessionID, role))
}

// Clear removes the flag. Clearing an absent flag succeeds.
func (t *TypingTracker) Clear(ctx context.Context, sessionID uint, role models.Role) error {
	key := t.key(sessionID, role)
	if err := t.store.Delete(ctx, key); err != nil {
		return &EphemeralStoreError{Op: "clear_typing", Key: key, Err: err}
	}
	return nil
}

func (t *TypingTracker) exists(ctx context.Context, key string) (bool, error) {
	ok, err := t.store.Exists(ctx, key)
	if err != nil {
		return false, &EphemeralStoreError{Op: "get_typing", Key: key, Err: err}
	}
	return ok, nil
}
