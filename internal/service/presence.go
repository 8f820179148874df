package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"support-chat/backend/internal/models"
	"support-chat/backend/pkg/config"
)

// PresenceConfig controls heartbeat retention and the online window
type PresenceConfig struct {
	TTL       time.Duration
	Freshness time.Duration
	Mode      string
}

// OnlineStatus is the derived online state of both parties of a chat
type OnlineStatus struct {
	VisitorOnline  bool `json:"visitor_online"`
	OperatorOnline bool `json:"operator_online"`
}

type presenceRecord struct {
	Role     models.Role `json:"role"`
	LastSeen time.Time   `json:"last_seen"`
}

// PresenceTracker records heartbeats and derives whether each party is online
type PresenceTracker struct {
	store EphemeralStore
	cfg   PresenceConfig
	now   Clock
}

// NewPresenceTracker creates a tracker. A nil clock means UTCNow.
func NewPresenceTracker(store EphemeralStore, cfg PresenceConfig, now Clock) *PresenceTracker {
	if cfg.Mode == "" {
		cfg.Mode = config.PresencePerRole
	}
	if now == nil {
		now = UTCNow
	}
	return &PresenceTracker{store: store, cfg: cfg, now: now}
}

func (p *PresenceTracker) key(sessionID uint, role models.Role) string {
	if p.cfg.Mode == config.PresenceSingleSlot {
		return fmt.Sprintf("online:%d", sessionID)
	}
	return fmt.Sprintf("online:%d:%s", sessionID, role)
}

// Heartbeat records that role was seen now
func (p *PresenceTracker) Heartbeat(ctx context.Context, sessionID uint, role models.Role) error {
	key := p.key(sessionID, role)
	raw, err := json.Marshal(presenceRecord{Role: role, LastSeen: p.now()})
	if err != nil {
		return &EphemeralStoreError{Op: "heartbeat", Key: key, Err: err}
	}
	if err := p.store.Set(ctx, key, string(raw), p.cfg.TTL); err != nil {
		return &EphemeralStoreError{Op: "heartbeat", Key: key, Err: err}
	}
	return nil
}

// OnlineStatus reports each role online iff its last heartbeat is younger than the freshness window
func (p *PresenceTracker) OnlineStatus(ctx context.Context, sessionID uint) (OnlineStatus, error) {
	var status OnlineStatus

	if p.cfg.Mode == config.PresenceSingleSlot {
		// One slot per chat: only the role that wrote last can be online
		rec, err := p.read(ctx, p.key(sessionID, ""))
		if err != nil || rec == nil {
			return status, err
		}
		p.apply(&status, rec)
		return status, nil
	}

	for _, role := range []models.Role{models.SenderVisitor, models.SenderOperator} {
		rec, err := p.read(ctx, p.key(sessionID, role))
		if err != nil {
			return status, err
		}
		if rec != nil {
			p.apply(&status, rec)
		}
	}
	return status, nil
}

func (p *PresenceTracker) apply(status *OnlineStatus, rec *presenceRecord) {
	if p.now().Sub(rec.LastSeen) >= p.cfg.Freshness {
		return
	}
	switch rec.Role {
	case models.SenderVisitor:
		status.VisitorOnline = true
	case models.SenderOperator:
		status.OperatorOnline = true
	}
}

func (p *PresenceTracker) read(ctx context.Context, key string) (*presenceRecord, error) {
	raw, found, err := p.store.Get(ctx, key)
	if err != nil {
		return nil, &EphemeralStoreError{Op: "online", Key: key, Err: err}
	}
	if !found {
		return nil, nil
	}
	var rec presenceRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return nil, &EphemeralStoreError{Op: "online", Key: key, Err: fmt.Errorf("decode presence record: %w", err)}
	}
	return &rec, nil
}
