package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"support-chat/backend/internal/models"

	"gorm.io/gorm"
)

// ErrNotFound is returned when the requested chat session does not exist
var ErrNotFound = errors.New("record not found")

// ChatRepository is the durable store for visitors, sessions and messages
type ChatRepository interface {
	// CreateSession inserts a visitor with the given token and an active session linked to it.
	CreateSession(ctx context.Context, visitorToken string, at time.Time) (*models.ChatSession, error)

	// AppendMessage inserts msg and moves the session's updated_at forward to msg.CreatedAt.
	AppendMessage(ctx context.Context, msg *models.Message) error

	GetSession(ctx context.Context, id uint) (*models.ChatSession, error)

	// ListMessages returns the session's messages oldest first.
	ListMessages(ctx context.Context, sessionID uint) ([]models.Message, error)

	// CloseSession marks a session inactive.
	CloseSession(ctx context.Context, id uint, at time.Time) error

	// ListSessions returns sessions most recently updated first.
	ListSessions(ctx context.Context, activeOnly bool, limit int) ([]models.ChatSession, error)

	// DeactivateStale flips every active session last updated before cutoff to inactive.
	DeactivateStale(ctx context.Context, cutoff time.Time) (int64, error)

	Ping(ctx context.Context) error
}

// GormChatRepository implements ChatRepository on gorm
type GormChatRepository struct {
	db *gorm.DB
}

// NewGormChatRepository creates a repository on top of db
func NewGormChatRepository(db *gorm.DB) *GormChatRepository {
	return &GormChatRepository{db: db}
}

// Migrate creates or updates the chat tables
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(models.AllModels()...); err != nil {
		return fmt.Errorf("failed to migrate chat schema: %w", err)
	}
	return nil
}

func (r *GormChatRepository) CreateSession(ctx context.Context, visitorToken string, at time.Time) (*models.ChatSession, error) {
	session := &models.ChatSession{IsActive: true, CreatedAt: at, UpdatedAt: at}

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		visitor := &models.Visitor{Token: visitorToken, CreatedAt: at}
		if err := tx.Create(visitor).Error; err != nil {
			return fmt.Errorf("create visitor: %w", err)
		}
		session.VisitorID = visitor.ID
		if err := tx.Create(session).Error; err != nil {
			return fmt.Errorf("create chat session: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return session, nil
}

func (r *GormChatRepository) AppendMessage(ctx context.Context, msg *models.Message) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.ChatSession{}).Where("id = ?", msg.ChatSessionID).Count(&count).Error; err != nil {
			return fmt.Errorf("lookup chat session: %w", err)
		}
		if count == 0 {
			return ErrNotFound
		}

		if err := tx.Create(msg).Error; err != nil {
			return fmt.Errorf("create message: %w", err)
		}

		// Conditional so updated_at never moves backwards under concurrent appends
		err := tx.Model(&models.ChatSession{}).
			Where("id = ? AND updated_at < ?", msg.ChatSessionID, msg.CreatedAt).
			UpdateColumn("updated_at", msg.CreatedAt).Error
		if err != nil {
			return fmt.Errorf("touch chat session: %w", err)
		}
		return nil
	})
}

func (r *GormChatRepository) GetSession(ctx context.Context, id uint) (*models.ChatSession, error) {
	var session models.ChatSession
	err := r.db.WithContext(ctx).First(&session, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (r *GormChatRepository) ListMessages(ctx context.Context, sessionID uint) ([]models.Message, error) {
	var messages []models.Message
	err := r.db.WithContext(ctx).
		Where("chat_session_id = ?", sessionID).
		Order("created_at ASC").
		Order("id ASC").
		Find(&messages).Error
	return messages, err
}

func (r *GormChatRepository) CloseSession(ctx context.Context, id uint, at time.Time) error {
	res := r.db.WithContext(ctx).Model(&models.ChatSession{}).
		Where("id = ?", id).
		UpdateColumns(map[string]any{"is_active": false, "closed_at": at})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *GormChatRepository) ListSessions(ctx context.Context, activeOnly bool, limit int) ([]models.ChatSession, error) {
	q := r.db.WithContext(ctx).Order("updated_at DESC").Order("id DESC")
	if activeOnly {
		q = q.Where("is_active = ?", true)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}

	var sessions []models.ChatSession
	err := q.Find(&sessions).Error
	return sessions, err
}

func (r *GormChatRepository) DeactivateStale(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Model(&models.ChatSession{}).
		Where("is_active = ? AND updated_at < ?", true, cutoff).
		UpdateColumn("is_active", false)
	return res.RowsAffected, res.Error
}

func (r *GormChatRepository) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
