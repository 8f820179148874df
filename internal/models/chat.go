package models

import (
	"strings"
	"time"
)

// Sender identifies who wrote a message. It doubles as the presence/typing role.
type Sender string

const (
	SenderVisitor  Sender = "visitor"
	SenderOperator Sender = "operator"
)

// Role is the party whose presence or typing state is tracked
type Role = Sender

// Valid reports whether s is one of the two known parties
func (s Sender) Valid() bool {
	return s == SenderVisitor || s == SenderOperator
}

// ParseRole converts user input into a Role
func ParseRole(s string) (Role, bool) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	return r, r.Valid()
}

// Visitor is an anonymous site visitor; a fresh one is created for each started chat
type Visitor struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	Token     string    `json:"session_id" gorm:"uniqueIndex;size:64;not null"`
	CreatedAt time.Time `json:"created_at"`
}

// ChatSession is one visitor-to-operator conversation thread
type ChatSession struct {
	ID        uint       `json:"id" gorm:"primaryKey"`
	VisitorID uint       `json:"visitor_id" gorm:"index;not null"`
	Visitor   *Visitor   `json:"-" gorm:"foreignKey:VisitorID"`
	IsActive  bool       `json:"active" gorm:"default:true;index:idx_chat_sessions_active_updated,priority:1"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at" gorm:"index:idx_chat_sessions_active_updated,priority:2"`
	ClosedAt  *time.Time `json:"closed_at,omitempty"`
	Messages  []Message  `json:"-" gorm:"foreignKey:ChatSessionID"`
}

// Message is a single chat line; at least one of Text or FileURL is set under the strict policy
type Message struct {
	ID            uint      `json:"id" gorm:"primaryKey"`
	ChatSessionID uint      `json:"chat_id" gorm:"index:idx_messages_chat_created,priority:1;not null"`
	Sender        Sender    `json:"sender" gorm:"size:16;not null"`
	Text          *string   `json:"text"`
	FileURL       *string   `json:"file_url,omitempty"`
	CreatedAt     time.Time `json:"created_at" gorm:"index:idx_messages_chat_created,priority:2"`
}

// MessagePayload is the user-supplied content of a message
type MessagePayload struct {
	Text       *string
	Attachment *string
}

// HasText reports whether the payload carries non-blank text
func (p MessagePayload) HasText() bool {
	return p.Text != nil && strings.TrimSpace(*p.Text) != ""
}

// HasAttachment reports whether the payload references an attachment
func (p MessagePayload) HasAttachment() bool {
	return p.Attachment != nil && strings.TrimSpace(*p.Attachment) != ""
}

// IsEmpty reports whether neither text nor attachment is present
func (p MessagePayload) IsEmpty() bool {
	return !p.HasText() && !p.HasAttachment()
}

// AllModels lists the models to migrate
func AllModels() []any {
	return []any{&Visitor{}, &ChatSession{}, &Message{}}
}
