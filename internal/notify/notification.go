// Package notify delivers new-message alerts to operators outside the request path.
package notify

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

const maxPreviewRunes = 3500

// Notification is one new visitor message to announce
type Notification struct {
	ChatID     uint      `json:"chat_id"`
	Preview    string    `json:"preview,omitempty"`
	Attachment string    `json:"attachment,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Text renders the operator-facing message body
func (n Notification) Text() string {
	preview := strings.TrimSpace(n.Preview)
	switch {
	case preview != "":
		preview = truncate(preview, maxPreviewRunes)
	case n.Attachment != "":
		preview = "📎 Attachment: " + n.Attachment
	default:
		preview = "Empty message"
	}
	return fmt.Sprintf("📩 New message:\n\n%s\n\nChat ID: %d", preview, n.ChatID)
}

// ChatLink returns the operator page deep link for a chat
func ChatLink(baseURL string, chatID uint) string {
	return strings.TrimRight(baseURL, "/") + "/operator?chat_id=" + strconv.FormatUint(uint64(chatID), 10)
}

func truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max]) + "…"
}

// ErrRejected marks a send the channel refused for this recipient; retrying will not help
var ErrRejected = errors.New("rejected by notification channel")

// NotificationError reports a failed delivery to one recipient
type NotificationError struct {
	ChatID    uint
	Recipient int64
	Attempts  int
	Err       error
}

func (e *NotificationError) Error() string {
	return fmt.Sprintf("notify chat %d to %d after %d attempt(s): %v", e.ChatID, e.Recipient, e.Attempts, e.Err)
}

func (e *NotificationError) Unwrap() error { return e.Err }
