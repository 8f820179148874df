package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 3*time.Second, cfg.Chat.TypingTTL)
	assert.Equal(t, 35*time.Second, cfg.Chat.PresenceTTL)
	assert.Equal(t, 30*time.Second, cfg.Chat.PresenceFreshness)
	assert.Equal(t, PresencePerRole, cfg.Chat.PresenceMode)
	assert.Equal(t, TypingScopeSession, cfg.Chat.TypingScope)
	assert.Equal(t, 72*time.Hour, cfg.InactivityWindow())
	assert.Equal(t, time.Hour, cfg.Chat.ReaperInterval)
	assert.False(t, cfg.Chat.AllowEmptyMessages)
	assert.Equal(t, "memory", cfg.Notify.Queue)
	assert.Empty(t, cfg.Notify.OperatorChats)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("OPERATOR_CHAT_IDS", "111,-222")
	t.Setenv("CHAT_INACTIVE_DAYS", "7")
	t.Setenv("PRESENCE_MODE", PresenceSingleSlot)
	t.Setenv("TYPING_SCOPE", TypingScopeRole)
	t.Setenv("WEBHOOK_HOST", "https://support.example.com")
	t.Setenv("OPERATOR_API_KEYS", "k1,k2")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, []int64{111, -222}, cfg.Notify.OperatorChats)
	assert.Equal(t, 7*24*time.Hour, cfg.InactivityWindow())
	assert.Equal(t, PresenceSingleSlot, cfg.Chat.PresenceMode)
	assert.Equal(t, TypingScopeRole, cfg.Chat.TypingScope)
	assert.Equal(t, "https://support.example.com", cfg.Server.BaseURL)
	assert.Equal(t, []string{"k1", "k2"}, cfg.Security.OperatorAPIKeys)
}

func TestLoadRejectsInvalidSettings(t *testing.T) {
	cases := map[string][2]string{
		"presence mode":   {"PRESENCE_MODE", "both"},
		"typing scope":    {"TYPING_SCOPE", "global"},
		"queue":           {"NOTIFY_QUEUE", "kafka"},
		"inactive days":   {"CHAT_INACTIVE_DAYS", "0"},
		"freshness > ttl": {"PRESENCE_FRESHNESS", "40s"},
	}
	for name, kv := range cases {
		t.Run(name, func(t *testing.T) {
			t.Setenv(kv[0], kv[1])
			_, err := Load()
			assert.Error(t, err)
		})
	}
}
