package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func strPtr(s string) *string { return &s }

func TestMessagePayloadIsEmpty(t *testing.T) {
	tests := []struct {
		name    string
		payload MessagePayload
		empty   bool
	}{
		{"nothing", MessagePayload{}, true},
		{"blank text", MessagePayload{Text: strPtr("   ")}, true},
		{"blank attachment", MessagePayload{Attachment: strPtr("")}, true},
		{"text", MessagePayload{Text: strPtr("Hello")}, false},
		{"attachment", MessagePayload{Attachment: strPtr("/uploads/a.png")}, false},
		{"both", MessagePayload{Text: strPtr("see file"), Attachment: strPtr("/uploads/a.png")}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.empty, tt.payload.IsEmpty())
		})
	}
}

func TestParseRole(t *testing.T) {
	r, ok := ParseRole(" Operator ")
	assert.True(t, ok)
	assert.Equal(t, SenderOperator, r)

	_, ok = ParseRole("admin")
	assert.False(t, ok)
}
