package utils

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateNickname(t *testing.T) {
	tests := []struct {
		name     string
		nickname string
		field    string
	}{
		{"ok", "Daiji", ""},
		{"unicode ok", "だいじ", ""},
		{"empty", "   ", "nickname"},
		{"too long", strings.Repeat("a", 31), "nickname"},
		{"control", "a\nb", "nickname"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateNickname(tt.nickname)
			if tt.field == "" {
				assert.NoError(t, err)
				return
			}
			var ve *ValidationError
			assert.True(t, errors.As(err, &ve))
			assert.Equal(t, tt.field, ve.Field)
		})
	}
}

func TestValidateNote(t *testing.T) {
	assert.NoError(t, ValidateNote("Alma", "32", ""))
	assert.Error(t, ValidateNote("", "32", "text"))
	assert.Error(t, ValidateNote("Alma", " ", "text"))
	assert.Error(t, ValidateNote("Alma", "32", strings.Repeat("x", MaxNoteLength+1)))
}

func TestValidateMessageText(t *testing.T) {
	assert.NoError(t, ValidateMessageText("hello"))
	assert.Error(t, ValidateMessageText(" \t"))
	assert.Error(t, ValidateMessageText(strings.Repeat("x", MaxMessageLength+1)))
}

func TestInviteCode(t *testing.T) {
	assert.NoError(t, ValidateInviteCode(" abc123 "))
	assert.Equal(t, "ABC123", NormalizeInviteCode(" abc123 "))
	assert.Error(t, ValidateInviteCode("abc"))
	assert.Error(t, ValidateInviteCode("abc-123"))
}
