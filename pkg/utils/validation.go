package utils

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	MaxNicknameLength  = 30
	MaxMessageLength   = 4000
	MaxNoteLength      = 20000
	MaxGroupNameLength = 50
	MaxReferenceLength = 100
)

var (
	inviteCodeRegex = regexp.MustCompile(`^[A-Z0-9]{6,12}$`)
)

// ValidateNickname validates a display name
// Rules: 1-30 characters after trimming, no control characters
func ValidateNickname(nickname string) error {
	nickname = strings.TrimSpace(nickname)

	if nickname == "" {
		return &ValidationError{Field: "nickname", Message: "Nickname is required"}
	}

	if utf8.RuneCountInString(nickname) > MaxNicknameLength {
		return &ValidationError{Field: "nickname", Message: "Nickname must be at most 30 characters"}
	}

	if strings.ContainsFunc(nickname, isControl) {
		return &ValidationError{Field: "nickname", Message: "Nickname cannot contain control characters"}
	}

	return nil
}

// ValidateMessageText validates chat message text
func ValidateMessageText(text string) error {
	if strings.TrimSpace(text) == "" {
		return &ValidationError{Field: "text", Message: "Message cannot be empty"}
	}
	if utf8.RuneCountInString(text) > MaxMessageLength {
		return &ValidationError{Field: "text", Message: "Message must be at most 4000 characters"}
	}
	return nil
}

// ValidateNote validates a study note. A note needs a scripture and chapter;
// the reflection text may be empty.
func ValidateNote(scripture, chapter, text string) error {
	if strings.TrimSpace(scripture) == "" {
		return &ValidationError{Field: "scripture", Message: "Scripture is required"}
	}
	if strings.TrimSpace(chapter) == "" {
		return &ValidationError{Field: "chapter", Message: "Chapter is required"}
	}
	if utf8.RuneCountInString(scripture) > MaxReferenceLength || utf8.RuneCountInString(chapter) > MaxReferenceLength {
		return &ValidationError{Field: "scripture", Message: "Scripture reference is too long"}
	}
	if utf8.RuneCountInString(text) > MaxNoteLength {
		return &ValidationError{Field: "text", Message: "Note must be at most 20000 characters"}
	}
	return nil
}

// ValidateGroupName validates a group name
func ValidateGroupName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return &ValidationError{Field: "name", Message: "Group name is required"}
	}
	if utf8.RuneCountInString(name) > MaxGroupNameLength {
		return &ValidationError{Field: "name", Message: "Group name must be at most 50 characters"}
	}
	return nil
}

// ValidateInviteCode validates an invite code after normalization
func ValidateInviteCode(code string) error {
	if !inviteCodeRegex.MatchString(NormalizeInviteCode(code)) {
		return &ValidationError{Field: "inviteCode", Message: "Invite code must be 6-12 letters or digits"}
	}
	return nil
}

// NormalizeInviteCode converts an invite code to its stored form
func NormalizeInviteCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func isControl(r rune) bool {
	return r < 0x20 || r == 0x7f
}

// ValidationError represents a validation error
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}
