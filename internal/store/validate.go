package store

import (
	"html"
	"regexp"
	"strings"
)

// MaxContentLength bounds message content, measured after trimming and
// before HTML escaping.
const MaxContentLength = 2000

var (
	handleRe   = regexp.MustCompile(`^[a-zA-Z0-9_]{3,20}$`)
	roomNameRe = regexp.MustCompile(`^[a-zA-Z0-9_-]{3,50}$`)
)

// NormalizeHandle lowercases and trims a handle. All uniqueness checks
// operate on the normalized form.
func NormalizeHandle(handle string) string {
	return strings.ToLower(strings.TrimSpace(handle))
}

// ValidateHandle checks the 3-20 char alphanumeric/underscore rule.
func ValidateHandle(handle string) error {
	if !handleRe.MatchString(handle) {
		return ErrHandleInvalid
	}
	return nil
}

// ValidateRoomName checks the 3-50 char alphanumeric/hyphen/underscore rule.
// Room names are case-sensitive and never normalized.
func ValidateRoomName(name string) error {
	if !roomNameRe.MatchString(name) {
		return ErrNameInvalid
	}
	return nil
}

// SanitizeContent trims and HTML-escapes message content for storage.
// Returns ErrContentInvalid if the trimmed content is empty or too long.
func SanitizeContent(content string) (string, error) {
	trimmed := strings.TrimSpace(content)
	if trimmed == "" || len([]rune(trimmed)) > MaxContentLength {
		return "", ErrContentInvalid
	}
	escaped := html.EscapeString(trimmed)
	if len([]rune(escaped)) > MaxContentLength {
		// Escaping expands entities; the stored form must also satisfy
		// the schema's length check.
		return "", ErrContentInvalid
	}
	return escaped, nil
}
