package logger

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"strings"
	"unicode/utf8"
)

const (
	// minHashSaltLength is the shortest salt accepted from the environment.
	minHashSaltLength = 32
	hashLength        = 8
	// textPreviewRunes is how much of a comment or reason SanitizeText keeps.
	textPreviewRunes = 3
)

var hashSalt string

// InitHashSalt loads the salt used by the hashing helpers from LOG_HASH_SALT.
// It panics when the salt is missing or shorter than minHashSaltLength.
func InitHashSalt() {
	salt := os.Getenv("LOG_HASH_SALT")
	if len(salt) < minHashSaltLength {
		panic(fmt.Sprintf("LOG_HASH_SALT must be set to at least %d characters", minHashSaltLength))
	}
	hashSalt = salt
}

// InitHashSaltForTesting sets a fixed salt without consulting the environment.
func InitHashSaltForTesting(salt string) {
	hashSalt = salt
}

// HashUserID returns a stable pseudonym for an application user id, so log
// lines about one approver can be correlated without naming them.
func HashUserID(userID string) string {
	return shortHash("user:" + userID)
}

// HashChatID returns a stable pseudonym for a Telegram chat or account id.
func HashChatID(chatID int64) string {
	return shortHash("chat:" + strconv.FormatInt(chatID, 10))
}

func shortHash(value string) string {
	sum := sha256.Sum256([]byte(value + ":" + hashSalt))
	return hex.EncodeToString(sum[:])[:hashLength]
}

// SanitizeDescription reduces a claim description to its shape.
func SanitizeDescription(desc string) string {
	if strings.TrimSpace(desc) == "" {
		return "<empty>"
	}
	return fmt.Sprintf("<redacted: %d words, %d chars>", len(strings.Fields(desc)), utf8.RuneCountInString(desc))
}

// SanitizeText keeps a short prefix of a vote comment or override reason.
func SanitizeText(text string) string {
	n := utf8.RuneCountInString(text)
	switch {
	case n == 0:
		return "<empty>"
	case n <= 10:
		return fmt.Sprintf("<%d chars>", n)
	default:
		return fmt.Sprintf("%s...<%d chars>", string([]rune(text)[:textPreviewRunes]), n)
	}
}
