package store

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"strings"
)

var (
	uuidPattern   = regexp.MustCompile(`[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}`)
	numberPattern = regexp.MustCompile(`\d+`)
	spacePattern  = regexp.MustCompile(`\s+`)
)

// NormalizeMessage strips the volatile parts of an error message (ids,
// numbers, whitespace runs) so equivalent failures hash identically.
func NormalizeMessage(message string) string {
	msg := strings.ToLower(strings.TrimSpace(message))
	msg = uuidPattern.ReplaceAllString(msg, "<id>")
	msg = numberPattern.ReplaceAllString(msg, "#")
	msg = spacePattern.ReplaceAllString(msg, " ")
	return msg
}

// Signature returns the stable hash identifying a failure shape: tool
// name, error kind, and the normalised message.
func Signature(tool, kind, message string) string {
	sum := sha256.Sum256([]byte(tool + "|" + kind + "|" + NormalizeMessage(message)))
	return hex.EncodeToString(sum[:])
}
