package pipeline

import (
	"errors"
	"strings"
	"testing"
	"unicode/utf8"
)

func TestUserMessageTruncatesByCharacter(t *testing.T) {
	msg := UserMessage(errors.New(strings.Repeat("é", 600)))
	if !utf8.ValidString(msg) {
		t.Fatalf("message is not valid UTF-8")
	}
	if n := utf8.RuneCountInString(msg); n > maxUserMessage {
		t.Fatalf("message has %d characters, want at most %d", n, maxUserMessage)
	}
	if got := UserMessage(errors.New("model timeout")); got != "model timeout" {
		t.Fatalf("short message changed: %q", got)
	}
}
