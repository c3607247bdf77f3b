package chat

import (
	"strings"
	"testing"
)

func TestValidateMessage_Empty(t *testing.T) {
	if err := ValidateMessage(""); err == nil {
		t.Error("expected error for empty message")
	}
}

func TestValidateMessage_Valid(t *testing.T) {
	if err := ValidateMessage("hey, loved that playlist"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestValidateMessage_TooManyBytes(t *testing.T) {
	msg := strings.Repeat("a", MaxMessageBytes+1)
	if err := ValidateMessage(msg); err == nil {
		t.Error("expected error for oversized message")
	}
}

func TestValidateMessage_TooManyChars(t *testing.T) {
	// Multi-byte runes: under the byte cap but over the rune cap.
	msg := strings.Repeat("é", MaxTextChars+1)
	if len(msg) > MaxMessageBytes {
		t.Fatal("test setup: message should stay under the byte limit")
	}
	if err := ValidateMessage(msg); err == nil {
		t.Error("expected error for message over the character limit")
	}
}

func TestValidateMessage_InvalidUTF8(t *testing.T) {
	if err := ValidateMessage(string([]byte{0xff, 0xfe})); err == nil {
		t.Error("expected error for invalid UTF-8")
	}
}
