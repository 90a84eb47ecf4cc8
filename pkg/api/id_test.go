package api

import (
	"strings"
	"testing"
)

func TestNewChatID(t *testing.T) {
	id := NewChatID()
	if !strings.HasPrefix(id, "chat_") {
		t.Errorf("NewChatID() = %q, want chat_ prefix", id)
	}
	if len(id) != len("chat_")+24 {
		t.Errorf("NewChatID() length = %d, want %d", len(id), len("chat_")+24)
	}
	if !ValidateChatID(id) {
		t.Errorf("ValidateChatID(%q) = false, want true", id)
	}
}

func TestNewConversationID(t *testing.T) {
	id := NewConversationID()
	if !ValidateConversationID(id) {
		t.Errorf("ValidateConversationID(%q) = false, want true", id)
	}
}

func TestNewToolCallID(t *testing.T) {
	id := NewToolCallID()
	if !strings.HasPrefix(id, "call_") {
		t.Errorf("NewToolCallID() = %q, want call_ prefix", id)
	}
}

func TestIDUniqueness(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := NewChatID()
		if seen[id] {
			t.Fatalf("duplicate ID generated: %s", id)
		}
		seen[id] = true
	}
}

func TestValidateChatID(t *testing.T) {
	tests := []struct {
		name string
		id   string
		want bool
	}{
		{"valid", "chat_" + strings.Repeat("a", 24), true},
		{"wrong prefix", "conv_" + strings.Repeat("a", 24), false},
		{"too short", "chat_abc", false},
		{"too long", "chat_" + strings.Repeat("a", 25), false},
		{"invalid chars", "chat_" + strings.Repeat("!", 24), false},
		{"empty", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ValidateChatID(tt.id); got != tt.want {
				t.Errorf("ValidateChatID(%q) = %v, want %v", tt.id, got, tt.want)
			}
		})
	}
}
