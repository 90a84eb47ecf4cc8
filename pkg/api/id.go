package api

import (
	"crypto/rand"
	"math/big"
	"regexp"
)

const (
	idLength = 24
	charset  = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

	chatIDPrefix         = "chat_"
	conversationIDPrefix = "conv_"
	toolCallIDPrefix     = "call_"
)

var (
	chatIDPattern         = regexp.MustCompile(`^chat_[a-zA-Z0-9]{24}$`)
	conversationIDPattern = regexp.MustCompile(`^conv_[a-zA-Z0-9]{24}$`)
)

// NewChatID generates a chat completion ID: "chat_" followed by 24
// cryptographically random alphanumeric characters.
func NewChatID() string {
	return chatIDPrefix + randomAlphanumeric(idLength)
}

// NewConversationID generates a conversation ID with the "conv_" prefix.
func NewConversationID() string {
	return conversationIDPrefix + randomAlphanumeric(idLength)
}

// NewToolCallID generates a tool call ID with the "call_" prefix. Used
// when a backend omits call identifiers.
func NewToolCallID() string {
	return toolCallIDPrefix + randomAlphanumeric(idLength)
}

// ValidateChatID reports whether id is a well-formed chat completion ID.
func ValidateChatID(id string) bool {
	return chatIDPattern.MatchString(id)
}

// ValidateConversationID reports whether id is a well-formed conversation ID.
func ValidateConversationID(id string) bool {
	return conversationIDPattern.MatchString(id)
}

func randomAlphanumeric(n int) string {
	max := big.NewInt(int64(len(charset)))
	b := make([]byte, n)
	for i := range b {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			panic("crypto/rand failed: " + err.Error())
		}
		b[i] = charset[idx.Int64()]
	}
	return string(b)
}
