package domain

import (
	"strings"
	"time"
)

// Message is a direct message between two users. Messages are deleted as soon
// as they are read.
type Message struct {
	MessageID       string    `json:"id" dynamodbav:"message_id"`
	SenderID        string    `json:"senderId" dynamodbav:"sender_id"`
	ReceiverID      string    `json:"receiverId" dynamodbav:"receiver_id"`
	ConversationKey string    `json:"-" dynamodbav:"conversation_key"`
	Content         string    `json:"content" dynamodbav:"content"`
	Read            bool      `json:"read" dynamodbav:"read"`
	CreatedAt       time.Time `json:"createdAt" dynamodbav:"created_at"`
}

// ConversationKey returns the same key for (a, b) and (b, a).
func ConversationKey(a, b string) string {
	if strings.Compare(a, b) > 0 {
		a, b = b, a
	}
	return a + "#" + b
}
