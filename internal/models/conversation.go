package models

import "time"

// Conversation is the single private thread between an unordered pair of users.
type Conversation struct {
	ID          int64     `db:"id" json:"id"`
	SenderID    int64     `db:"sender_id" json:"sender_id"`
	RecipientID int64     `db:"recipient_id" json:"recipient_id"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// HasParticipant reports whether the user is one side of the conversation.
func (c Conversation) HasParticipant(userID int64) bool {
	return c.SenderID == userID || c.RecipientID == userID
}

// CanonicalPair orders two user ids so that (a, b) and (b, a) share one key.
func CanonicalPair(a, b int64) (int64, int64) {
	if a > b {
		return b, a
	}
	return a, b
}

// ConversationView is a conversation with both participants loaded.
type ConversationView struct {
	Conversation
	Sender    User `json:"sender"`
	Recipient User `json:"recipient"`
}
