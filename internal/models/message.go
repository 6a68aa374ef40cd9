package models

import "time"

// Message is an append-only entry in a conversation.
type Message struct {
	ID             int64     `db:"id" json:"id"`
	ConversationID int64     `db:"conversation_id" json:"conversation_id"`
	AuthorID       int64     `db:"author_id" json:"author_id"`
	Body           string    `db:"body" json:"body"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}

// MessageView is a message with its author and rendered body.
type MessageView struct {
	Message
	Author   User   `json:"author"`
	BodyHTML string `json:"body_html"`
}

// MessagePage is the windowed read of a conversation history.
type MessagePage struct {
	Messages  []MessageView `json:"messages"`
	Truncated bool          `json:"truncated"`
}

// ConversationEvent is broadcast through websockets.
type ConversationEvent struct {
	Type    string       `json:"type"`
	Message *MessageView `json:"message,omitempty"`
}
