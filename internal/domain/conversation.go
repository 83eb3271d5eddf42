package domain

import (
	"time"
)

// MessageRole identifies the author of a chat message.
type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
	RoleSystem    MessageRole = "system"
)

// Delivery is the client-side confirmation state of a message. Locally
// authored messages start pending and become confirmed or failed; messages
// sourced from the server are always confirmed. A failed message stays in
// the list so the user can retry without retyping.
type Delivery string

const (
	DeliveryPending   Delivery = "pending"
	DeliveryConfirmed Delivery = "confirmed"
	DeliveryFailed    Delivery = "failed"
)

// MessageMeta carries optional metadata attached to a message.
type MessageMeta struct {
	RingPhase RingPhase `json:"ring_phase,omitempty"`
}

// Message is a single chat message within a conversation.
type Message struct {
	ID        string       `json:"id"`
	Role      MessageRole  `json:"role"`
	Content   string       `json:"content"`
	CreatedAt time.Time    `json:"created_at"`
	Metadata  *MessageMeta `json:"metadata,omitempty"`

	// Delivery is client-only state; it never crosses the wire.
	Delivery Delivery `json:"-"`
}

// Confirmed reports whether the server has acknowledged the message.
func (m *Message) Confirmed() bool {
	return m.Delivery == DeliveryConfirmed || m.Delivery == ""
}

// ConversationStatus is the lifecycle state of a conversation.
type ConversationStatus string

const (
	ConversationActive   ConversationStatus = "active"
	ConversationArchived ConversationStatus = "archived"
)

// ConversationSession is a coaching conversation: an ordered message history
// plus the ring phase the conversation has reached. ID is empty until the
// server has created the conversation (lazy creation on first send).
type ConversationSession struct {
	ID        string             `json:"id"`
	Title     string             `json:"title,omitempty"`
	RingPhase RingPhase          `json:"ring_phase"`
	Status    ConversationStatus `json:"status"`
	Messages  []Message          `json:"messages,omitempty"`
	CreatedAt time.Time          `json:"created_at"`
	UpdatedAt time.Time          `json:"updated_at"`
}

// Started reports whether the conversation exists server-side.
func (s *ConversationSession) Started() bool {
	return s.ID != ""
}
