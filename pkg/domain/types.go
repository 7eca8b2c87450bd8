package domain

import (
	"encoding/json"
	"time"
)

type UserRole string

const (
	RoleAdmin  UserRole = "Admin"
	RoleDoctor UserRole = "Doctor"
	RoleNurse  UserRole = "Nurse"
	RoleUser   UserRole = "User"
)

type ConversationType string

const (
	ConversationDirect ConversationType = "direct"
	ConversationGroup  ConversationType = "group"
)

type MessageType string

const (
	MessageText  MessageType = "text"
	MessageFile  MessageType = "file"
	MessageImage MessageType = "image"
)

// User is the public profile resolved from the identity provider and
// mirrored in the shared store for search and membership validation.
type User struct {
	ID    int64    `json:"id"`
	Name  string   `json:"name"`
	Email string   `json:"email"`
	Role  UserRole `json:"role"`
}

// Conversation is either a direct thread between two users or a named group.
// Name, Description and CreatedBy are zero for direct conversations.
type Conversation struct {
	ID          int64            `json:"id"`
	Type        ConversationType `json:"type"`
	Name        string           `json:"name,omitempty"`
	Description string           `json:"description,omitempty"`
	CreatedBy   int64            `json:"createdBy,omitempty"`
	CreatedAt   time.Time        `json:"createdAt"`
	UpdatedAt   time.Time        `json:"updatedAt"`
}

// Participant is one membership row. LastReadAt is nil until the user
// acknowledges the conversation for the first time.
type Participant struct {
	ConversationID int64      `json:"conversationId"`
	UserID         int64      `json:"userId"`
	JoinedAt       time.Time  `json:"joinedAt"`
	LastReadAt     *time.Time `json:"lastReadAt,omitempty"`
}

// Message is immutable after creation except for the soft-delete marker.
// ID is the single source of ordering truth within a conversation.
type Message struct {
	ID             int64           `json:"id"`
	ConversationID int64           `json:"conversationId"`
	SenderID       int64           `json:"senderId"`
	Content        string          `json:"content"`
	MessageType    MessageType     `json:"messageType"`
	Metadata       json.RawMessage `json:"metadata,omitempty"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
	DeletedAt      *time.Time      `json:"-"`
}

// ParticipantProfile joins a membership row with the member's profile.
type ParticipantProfile struct {
	User
	JoinedAt   time.Time  `json:"joinedAt"`
	LastReadAt *time.Time `json:"lastReadAt,omitempty"`
}

// MessagePreview is the last-message excerpt embedded in inbox summaries.
type MessagePreview struct {
	ID        int64     `json:"id"`
	Content   string    `json:"content"`
	SenderID  int64     `json:"senderId"`
	CreatedAt time.Time `json:"createdAt"`
}

// MessageWithSender is a message enriched with the sender's profile.
type MessageWithSender struct {
	ID             int64           `json:"id"`
	ConversationID int64           `json:"conversationId"`
	Sender         User            `json:"sender"`
	Content        string          `json:"content"`
	MessageType    MessageType     `json:"messageType"`
	Metadata       json.RawMessage `json:"metadata,omitempty"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
}

// ConversationSummary is one inbox entry, ordered by UpdatedAt descending.
// OtherParticipant is set for direct conversations, ParticipantCount for groups.
type ConversationSummary struct {
	ID               int64            `json:"id"`
	Type             ConversationType `json:"type"`
	Name             string           `json:"name,omitempty"`
	Description      string           `json:"description,omitempty"`
	OtherParticipant *User            `json:"otherParticipant,omitempty"`
	ParticipantCount int              `json:"participantCount,omitempty"`
	LastMessage      *MessagePreview  `json:"lastMessage,omitempty"`
	UnreadCount      int              `json:"unreadCount"`
	UpdatedAt        time.Time        `json:"updatedAt"`
}

// DirectConversation is the response shape for get-or-create-direct.
type DirectConversation struct {
	ID           int64                `json:"id"`
	Type         ConversationType     `json:"type"`
	Participants []ParticipantProfile `json:"participants"`
	CreatedAt    time.Time            `json:"createdAt"`
}

// GroupDetail is a group with its members and creator summary.
type GroupDetail struct {
	ID           int64                `json:"id"`
	Type         ConversationType     `json:"type"`
	Name         string               `json:"name"`
	Description  string               `json:"description,omitempty"`
	CreatedBy    *User                `json:"createdBy,omitempty"`
	Participants []ParticipantProfile `json:"participants"`
	CreatedAt    time.Time            `json:"createdAt"`
}

// GroupSummary is one entry of the admin group listing.
type GroupSummary struct {
	ID               int64     `json:"id"`
	Name             string    `json:"name"`
	Description      string    `json:"description,omitempty"`
	ParticipantCount int       `json:"participantCount"`
	CreatedBy        *User     `json:"createdBy,omitempty"`
	CreatedAt        time.Time `json:"createdAt"`
}
