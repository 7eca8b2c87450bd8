package store

import (
	"errors"
	"time"

	"caretalk/pkg/domain"
)

// ErrAlreadyExists reports that an insert lost a uniqueness race. Callers are
// expected to re-fetch the winning row instead of failing the request.
var ErrAlreadyExists = errors.New("row already exists")

// Store defines persistence operations for the messaging domain. All multi-row
// writes happen inside a single transaction so a failed operation leaves prior
// state unchanged.
type Store interface {
	// users
	UpsertUser(u domain.User) error
	GetUser(id int64) (domain.User, bool, error)
	GetUsers(ids []int64) ([]domain.User, error)
	SearchUsers(query string, limit int) ([]domain.User, error)

	// conversations
	GetConversation(id int64) (domain.Conversation, bool, error)
	FindDirectConversation(userA, userB int64) (domain.Conversation, bool, error)
	CreateDirectConversation(userA, userB int64) (domain.Conversation, error)
	CreateGroup(creatorID int64, name, description string, memberIDs []int64) (domain.Conversation, error)
	ListConversationsForUser(userID int64, typeFilter domain.ConversationType, limit, offset int) ([]domain.Conversation, error)
	ListGroups(limit, offset int) ([]domain.Conversation, int64, error)
	DeleteConversation(id int64) error

	// participants
	GetParticipant(conversationID, userID int64) (domain.Participant, bool, error)
	ListParticipants(conversationID int64) ([]domain.Participant, error)
	CountParticipants(conversationID int64) (int, error)
	AddParticipants(conversationID int64, userIDs []int64) error
	RemoveParticipant(conversationID, userID int64) error
	SetLastRead(conversationID, userID int64, at time.Time) error

	// messages
	AppendMessage(msg domain.Message) (domain.Message, error)
	GetMessage(id int64) (domain.Message, bool, error)
	ListMessages(conversationID int64, limit int, beforeID, afterID int64) ([]domain.Message, error)
	LastMessage(conversationID int64) (domain.Message, bool, error)
	SoftDeleteMessage(id int64, at time.Time) error
	CountMessagesSince(conversationID int64, since time.Time) (int, error)
}
