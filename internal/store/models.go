package store

import (
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/datatypes"

	"caretalk/pkg/domain"
)

// GORM models used for persistence.
type UserModel struct {
	ID        int64     `gorm:"primaryKey"`
	Name      string    `gorm:"size:255;not null"`
	Email     string    `gorm:"size:255;uniqueIndex;not null"`
	Role      string    `gorm:"size:20;not null"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

func (UserModel) TableName() string { return "users" }

// ConversationModel carries both direct and group rows. DirectKey is the
// sorted "<min>:<max>" user-id pair for direct conversations and NULL for
// groups; its unique index is what makes the create race safe.
type ConversationModel struct {
	ID          int64   `gorm:"primaryKey"`
	Type        string  `gorm:"size:10;not null;index"`
	Name        *string `gorm:"size:255"`
	Description *string `gorm:"type:text"`
	CreatedBy   *int64
	DirectKey   *string   `gorm:"size:64;uniqueIndex"`
	CreatedAt   time.Time `gorm:"not null"`
	UpdatedAt   time.Time `gorm:"not null;index"`
}

func (ConversationModel) TableName() string { return "conversations" }

type ParticipantModel struct {
	ConversationID int64     `gorm:"primaryKey;autoIncrement:false"`
	UserID         int64     `gorm:"primaryKey;autoIncrement:false;index"`
	JoinedAt       time.Time `gorm:"not null"`
	LastReadAt     *time.Time
}

func (ParticipantModel) TableName() string { return "conversation_participants" }

// MessageModel uses a plain *time.Time for DeletedAt on purpose: soft-delete
// visibility is an explicit query condition, not GORM's implicit scoping.
type MessageModel struct {
	ID             int64          `gorm:"primaryKey"`
	ConversationID int64          `gorm:"not null;index"`
	SenderID       int64          `gorm:"not null"`
	Content        string         `gorm:"type:text;not null"`
	MessageType    string         `gorm:"size:10;not null"`
	Metadata       datatypes.JSON `gorm:"type:jsonb"`
	CreatedAt      time.Time      `gorm:"not null;index"`
	UpdatedAt      time.Time      `gorm:"not null"`
	DeletedAt      *time.Time     `gorm:"index"`
}

func (MessageModel) TableName() string { return "messages" }

// directKey returns the canonical unique key for a direct-conversation pair.
func directKey(userA, userB int64) string {
	if userA > userB {
		userA, userB = userB, userA
	}
	return fmt.Sprintf("%d:%d", userA, userB)
}

func userFromModel(m UserModel) domain.User {
	return domain.User{
		ID:    m.ID,
		Name:  m.Name,
		Email: m.Email,
		Role:  domain.UserRole(m.Role),
	}
}

func conversationFromModel(m ConversationModel) domain.Conversation {
	c := domain.Conversation{
		ID:        m.ID,
		Type:      domain.ConversationType(m.Type),
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
	if m.Name != nil {
		c.Name = *m.Name
	}
	if m.Description != nil {
		c.Description = *m.Description
	}
	if m.CreatedBy != nil {
		c.CreatedBy = *m.CreatedBy
	}
	return c
}

func participantFromModel(m ParticipantModel) domain.Participant {
	return domain.Participant{
		ConversationID: m.ConversationID,
		UserID:         m.UserID,
		JoinedAt:       m.JoinedAt,
		LastReadAt:     m.LastReadAt,
	}
}

func messageFromModel(m MessageModel) domain.Message {
	return domain.Message{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		SenderID:       m.SenderID,
		Content:        m.Content,
		MessageType:    domain.MessageType(m.MessageType),
		Metadata:       json.RawMessage(m.Metadata),
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
		DeletedAt:      m.DeletedAt,
	}
}

func messageToModel(msg domain.Message) MessageModel {
	return MessageModel{
		ID:             msg.ID,
		ConversationID: msg.ConversationID,
		SenderID:       msg.SenderID,
		Content:        msg.Content,
		MessageType:    string(msg.MessageType),
		Metadata:       datatypes.JSON(msg.Metadata),
		CreatedAt:      msg.CreatedAt,
		UpdatedAt:      msg.UpdatedAt,
		DeletedAt:      msg.DeletedAt,
	}
}
