package store

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"caretalk/pkg/domain"
)

// GormStore implements Store using GORM + Postgres.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens the DB and runs auto-migrations. TranslateError is
// enabled so uniqueness races surface as gorm.ErrDuplicatedKey regardless of
// driver.
func NewGormStore(dsn string) (*GormStore, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.AutoMigrate(&UserModel{}, &ConversationModel{}, &ParticipantModel{}, &MessageModel{}); err != nil {
		return nil, fmt.Errorf("auto migrate: %w", err)
	}
	return &GormStore{db: db}, nil
}

// UpsertUser mirrors an identity-provider profile into the directory.
func (s *GormStore) UpsertUser(u domain.User) error {
	now := time.Now().UTC()
	model := UserModel{
		ID:        u.ID,
		Name:      u.Name,
		Email:     u.Email,
		Role:      string(u.Role),
		CreatedAt: now,
		UpdatedAt: now,
	}
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "email", "role", "updated_at"}),
	}).Create(&model).Error
}

// GetUser returns a user profile by ID.
func (s *GormStore) GetUser(id int64) (domain.User, bool, error) {
	var model UserModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, err
	}
	return userFromModel(model), true, nil
}

// GetUsers returns the profiles for the given IDs; missing IDs are simply
// absent from the result.
func (s *GormStore) GetUsers(ids []int64) ([]domain.User, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var models []UserModel
	if err := apply(s.db, InSet("id", ids)).Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.User, 0, len(models))
	for _, m := range models {
		res = append(res, userFromModel(m))
	}
	return res, nil
}

// SearchUsers matches name or email case-insensitively.
func (s *GormStore) SearchUsers(query string, limit int) ([]domain.User, error) {
	var models []UserModel
	tx := apply(s.db, Or(Contains("name", query), Contains("email", query)))
	if err := tx.Order("name ASC").Limit(limit).Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.User, 0, len(models))
	for _, m := range models {
		res = append(res, userFromModel(m))
	}
	return res, nil
}

// GetConversation retrieves a conversation by ID.
func (s *GormStore) GetConversation(id int64) (domain.Conversation, bool, error) {
	var model ConversationModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Conversation{}, false, nil
		}
		return domain.Conversation{}, false, err
	}
	return conversationFromModel(model), true, nil
}

// FindDirectConversation looks up the direct conversation shared by the pair.
func (s *GormStore) FindDirectConversation(userA, userB int64) (domain.Conversation, bool, error) {
	key := directKey(userA, userB)
	var model ConversationModel
	if err := s.db.First(&model, "direct_key = ?", key).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Conversation{}, false, nil
		}
		return domain.Conversation{}, false, err
	}
	return conversationFromModel(model), true, nil
}

// CreateDirectConversation inserts the conversation and both participant rows
// in one transaction. A duplicate-key failure on the direct key means a
// concurrent caller won the race; ErrAlreadyExists tells the caller to
// re-fetch the winning row.
func (s *GormStore) CreateDirectConversation(userA, userB int64) (domain.Conversation, error) {
	now := time.Now().UTC()
	key := directKey(userA, userB)
	model := ConversationModel{
		Type:      string(domain.ConversationDirect),
		DirectKey: &key,
		CreatedAt: now,
		UpdatedAt: now,
	}
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&model).Error; err != nil {
			return err
		}
		rows := []ParticipantModel{
			{ConversationID: model.ID, UserID: userA, JoinedAt: now},
			{ConversationID: model.ID, UserID: userB, JoinedAt: now},
		}
		return tx.Create(&rows).Error
	})
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return domain.Conversation{}, ErrAlreadyExists
		}
		return domain.Conversation{}, err
	}
	return conversationFromModel(model), nil
}

// CreateGroup inserts the group and one participant row per member in one
// transaction.
func (s *GormStore) CreateGroup(creatorID int64, name, description string, memberIDs []int64) (domain.Conversation, error) {
	now := time.Now().UTC()
	model := ConversationModel{
		Type:      string(domain.ConversationGroup),
		Name:      &name,
		CreatedBy: &creatorID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if description != "" {
		model.Description = &description
	}
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&model).Error; err != nil {
			return err
		}
		rows := make([]ParticipantModel, 0, len(memberIDs))
		for _, id := range memberIDs {
			rows = append(rows, ParticipantModel{ConversationID: model.ID, UserID: id, JoinedAt: now})
		}
		return tx.Create(&rows).Error
	})
	if err != nil {
		return domain.Conversation{}, err
	}
	return conversationFromModel(model), nil
}

// ListConversationsForUser pages the user's inbox by updated_at descending.
func (s *GormStore) ListConversationsForUser(userID int64, typeFilter domain.ConversationType, limit, offset int) ([]domain.Conversation, error) {
	conds := []Cond{Equals("p.user_id", userID)}
	if typeFilter != "" {
		conds = append(conds, Equals("conversations.type", string(typeFilter)))
	}
	tx := s.db.Model(&ConversationModel{}).
		Joins("JOIN conversation_participants p ON p.conversation_id = conversations.id")
	tx = apply(tx, conds...)
	var models []ConversationModel
	if err := tx.Order("conversations.updated_at DESC").Limit(limit).Offset(offset).Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.Conversation, 0, len(models))
	for _, m := range models {
		res = append(res, conversationFromModel(m))
	}
	return res, nil
}

// ListGroups pages all groups newest-first and returns the total count.
func (s *GormStore) ListGroups(limit, offset int) ([]domain.Conversation, int64, error) {
	var total int64
	if err := s.db.Model(&ConversationModel{}).
		Where("type = ?", string(domain.ConversationGroup)).
		Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var models []ConversationModel
	if err := s.db.Where("type = ?", string(domain.ConversationGroup)).
		Order("created_at DESC").Limit(limit).Offset(offset).
		Find(&models).Error; err != nil {
		return nil, 0, err
	}
	res := make([]domain.Conversation, 0, len(models))
	for _, m := range models {
		res = append(res, conversationFromModel(m))
	}
	return res, total, nil
}

// DeleteConversation removes the conversation with its messages and
// participants in one transaction.
func (s *GormStore) DeleteConversation(id int64) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&MessageModel{}, "conversation_id = ?", id).Error; err != nil {
			return err
		}
		if err := tx.Delete(&ParticipantModel{}, "conversation_id = ?", id).Error; err != nil {
			return err
		}
		return tx.Delete(&ConversationModel{}, "id = ?", id).Error
	})
}

// GetParticipant fetches one membership row.
func (s *GormStore) GetParticipant(conversationID, userID int64) (domain.Participant, bool, error) {
	var model ParticipantModel
	err := s.db.First(&model, "conversation_id = ? AND user_id = ?", conversationID, userID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Participant{}, false, nil
		}
		return domain.Participant{}, false, err
	}
	return participantFromModel(model), true, nil
}

// ListParticipants returns the membership rows of a conversation.
func (s *GormStore) ListParticipants(conversationID int64) ([]domain.Participant, error) {
	var models []ParticipantModel
	if err := s.db.Where("conversation_id = ?", conversationID).
		Order("joined_at ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.Participant, 0, len(models))
	for _, m := range models {
		res = append(res, participantFromModel(m))
	}
	return res, nil
}

// CountParticipants returns the member count of a conversation.
func (s *GormStore) CountParticipants(conversationID int64) (int, error) {
	var count int64
	err := s.db.Model(&ParticipantModel{}).
		Where("conversation_id = ?", conversationID).Count(&count).Error
	if err != nil {
		return 0, err
	}
	return int(count), nil
}

// AddParticipants inserts membership rows, skipping IDs that are already
// members so concurrent adds stay idempotent instead of racing on the
// composite key.
func (s *GormStore) AddParticipants(conversationID int64, userIDs []int64) error {
	if len(userIDs) == 0 {
		return nil
	}
	now := time.Now().UTC()
	rows := make([]ParticipantModel, 0, len(userIDs))
	for _, id := range userIDs {
		rows = append(rows, ParticipantModel{ConversationID: conversationID, UserID: id, JoinedAt: now})
	}
	return s.db.Clauses(clause.OnConflict{DoNothing: true}).Create(&rows).Error
}

// RemoveParticipant deletes one membership row.
func (s *GormStore) RemoveParticipant(conversationID, userID int64) error {
	return s.db.Delete(&ParticipantModel{}, "conversation_id = ? AND user_id = ?", conversationID, userID).Error
}

// SetLastRead overwrites the participant's read marker.
func (s *GormStore) SetLastRead(conversationID, userID int64, at time.Time) error {
	return s.db.Model(&ParticipantModel{}).
		Where("conversation_id = ? AND user_id = ?", conversationID, userID).
		Update("last_read_at", at).Error
}

// AppendMessage inserts the message and bumps the owning conversation's
// updated_at in the same transaction.
func (s *GormStore) AppendMessage(msg domain.Message) (domain.Message, error) {
	now := time.Now().UTC()
	msg.CreatedAt = now
	msg.UpdatedAt = now
	model := messageToModel(msg)
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&model).Error; err != nil {
			return err
		}
		return tx.Model(&ConversationModel{}).
			Where("id = ?", msg.ConversationID).
			Update("updated_at", now).Error
	})
	if err != nil {
		return domain.Message{}, err
	}
	return messageFromModel(model), nil
}

// GetMessage retrieves a message by ID, including soft-deleted rows.
func (s *GormStore) GetMessage(id int64) (domain.Message, bool, error) {
	var model MessageModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Message{}, false, nil
		}
		return domain.Message{}, false, err
	}
	return messageFromModel(model), true, nil
}

// ListMessages returns up to limit non-deleted messages oldest-first. The
// cursor bounds are strictly exclusive; with no cursor the newest window is
// returned.
func (s *GormStore) ListMessages(conversationID int64, limit int, beforeID, afterID int64) ([]domain.Message, error) {
	conds := []Cond{
		Equals("conversation_id", conversationID),
		IsNull("deleted_at"),
	}
	if beforeID > 0 {
		conds = append(conds, Before("id", beforeID))
	}
	if afterID > 0 {
		conds = append(conds, After("id", afterID))
	}
	var models []MessageModel
	if err := apply(s.db, conds...).Order("id DESC").Limit(limit).Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.Message, 0, len(models))
	for _, m := range models {
		res = append(res, messageFromModel(m))
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res, nil
}

// LastMessage returns the newest non-deleted message of a conversation.
func (s *GormStore) LastMessage(conversationID int64) (domain.Message, bool, error) {
	var model MessageModel
	err := s.db.Where("conversation_id = ? AND deleted_at IS NULL", conversationID).
		Order("id DESC").First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Message{}, false, nil
		}
		return domain.Message{}, false, err
	}
	return messageFromModel(model), true, nil
}

// SoftDeleteMessage stamps deleted_at. Re-deleting is a no-op.
func (s *GormStore) SoftDeleteMessage(id int64, at time.Time) error {
	return s.db.Model(&MessageModel{}).
		Where("id = ? AND deleted_at IS NULL", id).
		Update("deleted_at", at).Error
}

// CountMessagesSince counts non-deleted messages created strictly after since.
func (s *GormStore) CountMessagesSince(conversationID int64, since time.Time) (int, error) {
	var count int64
	tx := apply(s.db.Model(&MessageModel{}),
		Equals("conversation_id", conversationID),
		IsNull("deleted_at"),
		After("created_at", since),
	)
	if err := tx.Count(&count).Error; err != nil {
		return 0, err
	}
	return int(count), nil
}
