package store

import (
	"sort"
	"strings"
	"sync"
	"time"

	"caretalk/pkg/domain"
)

// MemoryStore is the in-process twin of GormStore used by tests. One mutex
// serializes every operation, which gives the same atomicity the SQL
// transactions provide.
type MemoryStore struct {
	mu         sync.Mutex
	users      map[int64]domain.User
	convs      map[int64]domain.Conversation
	directKeys map[string]int64
	parts      map[int64]map[int64]domain.Participant
	msgs       map[int64]domain.Message
	nextConvID int64
	nextMsgID  int64
}

// NewMemoryStore initializes an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:      make(map[int64]domain.User),
		convs:      make(map[int64]domain.Conversation),
		directKeys: make(map[string]int64),
		parts:      make(map[int64]map[int64]domain.Participant),
		msgs:       make(map[int64]domain.Message),
	}
}

func (m *MemoryStore) UpsertUser(u domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.ID] = u
	return nil
}

func (m *MemoryStore) GetUser(id int64) (domain.User, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	return u, ok, nil
}

func (m *MemoryStore) GetUsers(ids []int64) ([]domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	res := make([]domain.User, 0, len(ids))
	for _, id := range ids {
		if u, ok := m.users[id]; ok {
			res = append(res, u)
		}
	}
	return res, nil
}

func (m *MemoryStore) SearchUsers(query string, limit int) ([]domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	needle := strings.ToLower(query)
	var res []domain.User
	for _, u := range m.users {
		if strings.Contains(strings.ToLower(u.Name), needle) ||
			strings.Contains(strings.ToLower(u.Email), needle) {
			res = append(res, u)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Name < res[j].Name })
	if len(res) > limit {
		res = res[:limit]
	}
	return res, nil
}

func (m *MemoryStore) GetConversation(id int64) (domain.Conversation, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.convs[id]
	return c, ok, nil
}

func (m *MemoryStore) FindDirectConversation(userA, userB int64) (domain.Conversation, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.directKeys[directKey(userA, userB)]
	if !ok {
		return domain.Conversation{}, false, nil
	}
	return m.convs[id], true, nil
}

func (m *MemoryStore) CreateDirectConversation(userA, userB int64) (domain.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := directKey(userA, userB)
	if _, exists := m.directKeys[key]; exists {
		return domain.Conversation{}, ErrAlreadyExists
	}
	now := time.Now().UTC()
	m.nextConvID++
	conv := domain.Conversation{
		ID:        m.nextConvID,
		Type:      domain.ConversationDirect,
		CreatedAt: now,
		UpdatedAt: now,
	}
	m.convs[conv.ID] = conv
	m.directKeys[key] = conv.ID
	m.parts[conv.ID] = map[int64]domain.Participant{
		userA: {ConversationID: conv.ID, UserID: userA, JoinedAt: now},
		userB: {ConversationID: conv.ID, UserID: userB, JoinedAt: now},
	}
	return conv, nil
}

func (m *MemoryStore) CreateGroup(creatorID int64, name, description string, memberIDs []int64) (domain.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	m.nextConvID++
	conv := domain.Conversation{
		ID:          m.nextConvID,
		Type:        domain.ConversationGroup,
		Name:        name,
		Description: description,
		CreatedBy:   creatorID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	m.convs[conv.ID] = conv
	members := make(map[int64]domain.Participant, len(memberIDs))
	for _, id := range memberIDs {
		members[id] = domain.Participant{ConversationID: conv.ID, UserID: id, JoinedAt: now}
	}
	m.parts[conv.ID] = members
	return conv, nil
}

func (m *MemoryStore) ListConversationsForUser(userID int64, typeFilter domain.ConversationType, limit, offset int) ([]domain.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var res []domain.Conversation
	for id, conv := range m.convs {
		if typeFilter != "" && conv.Type != typeFilter {
			continue
		}
		if _, ok := m.parts[id][userID]; ok {
			res = append(res, conv)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].UpdatedAt.After(res[j].UpdatedAt) })
	return pageConversations(res, limit, offset), nil
}

func (m *MemoryStore) ListGroups(limit, offset int) ([]domain.Conversation, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var res []domain.Conversation
	for _, conv := range m.convs {
		if conv.Type == domain.ConversationGroup {
			res = append(res, conv)
		}
	}
	total := int64(len(res))
	sort.Slice(res, func(i, j int) bool { return res[i].CreatedAt.After(res[j].CreatedAt) })
	return pageConversations(res, limit, offset), total, nil
}

func pageConversations(convs []domain.Conversation, limit, offset int) []domain.Conversation {
	if offset >= len(convs) {
		return nil
	}
	convs = convs[offset:]
	if limit > 0 && len(convs) > limit {
		convs = convs[:limit]
	}
	return convs
}

func (m *MemoryStore) DeleteConversation(id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	conv, ok := m.convs[id]
	if !ok {
		return nil
	}
	delete(m.convs, id)
	delete(m.parts, id)
	for msgID, msg := range m.msgs {
		if msg.ConversationID == id {
			delete(m.msgs, msgID)
		}
	}
	for key, convID := range m.directKeys {
		if convID == conv.ID {
			delete(m.directKeys, key)
		}
	}
	return nil
}

func (m *MemoryStore) GetParticipant(conversationID, userID int64) (domain.Participant, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.parts[conversationID][userID]
	return p, ok, nil
}

func (m *MemoryStore) ListParticipants(conversationID int64) ([]domain.Participant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	res := make([]domain.Participant, 0, len(m.parts[conversationID]))
	for _, p := range m.parts[conversationID] {
		res = append(res, p)
	}
	sort.Slice(res, func(i, j int) bool {
		if res[i].JoinedAt.Equal(res[j].JoinedAt) {
			return res[i].UserID < res[j].UserID
		}
		return res[i].JoinedAt.Before(res[j].JoinedAt)
	})
	return res, nil
}

func (m *MemoryStore) CountParticipants(conversationID int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.parts[conversationID]), nil
}

func (m *MemoryStore) AddParticipants(conversationID int64, userIDs []int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	members := m.parts[conversationID]
	if members == nil {
		members = make(map[int64]domain.Participant)
		m.parts[conversationID] = members
	}
	for _, id := range userIDs {
		if _, exists := members[id]; exists {
			continue
		}
		members[id] = domain.Participant{ConversationID: conversationID, UserID: id, JoinedAt: now}
	}
	return nil
}

func (m *MemoryStore) RemoveParticipant(conversationID, userID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.parts[conversationID], userID)
	return nil
}

func (m *MemoryStore) SetLastRead(conversationID, userID int64, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.parts[conversationID][userID]
	if !ok {
		return nil
	}
	p.LastReadAt = &at
	m.parts[conversationID][userID] = p
	return nil
}

func (m *MemoryStore) AppendMessage(msg domain.Message) (domain.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	m.nextMsgID++
	msg.ID = m.nextMsgID
	msg.CreatedAt = now
	msg.UpdatedAt = now
	m.msgs[msg.ID] = msg
	if conv, ok := m.convs[msg.ConversationID]; ok {
		conv.UpdatedAt = now
		m.convs[conv.ID] = conv
	}
	return msg, nil
}

func (m *MemoryStore) GetMessage(id int64) (domain.Message, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg, ok := m.msgs[id]
	return msg, ok, nil
}

func (m *MemoryStore) ListMessages(conversationID int64, limit int, beforeID, afterID int64) ([]domain.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var res []domain.Message
	for _, msg := range m.msgs {
		if msg.ConversationID != conversationID || msg.DeletedAt != nil {
			continue
		}
		if beforeID > 0 && msg.ID >= beforeID {
			continue
		}
		if afterID > 0 && msg.ID <= afterID {
			continue
		}
		res = append(res, msg)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	if limit > 0 && len(res) > limit {
		// keep the newest window, still oldest-first
		res = res[len(res)-limit:]
	}
	return res, nil
}

func (m *MemoryStore) LastMessage(conversationID int64) (domain.Message, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var last domain.Message
	found := false
	for _, msg := range m.msgs {
		if msg.ConversationID != conversationID || msg.DeletedAt != nil {
			continue
		}
		if !found || msg.ID > last.ID {
			last = msg
			found = true
		}
	}
	return last, found, nil
}

func (m *MemoryStore) SoftDeleteMessage(id int64, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	msg, ok := m.msgs[id]
	if !ok || msg.DeletedAt != nil {
		return nil
	}
	msg.DeletedAt = &at
	m.msgs[id] = msg
	return nil
}

func (m *MemoryStore) CountMessagesSince(conversationID int64, since time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, msg := range m.msgs {
		if msg.ConversationID == conversationID && msg.DeletedAt == nil && msg.CreatedAt.After(since) {
			count++
		}
	}
	return count, nil
}
