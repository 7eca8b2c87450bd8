package app

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"caretalk/pkg/domain"
)

// CreateGroup creates a group conversation with one participant row per
// member, in a single transaction. The creator joins only when listed in
// memberIDs.
func (a *App) CreateGroup(caller domain.User, name, description string, memberIDs []int64) (domain.GroupDetail, error) {
	if !canManageGroups(caller) {
		return domain.GroupDetail{}, fmt.Errorf("%w: admin access required", ErrForbidden)
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.GroupDetail{}, fmt.Errorf("%w: group name is required", ErrInvalidArgument)
	}
	if utf8.RuneCountInString(name) > maxGroupNameRunes {
		return domain.GroupDetail{}, fmt.Errorf("%w: group name too long", ErrInvalidArgument)
	}
	memberIDs = dedupe(memberIDs)
	if len(memberIDs) == 0 {
		return domain.GroupDetail{}, fmt.Errorf("%w: at least one user ID is required", ErrInvalidArgument)
	}
	if err := a.requireUsersExist(memberIDs, ErrNotFound); err != nil {
		return domain.GroupDetail{}, err
	}

	conv, err := a.store.CreateGroup(caller.ID, name, strings.TrimSpace(description), memberIDs)
	if err != nil {
		return domain.GroupDetail{}, err
	}
	return a.groupDetail(conv)
}

// GetGroup returns a group with its members and creator summary.
func (a *App) GetGroup(caller domain.User, groupID int64) (domain.GroupDetail, error) {
	conv, err := a.requireGroup(groupID)
	if err != nil {
		return domain.GroupDetail{}, err
	}
	return a.groupDetail(conv)
}

// AddParticipants adds the given users to a group, silently skipping IDs that
// are already members. It conflicts only when the entire batch is already
// present.
func (a *App) AddParticipants(caller domain.User, groupID int64, userIDs []int64) ([]domain.User, error) {
	if !canManageGroups(caller) {
		return nil, fmt.Errorf("%w: admin access required", ErrForbidden)
	}
	if _, err := a.requireGroup(groupID); err != nil {
		return nil, err
	}
	userIDs = dedupe(userIDs)
	if len(userIDs) == 0 {
		return nil, fmt.Errorf("%w: at least one user ID is required", ErrInvalidArgument)
	}
	if err := a.requireUsersExist(userIDs, ErrInvalidArgument); err != nil {
		return nil, err
	}

	existing, err := a.store.ListParticipants(groupID)
	if err != nil {
		return nil, err
	}
	present := make(map[int64]struct{}, len(existing))
	for _, p := range existing {
		present[p.UserID] = struct{}{}
	}
	newIDs := make([]int64, 0, len(userIDs))
	for _, id := range userIDs {
		if _, ok := present[id]; !ok {
			newIDs = append(newIDs, id)
		}
	}
	if len(newIDs) == 0 {
		return nil, fmt.Errorf("%w: all users are already in the group", ErrConflict)
	}
	if err := a.store.AddParticipants(groupID, newIDs); err != nil {
		return nil, err
	}
	return a.store.GetUsers(newIDs)
}

// RemoveParticipant removes one member from a group.
func (a *App) RemoveParticipant(caller domain.User, groupID, userID int64) error {
	if !canManageGroups(caller) {
		return fmt.Errorf("%w: admin access required", ErrForbidden)
	}
	if _, err := a.requireGroup(groupID); err != nil {
		return err
	}
	if _, ok, err := a.store.GetParticipant(groupID, userID); err != nil {
		return err
	} else if !ok {
		return fmt.Errorf("%w: user is not a participant in this group", ErrNotFound)
	}
	return a.store.RemoveParticipant(groupID, userID)
}

// ListGroups pages all groups with member counts and creator summaries.
func (a *App) ListGroups(caller domain.User, limit, offset int) ([]domain.GroupSummary, int64, error) {
	if !canManageGroups(caller) {
		return nil, 0, fmt.Errorf("%w: admin access required", ErrForbidden)
	}
	limit, offset = clampPage(limit, offset)
	convs, total, err := a.store.ListGroups(limit, offset)
	if err != nil {
		return nil, 0, err
	}
	res := make([]domain.GroupSummary, 0, len(convs))
	for _, conv := range convs {
		count, err := a.store.CountParticipants(conv.ID)
		if err != nil {
			return nil, 0, err
		}
		summary := domain.GroupSummary{
			ID:               conv.ID,
			Name:             conv.Name,
			Description:      conv.Description,
			ParticipantCount: count,
			CreatedAt:        conv.CreatedAt,
		}
		if conv.CreatedBy != 0 {
			if creator, ok, err := a.store.GetUser(conv.CreatedBy); err != nil {
				return nil, 0, err
			} else if ok {
				summary.CreatedBy = &creator
			}
		}
		res = append(res, summary)
	}
	return res, total, nil
}

// DeleteGroup deletes a group with its participants and messages.
func (a *App) DeleteGroup(caller domain.User, groupID int64) error {
	if !canManageGroups(caller) {
		return fmt.Errorf("%w: admin access required", ErrForbidden)
	}
	if _, err := a.requireGroup(groupID); err != nil {
		return err
	}
	return a.store.DeleteConversation(groupID)
}

func (a *App) requireGroup(groupID int64) (domain.Conversation, error) {
	conv, ok, err := a.store.GetConversation(groupID)
	if err != nil {
		return domain.Conversation{}, err
	}
	if !ok || conv.Type != domain.ConversationGroup {
		return domain.Conversation{}, fmt.Errorf("%w: group not found", ErrNotFound)
	}
	return conv, nil
}

func (a *App) requireUsersExist(ids []int64, kind error) error {
	users, err := a.store.GetUsers(ids)
	if err != nil {
		return err
	}
	if len(users) != len(ids) {
		return fmt.Errorf("%w: one or more user IDs are invalid", kind)
	}
	return nil
}

func (a *App) groupDetail(conv domain.Conversation) (domain.GroupDetail, error) {
	participants, err := a.participantProfiles(conv.ID)
	if err != nil {
		return domain.GroupDetail{}, err
	}
	detail := domain.GroupDetail{
		ID:           conv.ID,
		Type:         conv.Type,
		Name:         conv.Name,
		Description:  conv.Description,
		Participants: participants,
		CreatedAt:    conv.CreatedAt,
	}
	if conv.CreatedBy != 0 {
		if creator, ok, err := a.store.GetUser(conv.CreatedBy); err != nil {
			return domain.GroupDetail{}, err
		} else if ok {
			detail.CreatedBy = &creator
		}
	}
	return detail, nil
}

func dedupe(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	res := make([]int64, 0, len(ids))
	for _, id := range ids {
		if id <= 0 {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		res = append(res, id)
	}
	return res
}
