package app

import (
	"fmt"

	"caretalk/internal/store"
	"caretalk/pkg/domain"
)

// GetOrCreateDirect returns the direct conversation between the caller and
// otherID, creating it (with both participant rows) when absent. A concurrent
// duplicate insert loses against the direct-key constraint and falls back to
// the winner's row, so at most one conversation exists per pair.
func (a *App) GetOrCreateDirect(caller domain.User, otherID int64) (domain.DirectConversation, error) {
	if otherID <= 0 || otherID == caller.ID {
		return domain.DirectConversation{}, fmt.Errorf("%w: invalid user ID", ErrInvalidArgument)
	}
	if _, ok, err := a.store.GetUser(otherID); err != nil {
		return domain.DirectConversation{}, err
	} else if !ok {
		return domain.DirectConversation{}, fmt.Errorf("%w: user not found", ErrNotFound)
	}

	conv, ok, err := a.store.FindDirectConversation(caller.ID, otherID)
	if err != nil {
		return domain.DirectConversation{}, err
	}
	if !ok {
		conv, err = a.store.CreateDirectConversation(caller.ID, otherID)
		if err == store.ErrAlreadyExists {
			conv, ok, err = a.store.FindDirectConversation(caller.ID, otherID)
			if err == nil && !ok {
				err = fmt.Errorf("direct conversation vanished after duplicate insert")
			}
		}
		if err != nil {
			return domain.DirectConversation{}, err
		}
	}

	participants, err := a.participantProfiles(conv.ID)
	if err != nil {
		return domain.DirectConversation{}, err
	}
	return domain.DirectConversation{
		ID:           conv.ID,
		Type:         conv.Type,
		Participants: participants,
		CreatedAt:    conv.CreatedAt,
	}, nil
}

// ListConversations returns the caller's inbox ordered by latest activity,
// optionally filtered by conversation type.
func (a *App) ListConversations(caller domain.User, typeFilter string, limit, offset int) ([]domain.ConversationSummary, error) {
	var typ domain.ConversationType
	switch typeFilter {
	case "":
	case string(domain.ConversationDirect):
		typ = domain.ConversationDirect
	case string(domain.ConversationGroup):
		typ = domain.ConversationGroup
	default:
		return nil, fmt.Errorf("%w: unknown conversation type %q", ErrInvalidArgument, typeFilter)
	}
	limit, offset = clampPage(limit, offset)

	convs, err := a.store.ListConversationsForUser(caller.ID, typ, limit, offset)
	if err != nil {
		return nil, err
	}
	summaries := make([]domain.ConversationSummary, 0, len(convs))
	for _, conv := range convs {
		summary, err := a.summarize(conv, caller.ID)
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, summary)
	}
	return summaries, nil
}

func (a *App) summarize(conv domain.Conversation, callerID int64) (domain.ConversationSummary, error) {
	summary := domain.ConversationSummary{
		ID:        conv.ID,
		Type:      conv.Type,
		UpdatedAt: conv.UpdatedAt,
	}

	if last, ok, err := a.store.LastMessage(conv.ID); err != nil {
		return summary, err
	} else if ok {
		summary.LastMessage = &domain.MessagePreview{
			ID:        last.ID,
			Content:   last.Content,
			SenderID:  last.SenderID,
			CreatedAt: last.CreatedAt,
		}
	}

	unread, err := a.unreadCount(conv.ID, callerID)
	if err != nil {
		return summary, err
	}
	summary.UnreadCount = unread

	if conv.Type == domain.ConversationDirect {
		parts, err := a.store.ListParticipants(conv.ID)
		if err != nil {
			return summary, err
		}
		for _, p := range parts {
			if p.UserID == callerID {
				continue
			}
			if other, ok, err := a.store.GetUser(p.UserID); err != nil {
				return summary, err
			} else if ok {
				summary.OtherParticipant = &other
			}
			break
		}
		return summary, nil
	}

	summary.Name = conv.Name
	summary.Description = conv.Description
	count, err := a.store.CountParticipants(conv.ID)
	if err != nil {
		return summary, err
	}
	summary.ParticipantCount = count
	return summary, nil
}

// unreadCount is the number of non-deleted messages created strictly after
// the participant's read marker (joinedAt until the first acknowledgement).
// The caller's own messages count too; acknowledgement is explicit.
func (a *App) unreadCount(conversationID, userID int64) (int, error) {
	participant, ok, err := a.store.GetParticipant(conversationID, userID)
	if err != nil || !ok {
		return 0, err
	}
	since := participant.JoinedAt
	if participant.LastReadAt != nil {
		since = *participant.LastReadAt
	}
	return a.store.CountMessagesSince(conversationID, since)
}
