package app

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"caretalk/pkg/domain"
)

// ListMessages returns up to limit non-deleted messages oldest-first with a
// hasMore flag. The before/after cursors are strictly exclusive message-id
// bounds; with neither set the most recent window is returned. Cursors key a
// point-in-time snapshot, so late appends never shift an already-returned
// page.
func (a *App) ListMessages(caller domain.User, conversationID int64, limit int, beforeID, afterID int64) ([]domain.MessageWithSender, bool, error) {
	if err := a.requireParticipant(conversationID, caller.ID); err != nil {
		return nil, false, err
	}
	limit, _ = clampPage(limit, 0)

	msgs, err := a.store.ListMessages(conversationID, limit, beforeID, afterID)
	if err != nil {
		return nil, false, err
	}
	hasMore := len(msgs) == limit

	senderIDs := make([]int64, 0, len(msgs))
	seen := make(map[int64]struct{}, len(msgs))
	for _, msg := range msgs {
		if _, dup := seen[msg.SenderID]; !dup {
			seen[msg.SenderID] = struct{}{}
			senderIDs = append(senderIDs, msg.SenderID)
		}
	}
	senders, err := a.userSummaries(senderIDs)
	if err != nil {
		return nil, false, err
	}

	res := make([]domain.MessageWithSender, 0, len(msgs))
	for _, msg := range msgs {
		res = append(res, withSender(msg, senders[msg.SenderID]))
	}
	return res, hasMore, nil
}

// SendMessage appends to the conversation's log and bumps its updated_at in
// the same transaction.
func (a *App) SendMessage(caller domain.User, conversationID int64, content string, messageType domain.MessageType, metadata json.RawMessage) (domain.MessageWithSender, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return domain.MessageWithSender{}, fmt.Errorf("%w: message content is required", ErrInvalidArgument)
	}
	if len(content) > maxContentLength {
		return domain.MessageWithSender{}, fmt.Errorf("%w: message content too long", ErrInvalidArgument)
	}
	if messageType == "" {
		messageType = domain.MessageText
	}
	switch messageType {
	case domain.MessageText, domain.MessageFile, domain.MessageImage:
	default:
		return domain.MessageWithSender{}, fmt.Errorf("%w: unknown message type %q", ErrInvalidArgument, messageType)
	}
	if _, ok, err := a.store.GetParticipant(conversationID, caller.ID); err != nil {
		return domain.MessageWithSender{}, err
	} else if !ok {
		return domain.MessageWithSender{}, fmt.Errorf("%w: not a participant of this conversation", ErrForbidden)
	}

	msg, err := a.store.AppendMessage(domain.Message{
		ConversationID: conversationID,
		SenderID:       caller.ID,
		Content:        content,
		MessageType:    messageType,
		Metadata:       metadata,
	})
	if err != nil {
		return domain.MessageWithSender{}, err
	}
	return withSender(msg, caller), nil
}

// DeleteMessage soft-deletes a message. Only the sender (or an admin) may
// delete; deleting an already-deleted message is a successful no-op.
func (a *App) DeleteMessage(caller domain.User, messageID int64) error {
	msg, ok, err := a.store.GetMessage(messageID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: message not found", ErrNotFound)
	}
	if msg.DeletedAt != nil {
		return nil
	}
	if msg.SenderID != caller.ID && !canManageGroups(caller) {
		return fmt.Errorf("%w: only the sender may delete a message", ErrForbidden)
	}
	return a.store.SoftDeleteMessage(messageID, time.Now().UTC())
}

// MarkRead sets the caller's read marker to now. The marker is not forced to
// be monotonic; a stale retry can move it backward.
func (a *App) MarkRead(caller domain.User, conversationID int64) (time.Time, error) {
	if err := a.requireParticipant(conversationID, caller.ID); err != nil {
		return time.Time{}, err
	}
	now := time.Now().UTC()
	if err := a.store.SetLastRead(conversationID, caller.ID, now); err != nil {
		return time.Time{}, err
	}
	return now, nil
}

// EnsureParticipant reports whether the caller belongs to the conversation,
// with the same not-found semantics as every other conversation operation.
func (a *App) EnsureParticipant(caller domain.User, conversationID int64) error {
	return a.requireParticipant(conversationID, caller.ID)
}

// requireParticipant hides non-membership behind not-found so outsiders can't
// probe which conversations exist.
func (a *App) requireParticipant(conversationID, userID int64) error {
	_, ok, err := a.store.GetParticipant(conversationID, userID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: conversation not found or access denied", ErrNotFound)
	}
	return nil
}

func withSender(msg domain.Message, sender domain.User) domain.MessageWithSender {
	return domain.MessageWithSender{
		ID:             msg.ID,
		ConversationID: msg.ConversationID,
		Sender:         sender,
		Content:        msg.Content,
		MessageType:    msg.MessageType,
		Metadata:       msg.Metadata,
		CreatedAt:      msg.CreatedAt,
		UpdatedAt:      msg.UpdatedAt,
	}
}
