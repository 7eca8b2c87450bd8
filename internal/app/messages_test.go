package app

import (
	"errors"
	"strings"
	"testing"

	"caretalk/pkg/domain"
)

func seedDirect(t *testing.T, a *App) int64 {
	t.Helper()
	conv, err := a.GetOrCreateDirect(alice, bob.ID)
	if err != nil {
		t.Fatalf("create direct: %v", err)
	}
	return conv.ID
}

func sendN(t *testing.T, a *App, convID int64, sender domain.User, contents ...string) []int64 {
	t.Helper()
	ids := make([]int64, 0, len(contents))
	for _, c := range contents {
		msg, err := a.SendMessage(sender, convID, c, domain.MessageText, nil)
		if err != nil {
			t.Fatalf("send %q: %v", c, err)
		}
		ids = append(ids, msg.ID)
	}
	return ids
}

func TestSendMessageValidation(t *testing.T) {
	a, mem := newTestApp(t)
	seedUsers(t, mem, alice, bob, carol)
	convID := seedDirect(t, a)

	if _, err := a.SendMessage(alice, convID, "   ", domain.MessageText, nil); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("blank content: err = %v, want invalid argument", err)
	}
	if _, err := a.SendMessage(alice, convID, strings.Repeat("x", maxContentLength+1), domain.MessageText, nil); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("oversize content: err = %v, want invalid argument", err)
	}
	if _, err := a.SendMessage(alice, convID, "hi", "video", nil); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("unknown type: err = %v, want invalid argument", err)
	}
	if _, err := a.SendMessage(carol, convID, "hi", domain.MessageText, nil); !errors.Is(err, ErrForbidden) {
		t.Fatalf("outsider send: err = %v, want forbidden", err)
	}

	msg, err := a.SendMessage(alice, convID, "  hello  ", "", nil)
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if msg.Content != "hello" {
		t.Fatalf("content = %q, want trimmed", msg.Content)
	}
	if msg.MessageType != domain.MessageText {
		t.Fatalf("type = %q, want default text", msg.MessageType)
	}
	if msg.Sender.ID != alice.ID {
		t.Fatalf("sender = %d, want %d", msg.Sender.ID, alice.ID)
	}
}

func TestListMessagesPagination(t *testing.T) {
	a, mem := newTestApp(t)
	seedUsers(t, mem, alice, bob)
	convID := seedDirect(t, a)
	ids := sendN(t, a, convID, alice, "m1", "m2", "m3", "m4", "m5")

	// No cursor: newest window, oldest-first within it.
	page, hasMore, err := a.ListMessages(bob, convID, 2, 0, 0)
	if err != nil {
		t.Fatalf("first page: %v", err)
	}
	if !hasMore {
		t.Fatalf("first page should report more")
	}
	if len(page) != 2 || page[0].ID != ids[3] || page[1].ID != ids[4] {
		t.Fatalf("first page = %v, want [%d %d]", messageIDs(page), ids[3], ids[4])
	}

	// Walk backwards with the exclusive before cursor.
	page, hasMore, err = a.ListMessages(bob, convID, 2, ids[3], 0)
	if err != nil {
		t.Fatalf("second page: %v", err)
	}
	if !hasMore {
		t.Fatalf("second page should report more")
	}
	if len(page) != 2 || page[0].ID != ids[1] || page[1].ID != ids[2] {
		t.Fatalf("second page = %v, want [%d %d]", messageIDs(page), ids[1], ids[2])
	}

	page, hasMore, err = a.ListMessages(bob, convID, 2, ids[1], 0)
	if err != nil {
		t.Fatalf("last page: %v", err)
	}
	if hasMore {
		t.Fatalf("last page should not report more")
	}
	if len(page) != 1 || page[0].ID != ids[0] {
		t.Fatalf("last page = %v, want [%d]", messageIDs(page), ids[0])
	}

	// The after cursor is exclusive too: everything newer than m3.
	page, _, err = a.ListMessages(bob, convID, 10, 0, ids[2])
	if err != nil {
		t.Fatalf("after page: %v", err)
	}
	if len(page) != 2 || page[0].ID != ids[3] || page[1].ID != ids[4] {
		t.Fatalf("after page = %v, want [%d %d]", messageIDs(page), ids[3], ids[4])
	}
}

func TestListMessagesRequiresMembership(t *testing.T) {
	a, mem := newTestApp(t)
	seedUsers(t, mem, alice, bob, carol)
	convID := seedDirect(t, a)

	if _, _, err := a.ListMessages(carol, convID, 10, 0, 0); !errors.Is(err, ErrNotFound) {
		t.Fatalf("outsider list: err = %v, want not found", err)
	}
	if _, _, err := a.ListMessages(alice, 404, 10, 0, 0); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing conversation: err = %v, want not found", err)
	}
}

func TestDeleteMessageSoftDeletes(t *testing.T) {
	a, mem := newTestApp(t)
	seedUsers(t, mem, alice, bob, admin)
	convID := seedDirect(t, a)
	ids := sendN(t, a, convID, alice, "keep", "remove")

	if err := a.DeleteMessage(bob, ids[1]); !errors.Is(err, ErrForbidden) {
		t.Fatalf("non-sender delete: err = %v, want forbidden", err)
	}
	if err := a.DeleteMessage(alice, ids[1]); err != nil {
		t.Fatalf("sender delete: %v", err)
	}
	// Repeat deletes are quiet no-ops.
	if err := a.DeleteMessage(alice, ids[1]); err != nil {
		t.Fatalf("repeat delete: %v", err)
	}
	if err := a.DeleteMessage(alice, 404); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing message: err = %v, want not found", err)
	}

	page, _, err := a.ListMessages(bob, convID, 10, 0, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(page) != 1 || page[0].ID != ids[0] {
		t.Fatalf("deleted message still listed: %v", messageIDs(page))
	}

	convs, err := a.ListConversations(bob, "", 0, 0)
	if err != nil {
		t.Fatalf("list conversations: %v", err)
	}
	if convs[0].UnreadCount != 1 {
		t.Fatalf("unread counts deleted message: %d, want 1", convs[0].UnreadCount)
	}
	if convs[0].LastMessage == nil || convs[0].LastMessage.ID != ids[0] {
		t.Fatalf("preview should fall back to the surviving message, got %+v", convs[0].LastMessage)
	}

	// Admins may delete anyone's message.
	if err := a.DeleteMessage(admin, ids[0]); err != nil {
		t.Fatalf("admin delete: %v", err)
	}
}

func TestMarkReadRequiresMembership(t *testing.T) {
	a, mem := newTestApp(t)
	seedUsers(t, mem, alice, bob, carol)
	convID := seedDirect(t, a)

	if _, err := a.MarkRead(carol, convID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("outsider mark read: err = %v, want not found", err)
	}
	readAt, err := a.MarkRead(alice, convID)
	if err != nil {
		t.Fatalf("mark read: %v", err)
	}
	if readAt.IsZero() {
		t.Fatalf("read marker should be set")
	}
}

func messageIDs(msgs []domain.MessageWithSender) []int64 {
	ids := make([]int64, 0, len(msgs))
	for _, m := range msgs {
		ids = append(ids, m.ID)
	}
	return ids
}
