package store

import (
	"testing"
	"time"

	"caretalk/pkg/domain"
)

func TestDirectKeyIsOrderIndependent(t *testing.T) {
	if directKey(7, 3) != directKey(3, 7) {
		t.Fatalf("direct key should not depend on argument order")
	}
	if directKey(3, 7) != "3:7" {
		t.Fatalf("direct key = %q, want 3:7", directKey(3, 7))
	}
}

func TestCreateDirectConversationRejectsDuplicatePair(t *testing.T) {
	m := NewMemoryStore()
	if _, err := m.CreateDirectConversation(1, 2); err != nil {
		t.Fatalf("first create: %v", err)
	}
	if _, err := m.CreateDirectConversation(2, 1); err != ErrAlreadyExists {
		t.Fatalf("duplicate create: err = %v, want ErrAlreadyExists", err)
	}
}

func TestListMessagesKeepsNewestWindow(t *testing.T) {
	m := NewMemoryStore()
	conv, err := m.CreateDirectConversation(1, 2)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	var ids []int64
	for i := 0; i < 5; i++ {
		msg, err := m.AppendMessage(domain.Message{ConversationID: conv.ID, SenderID: 1, Content: "m", MessageType: domain.MessageText})
		if err != nil {
			t.Fatalf("append: %v", err)
		}
		ids = append(ids, msg.ID)
	}

	window, err := m.ListMessages(conv.ID, 2, 0, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(window) != 2 || window[0].ID != ids[3] || window[1].ID != ids[4] {
		t.Fatalf("window should hold the two newest messages oldest-first, got %+v", window)
	}

	// before and after are both exclusive and partition the log.
	older, err := m.ListMessages(conv.ID, 10, ids[2], 0)
	if err != nil {
		t.Fatalf("list before: %v", err)
	}
	newer, err := m.ListMessages(conv.ID, 10, 0, ids[2])
	if err != nil {
		t.Fatalf("list after: %v", err)
	}
	if len(older)+len(newer) != len(ids)-1 {
		t.Fatalf("cursors should exclude the pivot exactly once: %d + %d", len(older), len(newer))
	}
}

func TestSoftDeleteHidesMessageEverywhere(t *testing.T) {
	m := NewMemoryStore()
	conv, err := m.CreateDirectConversation(1, 2)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	msg, err := m.AppendMessage(domain.Message{ConversationID: conv.ID, SenderID: 1, Content: "m", MessageType: domain.MessageText})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := m.SoftDeleteMessage(msg.ID, time.Now().UTC()); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := m.SoftDeleteMessage(msg.ID, time.Now().UTC()); err != nil {
		t.Fatalf("repeat delete: %v", err)
	}

	if msgs, err := m.ListMessages(conv.ID, 10, 0, 0); err != nil || len(msgs) != 0 {
		t.Fatalf("deleted message listed: %v err=%v", msgs, err)
	}
	if _, found, err := m.LastMessage(conv.ID); err != nil || found {
		t.Fatalf("deleted message is still the preview: found=%v err=%v", found, err)
	}
	if n, err := m.CountMessagesSince(conv.ID, time.Time{}); err != nil || n != 0 {
		t.Fatalf("deleted message counted: n=%d err=%v", n, err)
	}
	// The row itself survives for the audit trail.
	if _, ok, err := m.GetMessage(msg.ID); err != nil || !ok {
		t.Fatalf("soft-deleted row should remain fetchable: ok=%v err=%v", ok, err)
	}
}

func TestCountMessagesSinceIsStrictlyGreater(t *testing.T) {
	m := NewMemoryStore()
	conv, err := m.CreateDirectConversation(1, 2)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	msg, err := m.AppendMessage(domain.Message{ConversationID: conv.ID, SenderID: 1, Content: "m", MessageType: domain.MessageText})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if n, _ := m.CountMessagesSince(conv.ID, msg.CreatedAt); n != 0 {
		t.Fatalf("message at the boundary counted: %d", n)
	}
	if n, _ := m.CountMessagesSince(conv.ID, msg.CreatedAt.Add(-time.Nanosecond)); n != 1 {
		t.Fatalf("message after the marker not counted: %d", n)
	}
}
