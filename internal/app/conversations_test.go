package app

import (
	"errors"
	"sync"
	"testing"

	"caretalk/internal/store"
	"caretalk/pkg/domain"
)

func newTestApp(t *testing.T) (*App, *store.MemoryStore) {
	t.Helper()
	mem := store.NewMemoryStore()
	a, err := New(Config{Store: mem})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	return a, mem
}

func seedUsers(t *testing.T, mem *store.MemoryStore, users ...domain.User) {
	t.Helper()
	for _, u := range users {
		if err := mem.UpsertUser(u); err != nil {
			t.Fatalf("seed user %d: %v", u.ID, err)
		}
	}
}

var (
	alice = domain.User{ID: 1, Name: "Alice", Email: "alice@example.com", Role: domain.RoleDoctor}
	bob   = domain.User{ID: 2, Name: "Bob", Email: "bob@example.com", Role: domain.RoleNurse}
	carol = domain.User{ID: 3, Name: "Carol", Email: "carol@example.com", Role: domain.RoleUser}
	admin = domain.User{ID: 9, Name: "Root", Email: "root@example.com", Role: domain.RoleAdmin}
)

func TestGetOrCreateDirectReturnsSameConversation(t *testing.T) {
	a, mem := newTestApp(t)
	seedUsers(t, mem, alice, bob)

	first, err := a.GetOrCreateDirect(alice, bob.ID)
	if err != nil {
		t.Fatalf("first call: %v", err)
	}
	if first.Type != domain.ConversationDirect {
		t.Fatalf("type = %q, want direct", first.Type)
	}
	if len(first.Participants) != 2 {
		t.Fatalf("participants = %d, want 2", len(first.Participants))
	}

	// Same pair from the other side resolves to the same conversation.
	second, err := a.GetOrCreateDirect(bob, alice.ID)
	if err != nil {
		t.Fatalf("second call: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("conversation IDs differ: %d vs %d", first.ID, second.ID)
	}
}

func TestGetOrCreateDirectConcurrentPairYieldsOneConversation(t *testing.T) {
	a, mem := newTestApp(t)
	seedUsers(t, mem, alice, bob)

	const callers = 10
	ids := make([]int64, 2*callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(2)
		go func(slot int) {
			defer wg.Done()
			conv, err := a.GetOrCreateDirect(alice, bob.ID)
			if err != nil {
				t.Errorf("alice call: %v", err)
				return
			}
			ids[slot] = conv.ID
		}(2 * i)
		go func(slot int) {
			defer wg.Done()
			conv, err := a.GetOrCreateDirect(bob, alice.ID)
			if err != nil {
				t.Errorf("bob call: %v", err)
				return
			}
			ids[slot] = conv.ID
		}(2*i + 1)
	}
	wg.Wait()

	for _, id := range ids {
		if id != ids[0] {
			t.Fatalf("expected one conversation, got IDs %v", ids)
		}
	}
	parts, err := mem.ListParticipants(ids[0])
	if err != nil {
		t.Fatalf("list participants: %v", err)
	}
	if len(parts) != 2 {
		t.Fatalf("participant rows = %d, want 2", len(parts))
	}
}

func TestGetOrCreateDirectRejectsSelfAndUnknown(t *testing.T) {
	a, mem := newTestApp(t)
	seedUsers(t, mem, alice)

	if _, err := a.GetOrCreateDirect(alice, alice.ID); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("self conversation: err = %v, want invalid argument", err)
	}
	if _, err := a.GetOrCreateDirect(alice, 0); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("zero user ID: err = %v, want invalid argument", err)
	}
	if _, err := a.GetOrCreateDirect(alice, 404); !errors.Is(err, ErrNotFound) {
		t.Fatalf("unknown user: err = %v, want not found", err)
	}
}

func TestListConversationsFiltersAndSummarizes(t *testing.T) {
	a, mem := newTestApp(t)
	seedUsers(t, mem, alice, bob, carol, admin)

	direct, err := a.GetOrCreateDirect(alice, bob.ID)
	if err != nil {
		t.Fatalf("create direct: %v", err)
	}
	group, err := a.CreateGroup(admin, "Ward A", "day shift", []int64{alice.ID, bob.ID, carol.ID})
	if err != nil {
		t.Fatalf("create group: %v", err)
	}
	if _, err := a.SendMessage(bob, direct.ID, "hello", domain.MessageText, nil); err != nil {
		t.Fatalf("send message: %v", err)
	}

	all, err := a.ListConversations(alice, "", 0, 0)
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("conversations = %d, want 2", len(all))
	}
	// Latest activity first: the direct conversation just received a message.
	if all[0].ID != direct.ID {
		t.Fatalf("first conversation = %d, want %d", all[0].ID, direct.ID)
	}
	if all[0].OtherParticipant == nil || all[0].OtherParticipant.ID != bob.ID {
		t.Fatalf("direct summary should name the other participant, got %+v", all[0].OtherParticipant)
	}
	if all[0].LastMessage == nil || all[0].LastMessage.Content != "hello" {
		t.Fatalf("direct summary last message = %+v", all[0].LastMessage)
	}
	if all[0].UnreadCount != 1 {
		t.Fatalf("unread = %d, want 1", all[0].UnreadCount)
	}

	groups, err := a.ListConversations(alice, "group", 0, 0)
	if err != nil {
		t.Fatalf("list groups: %v", err)
	}
	if len(groups) != 1 || groups[0].ID != group.ID {
		t.Fatalf("group filter returned %+v", groups)
	}
	if groups[0].Name != "Ward A" || groups[0].ParticipantCount != 3 {
		t.Fatalf("group summary = %+v", groups[0])
	}

	if _, err := a.ListConversations(alice, "broadcast", 0, 0); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("bad type filter: err = %v, want invalid argument", err)
	}
}

func TestListConversationsExcludesNonMember(t *testing.T) {
	a, mem := newTestApp(t)
	seedUsers(t, mem, alice, bob, carol)

	if _, err := a.GetOrCreateDirect(alice, bob.ID); err != nil {
		t.Fatalf("create direct: %v", err)
	}
	convs, err := a.ListConversations(carol, "", 0, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(convs) != 0 {
		t.Fatalf("outsider sees %d conversations, want 0", len(convs))
	}
}

func TestUnreadCountFollowsReadMarker(t *testing.T) {
	a, mem := newTestApp(t)
	seedUsers(t, mem, alice, bob)

	direct, err := a.GetOrCreateDirect(alice, bob.ID)
	if err != nil {
		t.Fatalf("create direct: %v", err)
	}
	for i := 0; i < 3; i++ {
		if _, err := a.SendMessage(bob, direct.ID, "msg", domain.MessageText, nil); err != nil {
			t.Fatalf("send: %v", err)
		}
	}

	convs, err := a.ListConversations(alice, "", 0, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if convs[0].UnreadCount != 3 {
		t.Fatalf("unread before read = %d, want 3", convs[0].UnreadCount)
	}

	if _, err := a.MarkRead(alice, direct.ID); err != nil {
		t.Fatalf("mark read: %v", err)
	}
	convs, err = a.ListConversations(alice, "", 0, 0)
	if err != nil {
		t.Fatalf("list after read: %v", err)
	}
	if convs[0].UnreadCount != 0 {
		t.Fatalf("unread after read = %d, want 0", convs[0].UnreadCount)
	}

	// The caller's own message counts until they acknowledge again.
	if _, err := a.SendMessage(alice, direct.ID, "mine", domain.MessageText, nil); err != nil {
		t.Fatalf("send own: %v", err)
	}
	convs, err = a.ListConversations(alice, "", 0, 0)
	if err != nil {
		t.Fatalf("list after own send: %v", err)
	}
	if convs[0].UnreadCount != 1 {
		t.Fatalf("unread after own send = %d, want 1", convs[0].UnreadCount)
	}
}
