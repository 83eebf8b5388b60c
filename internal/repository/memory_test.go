package repository_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"tradechat-backend/internal/models"
	"tradechat-backend/internal/repository"
)

func newTestStore(t *testing.T) repository.MessageStore {
	t.Helper()
	return repository.NewMemoryStore().Messages()
}

func mustCreate(t *testing.T, store repository.MessageStore, msg *models.Message) *models.Message {
	t.Helper()
	if err := store.Create(context.Background(), msg); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	return msg
}

func TestListByConversation_AscendingOrder(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	// Insert out of order to make sure the store sorts.
	offsets := []int{3, 0, 2, 1, 4}
	for _, off := range offsets {
		mustCreate(t, store, &models.Message{
			ConversationID: "c1",
			Sender:         models.SenderUser,
			Text:           fmt.Sprintf("msg-%d", off),
			Timestamp:      base.Add(time.Duration(off) * time.Minute),
		})
	}

	msgs, err := store.ListByConversation(ctx, "c1", "")
	if err != nil {
		t.Fatalf("ListByConversation failed: %v", err)
	}
	if len(msgs) != len(offsets) {
		t.Fatalf("expected %d messages, got %d", len(offsets), len(msgs))
	}
	for i, m := range msgs {
		if want := fmt.Sprintf("msg-%d", i); m.Text != want {
			t.Fatalf("position %d: expected %q, got %q", i, want, m.Text)
		}
	}
}

func TestCreate_AssignsIDAndTimestamp(t *testing.T) {
	store := newTestStore(t)
	msg := mustCreate(t, store, &models.Message{ConversationID: "c1", Sender: models.SenderUser, Text: "hi"})

	if msg.ID == "" {
		t.Fatal("expected id to be assigned")
	}
	if msg.Timestamp.IsZero() {
		t.Fatal("expected timestamp to be assigned")
	}
}

func TestCreate_NoDeduplication(t *testing.T) {
	store := newTestStore(t)
	for i := 0; i < 3; i++ {
		mustCreate(t, store, &models.Message{ConversationID: "c1", Sender: models.SenderUser, Text: "same"})
	}

	msgs, _ := store.ListByConversation(context.Background(), "c1", "")
	if len(msgs) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(msgs))
	}
}

func TestListConversations_GroupsAndOrders(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	mustCreate(t, store, &models.Message{ConversationID: "old", Sender: models.SenderUser, Text: "first", Timestamp: base})
	mustCreate(t, store, &models.Message{ConversationID: "new", Sender: models.SenderUser, Text: "q", Timestamp: base.Add(time.Minute)})
	mustCreate(t, store, &models.Message{ConversationID: "old", Sender: models.SenderAI, Text: "old reply", Timestamp: base.Add(2 * time.Minute)})
	mustCreate(t, store, &models.Message{ConversationID: "new", Sender: models.SenderAI, Text: "latest", Timestamp: base.Add(3 * time.Minute)})

	convs, err := store.ListConversations(ctx, "")
	if err != nil {
		t.Fatalf("ListConversations failed: %v", err)
	}
	if len(convs) != 2 {
		t.Fatalf("expected 2 conversations, got %d", len(convs))
	}
	if convs[0].ConversationID != "new" || convs[0].LastMessage != "latest" {
		t.Fatalf("unexpected first conversation: %+v", convs[0])
	}
	if convs[1].ConversationID != "old" || convs[1].LastMessage != "old reply" {
		t.Fatalf("unexpected second conversation: %+v", convs[1])
	}
	if !convs[0].UpdatedAt.Equal(base.Add(3 * time.Minute)) {
		t.Fatalf("unexpected updatedAt: %s", convs[0].UpdatedAt)
	}
}

func TestDeleteConversation_RemovesAllAndIsIdempotent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	mustCreate(t, store, &models.Message{ConversationID: "c1", Sender: models.SenderUser, Text: "a"})
	mustCreate(t, store, &models.Message{ConversationID: "c1", Sender: models.SenderAI, Text: "b"})
	mustCreate(t, store, &models.Message{ConversationID: "c2", Sender: models.SenderUser, Text: "keep"})

	n, err := store.DeleteConversation(ctx, "c1", "")
	if err != nil {
		t.Fatalf("DeleteConversation failed: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 deleted, got %d", n)
	}

	msgs, _ := store.ListByConversation(ctx, "c1", "")
	if len(msgs) != 0 {
		t.Fatalf("expected no messages left, got %d", len(msgs))
	}

	n, err = store.DeleteConversation(ctx, "c1", "")
	if err != nil || n != 0 {
		t.Fatalf("expected idempotent delete, got n=%d err=%v", n, err)
	}

	other, _ := store.ListByConversation(ctx, "c2", "")
	if len(other) != 1 {
		t.Fatalf("expected other conversation untouched, got %d", len(other))
	}
}

func TestOwnerScope_IsolatesUsers(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	mustCreate(t, store, &models.Message{ConversationID: "alice-1", UserID: "alice", Sender: models.SenderUser, Text: "a"})
	mustCreate(t, store, &models.Message{ConversationID: "bob-1", UserID: "bob", Sender: models.SenderUser, Text: "b"})
	mustCreate(t, store, &models.Message{ConversationID: "anon-1", Sender: models.SenderUser, Text: "c"})

	convs, _ := store.ListConversations(ctx, "alice")
	if len(convs) != 1 || convs[0].ConversationID != "alice-1" {
		t.Fatalf("alice should only see her conversation, got %+v", convs)
	}

	msgs, _ := store.ListByConversation(ctx, "bob-1", "alice")
	if len(msgs) != 0 {
		t.Fatalf("alice must not read bob's messages")
	}

	anon, _ := store.ListConversations(ctx, "")
	if len(anon) != 1 || anon[0].ConversationID != "anon-1" {
		t.Fatalf("anonymous scope should only see ownerless conversations, got %+v", anon)
	}

	if n, _ := store.DeleteConversation(ctx, "bob-1", "alice"); n != 0 {
		t.Fatalf("alice must not delete bob's conversation")
	}
}

func TestUpdateText_MarksEdited(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	msg := mustCreate(t, store, &models.Message{ConversationID: "c1", Sender: models.SenderUser, Text: "old"})

	updated, err := store.UpdateText(ctx, "c1", msg.ID, "", "new")
	if err != nil {
		t.Fatalf("UpdateText failed: %v", err)
	}
	if updated.Text != "new" || !updated.Edited {
		t.Fatalf("unexpected updated message: %+v", updated)
	}

	if _, err := store.UpdateText(ctx, "other", msg.ID, "", "x"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for wrong conversation, got %v", err)
	}
}

func TestDelete_PointDeletion(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	msg := mustCreate(t, store, &models.Message{ConversationID: "c1", Sender: models.SenderAI, Text: "x"})

	if err := store.Delete(ctx, msg.ID, ""); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if err := store.Delete(ctx, msg.ID, ""); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on second delete, got %v", err)
	}
}

func TestGroupConversations_TiesKeepAllGroups(t *testing.T) {
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	msgs := []*models.Message{
		{ID: "1", ConversationID: "a", Text: "a1", Timestamp: ts},
		{ID: "2", ConversationID: "b", Text: "b1", Timestamp: ts},
		{ID: "3", ConversationID: "c", Text: "c1", Timestamp: ts},
	}

	convs := repository.GroupConversations(msgs)
	if len(convs) != 3 {
		t.Fatalf("expected 3 groups, got %d", len(convs))
	}
	seen := map[string]bool{}
	for _, c := range convs {
		seen[c.ConversationID] = true
	}
	for _, id := range []string{"a", "b", "c"} {
		if !seen[id] {
			t.Fatalf("missing group %q", id)
		}
	}
}

func TestMemoryUsers_UniqueUsername(t *testing.T) {
	users := repository.NewMemoryStore().Users()
	ctx := context.Background()

	if err := users.Create(ctx, &models.User{Username: "trader", PasswordHash: "h"}); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := users.Create(ctx, &models.User{Username: "trader", PasswordHash: "h"}); !errors.Is(err, repository.ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}

	u, err := users.GetByUsername(ctx, "trader")
	if err != nil {
		t.Fatalf("GetByUsername failed: %v", err)
	}
	if _, err := users.GetByID(ctx, u.ID); err != nil {
		t.Fatalf("GetByID failed: %v", err)
	}
}
