package repository

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"tradechat-backend/internal/models"
)

// newTestPool connects to TEST_DATABASE_URL and applies the schema.
func newTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	t.Cleanup(pool.Close)

	schema, err := os.ReadFile("../../migrations/001_initial_schema.sql")
	if err != nil {
		t.Fatalf("failed to read schema: %v", err)
	}
	if _, err := pool.Exec(ctx, string(schema)); err != nil {
		t.Fatalf("failed to apply schema: %v", err)
	}
	return pool
}

func TestMessageRepo_Postgres(t *testing.T) {
	pool := newTestPool(t)
	repo := NewMessageRepo(pool)
	ctx := context.Background()

	// Fresh conversation ids keep runs against a shared database apart
	prefix := uuid.NewString()[:8] + "-"
	c1, c2, c3 := prefix+"c1", prefix+"c2", prefix+"c3"
	t.Cleanup(func() {
		for _, id := range []string{c1, c2, c3} {
			repo.DeleteConversation(context.Background(), id, "")
		}
	})

	base := time.Now().UTC().Truncate(time.Microsecond)
	insert := func(conversationID, sender, text string, at time.Time) *models.Message {
		t.Helper()
		msg := &models.Message{ConversationID: conversationID, Sender: sender, Text: text, Timestamp: at}
		if err := repo.Create(ctx, msg); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
		return msg
	}

	insert(c1, models.SenderUser, "q1", base)
	insert(c1, models.SenderAI, "a1", base.Add(time.Minute))
	insert(c2, models.SenderUser, "q2", base.Add(2*time.Minute))
	tieFirst := insert(c3, models.SenderUser, "q3", base.Add(3*time.Minute))
	tieSecond := insert(c3, models.SenderAI, "a3", base.Add(3*time.Minute))

	t.Run("preset timestamps are kept", func(t *testing.T) {
		if !tieFirst.Timestamp.Equal(base.Add(3 * time.Minute)) {
			t.Fatalf("expected preset timestamp, got %v", tieFirst.Timestamp)
		}
	})

	t.Run("messages order by timestamp then id", func(t *testing.T) {
		msgs, err := repo.ListByConversation(ctx, c3, "")
		if err != nil {
			t.Fatalf("ListByConversation failed: %v", err)
		}
		if len(msgs) != 2 || msgs[0].ID != tieFirst.ID || msgs[1].ID != tieSecond.ID {
			t.Fatalf("expected creation order on equal timestamps, got %+v", msgs)
		}
	})

	t.Run("conversations show their newest message", func(t *testing.T) {
		convs, err := repo.ListConversations(ctx, "")
		if err != nil {
			t.Fatalf("ListConversations failed: %v", err)
		}

		var ours []*models.Conversation
		for _, c := range convs {
			if c.ConversationID == c1 || c.ConversationID == c2 || c.ConversationID == c3 {
				ours = append(ours, c)
			}
		}

		want := []struct{ id, last string }{{c3, "a3"}, {c2, "q2"}, {c1, "a1"}}
		if len(ours) != len(want) {
			t.Fatalf("expected %d conversations, got %+v", len(want), ours)
		}
		for i, w := range want {
			if ours[i].ConversationID != w.id || ours[i].LastMessage != w.last {
				t.Fatalf("position %d: expected %s/%q, got %s/%q", i, w.id, w.last, ours[i].ConversationID, ours[i].LastMessage)
			}
		}
		if !ours[2].UpdatedAt.Equal(base.Add(time.Minute)) {
			t.Fatalf("expected updatedAt of a1, got %v", ours[2].UpdatedAt)
		}
	})

	t.Run("owners outside the scope are invisible", func(t *testing.T) {
		convs, err := repo.ListConversations(ctx, uuid.NewString())
		if err != nil {
			t.Fatalf("ListConversations failed: %v", err)
		}
		if len(convs) != 0 {
			t.Fatalf("expected no conversations for an unknown owner, got %d", len(convs))
		}
	})
}
