package chat

import (
	"context"
	"database/sql"
	"fmt"
	"testing"

	"lingochat/internal/models"
)

func TestHistoryEmptyRoom(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()
	svc := NewService(db)
	ctx := context.Background()
	userID := insertTestUser(t, svc, "u@x.com")
	room, err := svc.CreateRoom(ctx, userID, "Quiet", "")
	if err != nil {
		t.Fatalf("create room: %v", err)
	}

	msgs, err := svc.History(ctx, room.ID)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(msgs) != 0 {
		t.Fatalf("expected empty history, got %d messages", len(msgs))
	}
}

func TestHistoryPreservesAppendOrder(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()
	svc := NewService(db)
	ctx := context.Background()
	userID := insertTestUser(t, svc, "u@x.com")
	room, err := svc.CreateRoom(ctx, userID, "Busy", "")
	if err != nil {
		t.Fatalf("create room: %v", err)
	}

	const n = 6
	for i := 0; i < n; i++ {
		role := models.RoleUser
		uid := &userID
		if i%2 == 1 {
			role = models.RoleBot
			uid = nil
		}
		if _, err := svc.AppendMessage(ctx, room.ID, role, fmt.Sprintf("msg-%d", i), uid); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}

	msgs, err := svc.History(ctx, room.ID)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(msgs) != n {
		t.Fatalf("expected %d messages, got %d", n, len(msgs))
	}
	for i, m := range msgs {
		if m.Content != fmt.Sprintf("msg-%d", i) {
			t.Fatalf("message %d out of order: %q", i, m.Content)
		}
		if i%2 == 0 {
			if m.Role != models.RoleUser || m.UserID == nil || *m.UserID != userID {
				t.Fatalf("user message %d malformed: %+v", i, m)
			}
		} else {
			if m.Role != models.RoleBot || m.UserID != nil {
				t.Fatalf("bot message %d malformed: %+v", i, m)
			}
		}
	}
}

func TestAppendMessageValidation(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()
	svc := NewService(db)
	ctx := context.Background()
	userID := insertTestUser(t, svc, "u@x.com")
	room, err := svc.CreateRoom(ctx, userID, "Rules", "")
	if err != nil {
		t.Fatalf("create room: %v", err)
	}

	if _, err := svc.AppendMessage(ctx, room.ID, models.RoleUser, "  ", &userID); err == nil {
		t.Fatalf("expected error for empty content")
	}
	if _, err := svc.AppendMessage(ctx, room.ID, models.RoleUser, "hi", nil); err == nil {
		t.Fatalf("expected error for user message without user_id")
	}
	if _, err := svc.AppendMessage(ctx, room.ID, models.RoleBot, "hi", &userID); err == nil {
		t.Fatalf("expected error for bot message with user_id")
	}
	if _, err := svc.AppendMessage(ctx, room.ID, models.Role("system"), "hi", nil); err == nil {
		t.Fatalf("expected error for unknown role")
	}
	if _, err := svc.AppendMessage(ctx, room.ID+999, models.RoleBot, "hi", nil); err != sql.ErrNoRows {
		t.Fatalf("expected sql.ErrNoRows for unknown room, got %v", err)
	}
}
