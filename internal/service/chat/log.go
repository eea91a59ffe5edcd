package chat

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"lingochat/internal/models"
)

// AppendMessage stores one immutable log entry with a server-assigned
// timestamp. userID must be non-nil for role "user" and nil for role
// "bot".
func (s *Service) AppendMessage(ctx context.Context, roomID int64, role models.Role, content string, userID *int64) (*models.Message, error) {
	if roomID <= 0 {
		return nil, errors.New("room_id is required")
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, errors.New("content cannot be empty")
	}
	switch role {
	case models.RoleUser:
		if userID == nil || *userID <= 0 {
			return nil, errors.New("user_id is required for user messages")
		}
	case models.RoleBot:
		if userID != nil {
			return nil, errors.New("bot messages carry no user_id")
		}
	default:
		return nil, fmt.Errorf("invalid role: %s", role)
	}

	var exists bool
	if err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM rooms WHERE id = ?)`, roomID,
	).Scan(&exists); err != nil {
		return nil, fmt.Errorf("verify room: %w", err)
	}
	if !exists {
		return nil, sql.ErrNoRows
	}

	now := time.Now().UTC()
	var uid sql.NullInt64
	if userID != nil {
		uid = sql.NullInt64{Int64: *userID, Valid: true}
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (room_id, user_id, role, content, created_at) VALUES (?, ?, ?, ?, ?)`,
		roomID, uid, role, content, now,
	)
	if err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("message id: %w", err)
	}
	return &models.Message{ID: id, RoomID: roomID, UserID: userID, Role: role, Content: content, CreatedAt: now}, nil
}

// History returns a room's messages oldest first. Insertion order is
// the canonical display order.
func (s *Service) History(ctx context.Context, roomID int64) ([]*models.Message, error) {
	if roomID <= 0 {
		return nil, errors.New("invalid room id")
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, room_id, user_id, role, content, created_at FROM messages WHERE room_id = ? ORDER BY created_at ASC, id ASC`,
		roomID,
	)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	messages := make([]*models.Message, 0)
	for rows.Next() {
		m := new(models.Message)
		var uid sql.NullInt64
		if err := rows.Scan(&m.ID, &m.RoomID, &uid, &m.Role, &m.Content, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		if uid.Valid {
			v := uid.Int64
			m.UserID = &v
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}
