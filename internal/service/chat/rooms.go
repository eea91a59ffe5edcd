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

// DefaultLanguage is assigned to rooms created without a language.
const DefaultLanguage = "English"

// CreateRoom inserts a new room owned by the given user. Room names are
// not unique: a second room with the same name is a distinct room.
func (s *Service) CreateRoom(ctx context.Context, ownerUserID int64, name, language string) (*models.Room, error) {
	if ownerUserID <= 0 {
		return nil, errors.New("owner_user_id is required")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.New("room name is required")
	}
	language = strings.TrimSpace(language)
	if language == "" {
		language = DefaultLanguage
	}

	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO rooms (owner_user_id, name, language, created_at) VALUES (?, ?, ?, ?)`,
		ownerUserID, name, language, now,
	)
	if err != nil {
		return nil, fmt.Errorf("create room: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("room id: %w", err)
	}
	return &models.Room{ID: id, OwnerUserID: ownerUserID, Name: name, Language: language, CreatedAt: now}, nil
}

// ListRooms returns all rooms in storage order. Rooms are global, not
// scoped to the caller.
func (s *Service) ListRooms(ctx context.Context) ([]models.Room, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, owner_user_id, name, language, created_at FROM rooms`,
	)
	if err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}
	defer rows.Close()

	var rooms []models.Room
	for rows.Next() {
		var r models.Room
		if err := rows.Scan(&r.ID, &r.OwnerUserID, &r.Name, &r.Language, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan room: %w", err)
		}
		rooms = append(rooms, r)
	}
	return rooms, rows.Err()
}

// GetRoom returns a single room by id.
func (s *Service) GetRoom(ctx context.Context, id int64) (*models.Room, error) {
	if id <= 0 {
		return nil, errors.New("invalid room id")
	}
	row := s.db.QueryRowContext(ctx,
		`SELECT id, owner_user_id, name, language, created_at FROM rooms WHERE id = ?`, id,
	)
	var r models.Room
	if err := row.Scan(&r.ID, &r.OwnerUserID, &r.Name, &r.Language, &r.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("query room: %w", err)
	}
	return &r, nil
}

// FindRoomByName returns the first room in the slice with the given
// name, or nil. With duplicate names the selection is whatever the
// listing order yields first.
func FindRoomByName(rooms []models.Room, name string) *models.Room {
	for i := range rooms {
		if rooms[i].Name == name {
			return &rooms[i]
		}
	}
	return nil
}
