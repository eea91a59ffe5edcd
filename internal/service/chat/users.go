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

// Service handles users, rooms, the conversation log, and vocabulary.
type Service struct {
	db *sql.DB
}

// NewService builds a new chat service.
func NewService(db *sql.DB) *Service {
	return &Service{db: db}
}

// ResolveOrCreateUser looks a user up by email, creating the record on
// first login. An existing record is returned verbatim: the submitted
// display name and mother tongue are ignored once an account exists.
func (s *Service) ResolveOrCreateUser(ctx context.Context, email, displayName, motherTongue string) (*models.User, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, errors.New("email is required")
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT id, email, display_name, mother_tongue, created_at FROM users WHERE email = ?`, email,
	)
	var user models.User
	err := row.Scan(&user.ID, &user.Email, &user.DisplayName, &user.MotherTongue, &user.CreatedAt)
	if err == nil {
		return &user, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("query user: %w", err)
	}

	displayName = strings.TrimSpace(displayName)
	if displayName == "" {
		displayName = email
	}
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO users (email, display_name, mother_tongue, created_at) VALUES (?, ?, ?, ?)`,
		email, displayName, motherTongue, now,
	)
	if err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("user id: %w", err)
	}
	return &models.User{ID: id, Email: email, DisplayName: displayName, MotherTongue: motherTongue, CreatedAt: now}, nil
}

// GetUser returns the stored user record.
func (s *Service) GetUser(ctx context.Context, id int64) (*models.User, error) {
	if id <= 0 {
		return nil, errors.New("invalid user id")
	}
	row := s.db.QueryRowContext(ctx,
		`SELECT id, email, display_name, mother_tongue, created_at FROM users WHERE id = ?`, id,
	)
	var user models.User
	if err := row.Scan(&user.ID, &user.Email, &user.DisplayName, &user.MotherTongue, &user.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("query user: %w", err)
	}
	return &user, nil
}
