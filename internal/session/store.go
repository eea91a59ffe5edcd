package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"lingochat/internal/redis"

	"github.com/google/uuid"
)

// ErrNotFound is returned for unknown or expired session tokens.
var ErrNotFound = errors.New("session not found")

// DefaultTTL is applied when no session lifetime is configured.
const DefaultTTL = 24 * time.Hour

const keyPrefix = "session:"

// State is the per-session application state. A session is anonymous
// until login (no State exists), identified once UserID is set, and
// room-selected once RoomID is set. Nothing ever clears a room
// selection within a session.
type State struct {
	UserID          int64  `json:"user_id"`
	DisplayName     string `json:"display_name"`
	RoomID          int64  `json:"room_id"`
	RoomLanguage    string `json:"room_language"`
	ShowTranslation bool   `json:"show_translation"`
}

// Identified reports whether the session belongs to a logged-in user.
func (s *State) Identified() bool {
	return s != nil && s.UserID > 0
}

// RoomSelected reports whether a room has been selected or created.
func (s *State) RoomSelected() bool {
	return s.Identified() && s.RoomID > 0
}

// Store keeps session state in Redis keyed by a random token, each
// write refreshing the TTL.
type Store struct {
	cache *redis.Client
	ttl   time.Duration
}

// NewStore builds a Redis-backed session store.
func NewStore(cache *redis.Client, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{cache: cache, ttl: ttl}
}

// Create mints a token for the given state and persists it.
func (s *Store) Create(ctx context.Context, state *State) (string, error) {
	if state == nil || !state.Identified() {
		return "", errors.New("session state requires a user")
	}
	token := uuid.NewString()
	if err := s.put(ctx, token, state); err != nil {
		return "", err
	}
	return token, nil
}

// Get loads the state for a token.
func (s *Store) Get(ctx context.Context, token string) (*State, error) {
	if token == "" {
		return nil, ErrNotFound
	}
	raw, err := s.cache.Get(ctx, keyPrefix+token)
	if err != nil {
		if errors.Is(err, redis.ErrCacheMiss) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load session: %w", err)
	}
	var state State
	if err := json.Unmarshal([]byte(raw), &state); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return &state, nil
}

// Save overwrites the state for an existing token and refreshes its
// TTL.
func (s *Store) Save(ctx context.Context, token string, state *State) error {
	if token == "" {
		return ErrNotFound
	}
	return s.put(ctx, token, state)
}

// Delete removes the session.
func (s *Store) Delete(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	return s.cache.Del(ctx, keyPrefix+token)
}

func (s *Store) put(ctx context.Context, token string, state *State) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	if err := s.cache.Set(ctx, keyPrefix+token, string(raw), s.ttl); err != nil {
		return fmt.Errorf("store session: %w", err)
	}
	return nil
}
