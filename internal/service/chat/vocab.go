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

// VocabExists reports whether the user already saved the word for the
// language.
func (s *Service) VocabExists(ctx context.Context, userID int64, sourceWord, language string) (bool, error) {
	if userID <= 0 {
		return false, errors.New("invalid user id")
	}
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM vocab WHERE user_id = ? AND source_word = ? AND language = ?)`,
		userID, sourceWord, language,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("vocab exists: %w", err)
	}
	return exists, nil
}

// AddVocab saves a word to the user's review list with an empty gloss.
// The existence check makes serialized calls idempotent; two
// near-simultaneous calls can still both insert, which the schema
// permits on purpose.
func (s *Service) AddVocab(ctx context.Context, userID int64, sourceWord, language string) (*models.VocabEntry, bool, error) {
	sourceWord = strings.TrimSpace(sourceWord)
	if sourceWord == "" {
		return nil, false, errors.New("word is required")
	}
	language = strings.TrimSpace(language)
	if language == "" {
		return nil, false, errors.New("language is required")
	}
	exists, err := s.VocabExists(ctx, userID, sourceWord, language)
	if err != nil {
		return nil, false, err
	}
	if exists {
		return nil, false, nil
	}

	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO vocab (user_id, source_word, target_word, language, created_at) VALUES (?, ?, '', ?, ?)`,
		userID, sourceWord, language, now,
	)
	if err != nil {
		return nil, false, fmt.Errorf("insert vocab: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, false, fmt.Errorf("vocab id: %w", err)
	}
	return &models.VocabEntry{ID: id, UserID: userID, SourceWord: sourceWord, Language: language, CreatedAt: now}, true, nil
}

// WordGloss looks one word up by exact match for the language and
// returns the first match's target word. The lookup is global across
// users, mirroring how replies are annotated for display.
func (s *Service) WordGloss(ctx context.Context, sourceWord, language string) (string, bool, error) {
	var target string
	err := s.db.QueryRowContext(ctx,
		`SELECT target_word FROM vocab WHERE source_word = ? AND language = ? ORDER BY id ASC LIMIT 1`,
		sourceWord, language,
	).Scan(&target)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("lookup gloss: %w", err)
	}
	return target, true, nil
}

// ListVocab returns the user's saved words for a language in insertion
// order.
func (s *Service) ListVocab(ctx context.Context, userID int64, language string) ([]models.VocabEntry, error) {
	if userID <= 0 {
		return nil, errors.New("invalid user id")
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, source_word, target_word, language, created_at FROM vocab WHERE user_id = ? AND language = ? ORDER BY id ASC`,
		userID, language,
	)
	if err != nil {
		return nil, fmt.Errorf("list vocab: %w", err)
	}
	defer rows.Close()

	entries := make([]models.VocabEntry, 0)
	for rows.Next() {
		var v models.VocabEntry
		if err := rows.Scan(&v.ID, &v.UserID, &v.SourceWord, &v.TargetWord, &v.Language, &v.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan vocab: %w", err)
		}
		entries = append(entries, v)
	}
	return entries, rows.Err()
}
