package models

import "time"

// VocabEntry maps a source word to an optional target-language gloss,
// scoped to one user and one language. TargetWord is empty at creation
// time; an empty gloss means "no translation stored yet".
type VocabEntry struct {
	ID         int64     `json:"id"`
	UserID     int64     `json:"user_id"`
	SourceWord string    `json:"source_word"`
	TargetWord string    `json:"target_word"`
	Language   string    `json:"language"`
	CreatedAt  time.Time `json:"created_at"`
}
