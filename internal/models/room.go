package models

import "time"

// Room is a named, language-tagged chat context. Rooms are listed
// globally and joinable by any user; they are immutable once created.
type Room struct {
	ID          int64     `json:"id"`
	OwnerUserID int64     `json:"owner_user_id"`
	Name        string    `json:"name"`
	Language    string    `json:"language"`
	CreatedAt   time.Time `json:"created_at"`
}
