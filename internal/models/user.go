package models

import "time"

// User is created on first login with an email and never updated afterwards.
type User struct {
	ID           int64     `json:"id"`
	Email        string    `json:"email"`
	DisplayName  string    `json:"display_name"`
	MotherTongue string    `json:"mother_tongue"`
	CreatedAt    time.Time `json:"created_at"`
}
