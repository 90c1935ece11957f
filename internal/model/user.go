package model

import "time"

// User is an account together with its profile.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Identity is the authenticated caller, passed explicitly to every operation that needs it.
type Identity struct {
	UserID string
	Email  string
	Token  string
}

// Anonymous reports whether no user is attached.
func (i Identity) Anonymous() bool {
	return i.UserID == ""
}
