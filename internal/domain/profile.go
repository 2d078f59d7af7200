package domain

import "time"

// DefaultBio is written into profiles created at sign-up.
const DefaultBio = "Hi! I'm using the app."

// Profile is the public, user-editable part of an account.
type Profile struct {
	ID          string    `json:"id"`
	UserID      string    `json:"userId"`
	Username    string    `json:"username"`
	Bio         string    `json:"bio"`
	AvatarIndex int       `json:"avatarIndex"`
	UpdatedAt   time.Time `json:"updatedAt"`
}
