package domain

import "time"

// User is the account resolved from the identity provider.
type User struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Email         string    `json:"email"`
	EmailVerified bool      `json:"emailVerified"`
	RegisteredAt  time.Time `json:"registeredAt"`
}
