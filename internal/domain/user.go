package domain

import (
	"strings"
	"time"
)

// User is the identity of record. The users table is the single source of
// truth for email existence checks and connection-code owners.
type User struct {
	UserID         string    `json:"id" dynamodbav:"user_id"`
	Email          string    `json:"email" dynamodbav:"email"`
	PasswordHash   string    `json:"-" dynamodbav:"password_hash"`
	EmailConfirmed bool      `json:"emailConfirmed" dynamodbav:"email_confirmed"`
	CreatedAt      time.Time `json:"createdAt" dynamodbav:"created_at"`
	UpdatedAt      time.Time `json:"updatedAt" dynamodbav:"updated_at"`
}

// NormalizeEmail is the canonical form used as a lookup key everywhere.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
