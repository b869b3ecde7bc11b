package domain

import (
	"fmt"
	"github.com/google/uuid"
	"time"
)

type Account struct {
	Id           uuid.UUID
	Username     string
	PasswordHash string
	Email        string
	CreatedAt    time.Time
}

func (acc *Account) ToString() string {
	return fmt.Sprintf("\n\tId: %s \n\tUsername: %s \n\tEmail: %s \n\tCreatedAt: %s)", acc.Id, acc.Username, acc.Email, acc.CreatedAt)
}

// PasswordReset tracks a pending one-time-password reset flow for an
// account, keyed by email. OtpHash stores a bcrypt hash of the code,
// never the code itself.
type PasswordReset struct {
	Id         uuid.UUID
	Email      string
	OtpHash    string
	ResetToken string
	ExpiresAt  time.Time
	Verified   bool
}
