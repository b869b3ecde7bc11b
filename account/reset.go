package account

import (
	"errors"
	"log"
	"time"

	"github.com/arenh/gomphos/domain"
	"github.com/arenh/gomphos/util"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const (
	otpLength   = 6
	otpLifetime = 10 * time.Minute
)

// InitiateReset starts the password reset flow for an email address.
// Unknown addresses return success without sending anything, so the
// endpoint cannot be used to probe which emails are registered.
func (s *Service) InitiateReset(email string) error {
	err, _ := s.db.ReadAccByEmail(email)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			log.Printf("Account: Reset requested for unknown email, ignoring")
			return nil
		}
		return err
	}

	otp := util.RandomDigits(otpLength)
	otpHash, err := bcrypt.GenerateFromPassword([]byte(otp), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	reset := &domain.PasswordReset{
		Id:        uuid.New(),
		Email:     email,
		OtpHash:   string(otpHash),
		ExpiresAt: time.Now().Add(otpLifetime),
		Verified:  false,
	}
	if err := s.db.CreatePasswordReset(reset); err != nil {
		return err
	}

	return s.mailer.SendOtp(email, otp)
}

// VerifyOtp exchanges a valid one-time code for a single-use reset
// token. Expired or wrong codes fail with ErrUnauthorized.
func (s *Service) VerifyOtp(email string, otp string) (string, error) {
	err, reset := s.db.ReadPasswordResetByEmail(email)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return "", domain.ErrUnauthorized
		}
		return "", err
	}
	if time.Now().After(reset.ExpiresAt) {
		return "", domain.ErrUnauthorized
	}
	if err := bcrypt.CompareHashAndPassword([]byte(reset.OtpHash), []byte(otp)); err != nil {
		return "", domain.ErrUnauthorized
	}

	token := uuid.NewString()
	if err := s.db.VerifyPasswordReset(reset.Id, token); err != nil {
		return "", err
	}
	return token, nil
}

// ResetPassword consumes a verified reset token and replaces the
// account's password.
func (s *Service) ResetPassword(token string, newPassword string) error {
	if newPassword == "" {
		return domain.ErrInvalidInput
	}

	err, reset := s.db.ReadPasswordResetByToken(token)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.ErrUnauthorized
		}
		return err
	}
	if time.Now().After(reset.ExpiresAt) {
		return domain.ErrUnauthorized
	}

	err, acc := s.db.ReadAccByEmail(reset.Email)
	if err != nil {
		return err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	if err := s.db.UpdateAccountPassword(acc.Id, string(hash)); err != nil {
		return err
	}
	return s.db.DeletePasswordReset(reset.Id)
}
