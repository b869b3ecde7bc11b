package account

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/arenh/gomphos/db"
	"github.com/arenh/gomphos/domain"
	"github.com/arenh/gomphos/util"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const defaultTokenTtl = 30 * time.Minute

// Claims are the payload of an issued bearer token.
type Claims struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	Instance string `json:"instance"`
	jwt.RegisteredClaims
}

// Service handles registration, login and bearer tokens for local
// accounts.
type Service struct {
	db       *db.DB
	secret   []byte
	ttl      time.Duration
	instance string
	mailer   Mailer
}

func NewService(database *db.DB, conf *util.AppConfig, mailer Mailer) *Service {
	ttl := time.Duration(conf.Conf.TokenTtlMinutes) * time.Minute
	if ttl <= 0 {
		ttl = defaultTokenTtl
	}
	return &Service{
		db:       database,
		secret:   []byte(conf.Conf.TokenSecret),
		ttl:      ttl,
		instance: conf.Conf.InstanceName,
		mailer:   mailer,
	}
}

// Register creates a local account. The username doubles as the actor
// segment, so it must be URL-safe.
func (s *Service) Register(username string, email string, password string) (*domain.Account, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, fmt.Errorf("%w: username and password required", domain.ErrInvalidInput)
	}
	if strings.ContainsAny(username, "/ @") {
		return nil, fmt.Errorf("%w: username must not contain '/', ' ' or '@'", domain.ErrInvalidInput)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	acc := &domain.Account{
		Id:           uuid.New(),
		Username:     username,
		PasswordHash: string(hash),
		Email:        strings.TrimSpace(email),
		CreatedAt:    time.Now(),
	}
	if err := s.db.CreateAccount(acc); err != nil {
		return nil, err
	}
	return acc, nil
}

// Authenticate verifies a username/password pair. Unknown usernames
// and wrong passwords are indistinguishable to the caller.
func (s *Service) Authenticate(username string, password string) (*domain.Account, error) {
	err, acc := s.db.ReadAccByUsername(username)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrUnauthorized
		}
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(acc.PasswordHash), []byte(password)); err != nil {
		return nil, domain.ErrUnauthorized
	}
	return acc, nil
}

// IssueToken signs a bearer token for the account.
func (s *Service) IssueToken(acc *domain.Account) (string, error) {
	claims := Claims{
		UserID:   acc.Id.String(),
		Username: acc.Username,
		Instance: s.instance,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(s.ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// VerifyToken parses and validates a bearer token. Any parse or
// signature failure comes back as ErrUnauthorized.
func (s *Service) VerifyToken(token string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(_ *jwt.Token) (interface{}, error) {
		return s.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrUnauthorized, err)
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, domain.ErrUnauthorized
	}
	return claims, nil
}

// AccountForClaims resolves the token's subject back to its account
// row, guarding against accounts deleted after the token was issued.
func (s *Service) AccountForClaims(claims *Claims) (*domain.Account, error) {
	id, err := uuid.Parse(claims.UserID)
	if err != nil {
		return nil, domain.ErrUnauthorized
	}
	err, acc := s.db.ReadAccById(id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrUnauthorized
		}
		return nil, err
	}
	return acc, nil
}
