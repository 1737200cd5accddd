// Package auth registers accounts and issues the bearer tokens that admit
// a session.
package auth

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/bosley/signspeak/store"
)

const (
	MinPasswordLength = 6
	DefaultTokenTTL   = 7 * 24 * time.Hour
	issuer            = "signspeak"
)

var (
	ErrMissingFields      = errors.New("email and password are required")
	ErrInvalidEmail       = errors.New("please enter a valid email")
	ErrWeakPassword       = fmt.Errorf("password must be at least %d characters", MinPasswordLength)
	ErrUserExists         = errors.New("user already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidToken       = errors.New("invalid token")
)

// UserStore is the account persistence auth needs.
type UserStore interface {
	Create(ctx context.Context, u store.User) error
	FindByEmail(ctx context.Context, email string) (store.User, error)
}

// Account is returned by Register and Login.
type Account struct {
	UserID    string    `json:"id"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"createdAt"`
	Token     string    `json:"-"`
}

// Claims are what a verified token says about its bearer.
type Claims struct {
	UserID    string
	Email     string
	ExpiresAt time.Time
}

type privateClaims struct {
	Email string `json:"email"`
}

type Service struct {
	users UserStore
	key   []byte
	ttl   time.Duration
	now   func() time.Time
}

// NewService signs tokens with a key derived from secret. An empty secret
// gets a random one, so tokens do not survive a restart.
func NewService(users UserStore, secret string, ttl time.Duration) *Service {
	if secret == "" {
		slog.Warn("No JWT secret configured, generating an ephemeral one")
		secret = uuid.New().String() + uuid.New().String()
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	key := sha256.Sum256([]byte(secret))
	return &Service{users: users, key: key[:], ttl: ttl, now: time.Now}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validateCredentials(email, password string) error {
	if email == "" || password == "" {
		return ErrMissingFields
	}
	if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		return ErrInvalidEmail
	}
	if len(password) < MinPasswordLength {
		return ErrWeakPassword
	}
	return nil
}

func (s *Service) Register(ctx context.Context, email, password string) (Account, error) {
	email = normalizeEmail(email)
	if err := validateCredentials(email, password); err != nil {
		return Account{}, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return Account{}, fmt.Errorf("password processing failed: %w", err)
	}

	user := store.User{
		ID:           uuid.New().String(),
		Email:        email,
		PasswordHash: string(hash),
		CreatedAt:    s.now().UTC(),
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return Account{}, ErrUserExists
		}
		return Account{}, err
	}

	slog.Info("Registered user", "userID", user.ID, "email", user.Email)
	return s.account(user)
}

// Login checks the password. Unknown email and wrong password return the
// same error.
func (s *Service) Login(ctx context.Context, email, password string) (Account, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return Account{}, ErrMissingFields
	}

	user, err := s.users.FindByEmail(ctx, email)
	if errors.Is(err, store.ErrNotFound) {
		return Account{}, ErrInvalidCredentials
	}
	if err != nil {
		return Account{}, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return Account{}, ErrInvalidCredentials
	}

	slog.Info("User logged in", "userID", user.ID)
	return s.account(user)
}

func (s *Service) account(u store.User) (Account, error) {
	token, err := s.Issue(u.ID, u.Email)
	if err != nil {
		return Account{}, err
	}
	return Account{UserID: u.ID, Email: u.Email, CreatedAt: u.CreatedAt, Token: token}, nil
}

// Issue signs an HS256 token for userID.
func (s *Service) Issue(userID, email string) (string, error) {
	signer, err := jose.NewSigner(
		jose.SigningKey{Algorithm: jose.HS256, Key: s.key},
		(&jose.SignerOptions{}).WithType("JWT"),
	)
	if err != nil {
		return "", fmt.Errorf("token generation failed: %w", err)
	}

	now := s.now()
	claims := jwt.Claims{
		Issuer:   issuer,
		Subject:  userID,
		IssuedAt: jwt.NewNumericDate(now),
		Expiry:   jwt.NewNumericDate(now.Add(s.ttl)),
	}
	token, err := jwt.Signed(signer).Claims(claims).Claims(privateClaims{Email: email}).Serialize()
	if err != nil {
		return "", fmt.Errorf("token generation failed: %w", err)
	}
	return token, nil
}

// Verify checks signature, issuer and expiry.
func (s *Service) Verify(token string) (Claims, error) {
	parsed, err := jwt.ParseSigned(token, []jose.SignatureAlgorithm{jose.HS256})
	if err != nil {
		return Claims{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	var std jwt.Claims
	var priv privateClaims
	if err := parsed.Claims(s.key, &std, &priv); err != nil {
		return Claims{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if err := std.ValidateWithLeeway(jwt.Expected{Issuer: issuer, Time: s.now()}, 0); err != nil {
		return Claims{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if std.Subject == "" {
		return Claims{}, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}

	var exp time.Time
	if std.Expiry != nil {
		exp = std.Expiry.Time()
	}
	return Claims{UserID: std.Subject, Email: priv.Email, ExpiresAt: exp}, nil
}
