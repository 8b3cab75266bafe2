package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/vovakirdan/wirepresence/internal/store"
)

var (
	// ErrInvalidCredentials is returned when login/password don't match.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUserExists is returned when trying to register with an existing username or email.
	ErrUserExists = errors.New("user already exists")
	// ErrInvalidUsername is returned when username doesn't meet constraints.
	ErrInvalidUsername = errors.New("invalid username")
	// ErrInvalidEmail is returned when email doesn't meet constraints.
	ErrInvalidEmail = errors.New("invalid email")
	// ErrInvalidPassword is returned when password doesn't meet constraints.
	ErrInvalidPassword = errors.New("invalid password")
	// ErrUnauthenticated is returned for missing, malformed or expired tokens.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrUnknownIdentity is returned when a valid token names an account that no longer exists.
	ErrUnknownIdentity = errors.New("unknown identity")
)

// Session is the result of a successful register or login.
type Session struct {
	Token string
	User  *store.User
}

// Identity is an authenticated account resolved from a token.
type Identity struct {
	UserID   int64
	Username string
	Email    string
}

// Service provides authentication operations.
type Service struct {
	store     store.UserStore
	jwtConfig *JWTConfig
}

// NewService creates a new authentication service.
func NewService(userStore store.UserStore, jwtConfig *JWTConfig) *Service {
	return &Service{
		store:     userStore,
		jwtConfig: jwtConfig,
	}
}

// Register creates a new user with hashed password and returns a session.
func (s *Service) Register(ctx context.Context, username, email, password string) (*Session, error) {
	username = strings.TrimSpace(username)
	email = strings.TrimSpace(email)
	if len(username) < 3 || len(username) > 32 {
		return nil, ErrInvalidUsername
	}
	if !strings.Contains(email, "@") || len(email) > 254 {
		return nil, ErrInvalidEmail
	}
	if len(password) < 6 {
		return nil, ErrInvalidPassword
	}

	hashedPassword, err := HashPassword(password)
	if err != nil {
		return nil, err
	}

	user, err := s.store.CreateUser(ctx, username, email, hashedPassword)
	if err != nil {
		if errors.Is(err, store.ErrUserExists) {
			return nil, ErrUserExists
		}
		return nil, fmt.Errorf("create user: %w", err)
	}

	return s.issue(user)
}

// Login validates credentials and returns a session. login may be a username or an email.
func (s *Service) Login(ctx context.Context, login, password string) (*Session, error) {
	user, err := s.store.GetUserByUsernameOrEmail(ctx, strings.TrimSpace(login))
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("lookup user: %w", err)
	}

	if errPwd := ComparePassword(user.PasswordHash, password); errPwd != nil {
		return nil, ErrInvalidCredentials
	}

	return s.issue(user)
}

// ValidateToken validates a token and returns the claims.
func (s *Service) ValidateToken(tokenString string) (*Claims, error) {
	return ValidateToken(s.jwtConfig, tokenString)
}

// Authenticate validates the token and checks that its account still exists.
func (s *Service) Authenticate(ctx context.Context, tokenString string) (*Identity, error) {
	claims, err := s.ValidateToken(tokenString)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}

	user, err := s.store.GetUserByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, store.ErrUserNotFound) {
			return nil, ErrUnknownIdentity
		}
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	if user.Username != claims.Username {
		return nil, ErrUnknownIdentity
	}

	return &Identity{UserID: user.ID, Username: user.Username, Email: user.Email}, nil
}

func (s *Service) issue(user *store.User) (*Session, error) {
	token, err := GenerateToken(s.jwtConfig, user.ID, user.Username, user.Email)
	if err != nil {
		return nil, fmt.Errorf("generate token: %w", err)
	}
	return &Session{Token: token, User: user}, nil
}
