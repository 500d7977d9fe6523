package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"legalmitra/pkg/auth"
	"legalmitra/pkg/domain"
	"legalmitra/pkg/store"
)

// Hash compared against when the email is unknown, so that both login
// failure paths spend the same bcrypt time.
var (
	dummyHashOnce sync.Once
	dummyHash     string
)

func timingDummyHash() string {
	dummyHashOnce.Do(func() {
		dummyHash, _ = auth.HashPassword("legalmitra-timing-equalizer")
	})
	return dummyHash
}

// Register creates an account and issues a token for it.
func (a *App) Register(ctx context.Context, email, password, name string) (domain.User, string, error) {
	email = normalizeEmail(email)
	name = strings.TrimSpace(name)
	if email == "" || password == "" || name == "" {
		return domain.User{}, "", ErrFieldsRequired
	}
	if err := auth.ValidatePassword(password); err != nil {
		if errors.Is(err, auth.ErrPasswordTooLong) {
			return domain.User{}, "", ErrPasswordTooLong
		}
		return domain.User{}, "", ErrFieldsRequired
	}
	exists, err := a.store.HasUserEmail(ctx, email)
	if err != nil {
		return domain.User{}, "", fmt.Errorf("check email: %w", err)
	}
	if exists {
		return domain.User{}, "", ErrEmailAlreadyExists
	}
	passwordHash, err := auth.HashPassword(password)
	if err != nil {
		return domain.User{}, "", fmt.Errorf("hash password: %w", err)
	}
	now := time.Now().UTC()
	user := domain.User{
		ID:           store.NewID(),
		Email:        email,
		Name:         name,
		AvatarURL:    auth.RandomAvatarURL(a.avatarTemplate),
		PasswordHash: passwordHash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := a.store.CreateUser(ctx, user); err != nil {
		if errors.Is(err, store.ErrEmailTaken) {
			return domain.User{}, "", ErrEmailAlreadyExists
		}
		return domain.User{}, "", fmt.Errorf("create user: %w", err)
	}
	token, err := a.sessions.NewSession(user.ID)
	if err != nil {
		return domain.User{}, "", fmt.Errorf("issue token: %w", err)
	}
	return user, token, nil
}

// Login validates credentials and issues a token. Unknown email and wrong
// password both yield ErrInvalidCredentials.
func (a *App) Login(ctx context.Context, email, password string) (domain.User, string, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return domain.User{}, "", ErrFieldsRequired
	}
	user, ok, err := a.store.GetUserByEmail(ctx, email)
	if err != nil {
		return domain.User{}, "", fmt.Errorf("fetch user: %w", err)
	}
	if !ok {
		auth.CheckPassword(password, timingDummyHash())
		return domain.User{}, "", ErrInvalidCredentials
	}
	if !auth.CheckPassword(password, user.PasswordHash) {
		return domain.User{}, "", ErrInvalidCredentials
	}
	token, err := a.sessions.NewSession(user.ID)
	if err != nil {
		return domain.User{}, "", fmt.Errorf("issue token: %w", err)
	}
	return user, token, nil
}

// Logout is advisory: tokens are stateless and the client discards its copy.
func (a *App) Logout(token string) error {
	if token == "" {
		return nil
	}
	return a.sessions.DeleteSession(token)
}

// UserIDFromToken resolves the subject of a bearer token. The subject must
// still be a stored user.
func (a *App) UserIDFromToken(ctx context.Context, token string) (string, error) {
	uid, ok, err := a.sessions.GetUserIDByToken(token)
	if err != nil || !ok {
		return "", withCause(ErrInvalidToken, err)
	}
	_, found, err := a.store.GetUserByID(ctx, uid)
	if err != nil {
		return "", withCause(ErrInternal, fmt.Errorf("fetch token user: %w", err))
	}
	if !found {
		return "", ErrInvalidToken
	}
	return uid, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
