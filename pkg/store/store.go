package store

import (
	"context"
	"errors"

	"legalmitra/pkg/domain"
)

var (
	// ErrNotFound reports a missing user or notebook.
	ErrNotFound = errors.New("not found")
	// ErrEmailTaken reports a unique email violation on user creation.
	ErrEmailTaken = errors.New("email already registered")
)

// Store defines persistence operations for users and notebooks.
type Store interface {
	// users
	CreateUser(ctx context.Context, u domain.User) error
	HasUserEmail(ctx context.Context, email string) (bool, error)
	GetUserByEmail(ctx context.Context, email string) (domain.User, bool, error)
	GetUserByID(ctx context.Context, id string) (domain.User, bool, error)

	// notebooks
	//
	// AppendMessages creates the notebook when it does not exist yet (a new
	// ID is generated when notebookID is empty) and appends msgs in order.
	// Concurrent appends to the same notebook never lose messages.
	AppendMessages(ctx context.Context, userID, notebookID string, msgs []domain.Message) (domain.Notebook, error)
	GetNotebook(ctx context.Context, userID, notebookID string) (domain.Notebook, error)
	ListNotebookSummaries(ctx context.Context, userID string) ([]domain.NotebookSummary, error)
}

// SessionStore issues and resolves bearer tokens.
type SessionStore interface {
	NewSession(userID string) (string, error)
	GetUserIDByToken(token string) (string, bool, error)
	DeleteSession(token string) error
}
