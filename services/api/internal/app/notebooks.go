package app

import (
	"context"
	"errors"
	"strings"

	"legalmitra/pkg/domain"
	"legalmitra/pkg/store"
)

// GetNotebook returns one notebook of userID.
func (a *App) GetNotebook(ctx context.Context, userID, notebookID string) (domain.Notebook, error) {
	userID = strings.TrimSpace(userID)
	notebookID = strings.TrimSpace(notebookID)
	if userID == "" || notebookID == "" {
		return domain.Notebook{}, ErrNotebookNotFound
	}
	nb, err := a.store.GetNotebook(ctx, userID, notebookID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.Notebook{}, ErrNotebookNotFound
		}
		return domain.Notebook{}, withCause(ErrInternal, err)
	}
	return nb, nil
}

// ListNotebooks returns the summaries of userID's notebooks, most recently
// updated first.
func (a *App) ListNotebooks(ctx context.Context, userID string) ([]domain.NotebookSummary, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, ErrUserIDRequired
	}
	list, err := a.store.ListNotebookSummaries(ctx, userID)
	if err != nil {
		return nil, withCause(ErrInternal, err)
	}
	return list, nil
}
