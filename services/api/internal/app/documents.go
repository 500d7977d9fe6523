package app

import (
	"context"
	"errors"
	"strings"

	"legalmitra/pkg/domain"
	"legalmitra/services/api/internal/aiclient"
)

// DocumentRequest is a single file submitted for summarization.
type DocumentRequest struct {
	Document *aiclient.Document
	Language string
}

// ProcessDocument forwards a PDF or image to the AI service. Any failure of
// the AI service surfaces as a bad gateway error.
func (a *App) ProcessDocument(ctx context.Context, req DocumentRequest) (domain.DocumentSummary, error) {
	if req.Document == nil || req.Document.Body == nil {
		return domain.DocumentSummary{}, ErrNoFileUploaded
	}
	if !SupportedDocumentType(req.Document.ContentType) {
		return domain.DocumentSummary{}, ErrUnsupportedDocument
	}
	lang, err := ParseRequestLanguage(req.Language)
	if err != nil {
		return domain.DocumentSummary{}, err
	}
	summary, err := a.ai.ProcessDocument(ctx, *req.Document, lang)
	if err != nil {
		var apiErr *aiclient.APIError
		if errors.As(err, &apiErr) && apiErr.Message != "" {
			return domain.DocumentSummary{}, &Error{Kind: KindBadGateway, Message: apiErr.Message, Err: err}
		}
		return domain.DocumentSummary{}, withCause(ErrDocumentFailed, err)
	}
	return summary, nil
}

// SupportedDocumentType reports whether the AI service accepts the MIME type.
func SupportedDocumentType(contentType string) bool {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	return strings.Contains(ct, "pdf") || strings.HasPrefix(ct, "image/")
}
