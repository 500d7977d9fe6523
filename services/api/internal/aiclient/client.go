package aiclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"legalmitra/pkg/domain"
)

const defaultTimeout = 60 * time.Second

// Client calls the AI document service over HTTP.
type Client struct {
	http *resty.Client
}

// APIError represents a non-2xx answer from the AI service.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("ai service: http %d: %s", e.Status, e.Message)
}

var (
	// ErrEmptyReply is returned when the service answered without any text.
	ErrEmptyReply = errors.New("ai service returned an empty reply")
	// ErrMalformedReply is the message of an *APIError for a 2xx body that
	// is not the expected JSON.
	ErrMalformedReply = errors.New("ai service returned a malformed reply")
)

// NewClient constructs an AI service client. No retries are configured.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	cli := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")
	return &Client{http: cli}
}

type chatResponse struct {
	ChatbotResponse    string `json:"chatbot_response"`
	AudioURL           string `json:"audio_url"`
	TranslatedResponse string `json:"translated_response"`
}

// Chat forwards a question to POST /api/chat. The query and language are
// sent both as form fields and as query parameters, which the service
// accepts interchangeably.
func (c *Client) Chat(ctx context.Context, text string, lang domain.Language) (domain.ChatReply, error) {
	params := map[string]string{"query": text, "language": string(lang)}
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(params).
		SetFormData(params).
		Post("/api/chat")
	if err != nil {
		return domain.ChatReply{}, fmt.Errorf("ai chat request: %w", err)
	}
	if err := mapHTTPError(resp); err != nil {
		return domain.ChatReply{}, err
	}
	var out chatResponse
	if err := decodeBody(resp, &out); err != nil {
		return domain.ChatReply{}, err
	}
	reply := domain.ChatReply{
		Text:           strings.TrimSpace(out.ChatbotResponse),
		AudioURL:       strings.TrimSpace(out.AudioURL),
		TranslatedText: strings.TrimSpace(out.TranslatedResponse),
	}
	if reply.Text == "" {
		reply.Text = reply.TranslatedText
	}
	if reply.Text == "" {
		return domain.ChatReply{}, ErrEmptyReply
	}
	return reply, nil
}

// Document is a single file forwarded for summarization.
type Document struct {
	FileName    string
	ContentType string
	Body        io.Reader
}

// ProcessDocument forwards a document to POST /api/process-document as a
// multipart upload.
func (c *Client) ProcessDocument(ctx context.Context, doc Document, lang domain.Language) (domain.DocumentSummary, error) {
	resp, err := c.http.R().
		SetContext(ctx).
		SetMultipartField("file", doc.FileName, doc.ContentType, doc.Body).
		SetMultipartFormData(map[string]string{"language": string(lang)}).
		Post("/api/process-document")
	if err != nil {
		return domain.DocumentSummary{}, fmt.Errorf("ai document request: %w", err)
	}
	if err := mapHTTPError(resp); err != nil {
		return domain.DocumentSummary{}, err
	}
	var out domain.DocumentSummary
	if err := decodeBody(resp, &out); err != nil {
		return domain.DocumentSummary{}, err
	}
	return out, nil
}

// decodeBody parses a 2xx reply as JSON whatever its Content-Type. A body
// that does not decode is reported as an *APIError.
func decodeBody(resp *resty.Response, dst any) error {
	if err := json.Unmarshal(resp.Body(), dst); err != nil {
		return &APIError{Status: resp.StatusCode(), Message: ErrMalformedReply.Error()}
	}
	return nil
}

func mapHTTPError(resp *resty.Response) error {
	if resp.StatusCode() >= http.StatusOK && resp.StatusCode() < http.StatusMultipleChoices {
		return nil
	}
	msg := detailMessage(resp.Body())
	if msg == "" {
		msg = http.StatusText(resp.StatusCode())
	}
	return &APIError{Status: resp.StatusCode(), Message: msg}
}
