package server

import (
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"legalmitra/pkg/domain"
	"legalmitra/services/api/internal/app"
	"legalmitra/services/api/internal/relay"
)

// Multipart field names accepted for chat attachments.
var fileFields = []string{"files", "files[]"}

type chatBody struct {
	NotebookID string          `json:"notebookId"`
	Messages   app.MessageList `json:"messages"`
	Language   string          `json:"language"`
}

type notebookResponse struct {
	NotebookID string           `json:"notebookId"`
	Messages   []domain.Message `json:"messages"`
}

func toNotebookResponse(nb domain.Notebook) notebookResponse {
	msgs := nb.Messages
	if msgs == nil {
		msgs = []domain.Message{}
	}
	return notebookResponse{NotebookID: nb.ID, Messages: msgs}
}

func (s *Server) handlePostChat(w http.ResponseWriter, r *http.Request) {
	req, cleanup, err := s.parseChatRequest(w, r)
	defer cleanup()
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	nb, err := s.app.PostChat(r.Context(), req)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toNotebookResponse(nb))
}

func (s *Server) handleGetNotebook(w http.ResponseWriter, r *http.Request) {
	nb, err := s.app.GetNotebook(r.Context(), chi.URLParam(r, "userId"), chi.URLParam(r, "notebookId"))
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toNotebookResponse(nb))
}

func (s *Server) handleListNotebooks(w http.ResponseWriter, r *http.Request) {
	summaries, err := s.app.ListNotebooks(r.Context(), chi.URLParam(r, "userId"))
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	if summaries == nil {
		summaries = []domain.NotebookSummary{}
	}
	writeJSON(w, http.StatusOK, summaries)
}

// parseChatRequest accepts multipart/form-data (with files), a url encoded
// form, or a JSON body. The returned cleanup removes multipart temp files.
func (s *Server) parseChatRequest(w http.ResponseWriter, r *http.Request) (app.ChatRequest, func(), error) {
	noop := func() {}
	req := app.ChatRequest{UserID: chi.URLParam(r, "userId")}
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

	switch mediaType {
	case "multipart/form-data":
		r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
		if err := r.ParseMultipartForm(multipartMemoryBytes); err != nil {
			return req, noop, bodyError(err)
		}
		cleanup := func() { _ = r.MultipartForm.RemoveAll() }
		if err := s.fillFromForm(&req, r); err != nil {
			return req, cleanup, err
		}
		var headers []*multipart.FileHeader
		for _, field := range fileFields {
			headers = append(headers, r.MultipartForm.File[field]...)
		}
		if len(headers) > s.app.MaxFiles() {
			return req, cleanup, app.ErrTooManyFiles
		}
		for _, fh := range headers {
			req.Files = append(req.Files, fileFromHeader(fh))
		}
		return req, cleanup, nil
	case "application/x-www-form-urlencoded":
		r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodyBytes)
		if err := r.ParseForm(); err != nil {
			return req, noop, bodyError(err)
		}
		return req, noop, s.fillFromForm(&req, r)
	default:
		var body chatBody
		if err := decodeJSON(w, r, &body); err != nil {
			if errors.Is(err, io.EOF) {
				return req, noop, nil
			}
			return req, noop, err
		}
		req.NotebookID = body.NotebookID
		req.Messages = body.Messages
		req.Language = body.Language
		return req, noop, nil
	}
}

func (s *Server) fillFromForm(req *app.ChatRequest, r *http.Request) error {
	msgs, err := app.ParseMessageList(r.FormValue("messages"))
	if err != nil {
		return err
	}
	req.Messages = msgs
	req.NotebookID = r.FormValue("notebookId")
	req.Language = r.FormValue("language")
	return nil
}

func fileFromHeader(fh *multipart.FileHeader) relay.File {
	contentType := fh.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return relay.File{
		Name:        fh.Filename,
		ContentType: contentType,
		Size:        fh.Size,
		Open: func() (io.ReadCloser, error) {
			return fh.Open()
		},
	}
}

// bodyError classifies a failure to read the request body.
func bodyError(err error) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return &app.Error{Kind: app.KindBadRequest, Message: "Request body too large", Err: err}
	}
	if strings.Contains(err.Error(), "multipart") {
		return &app.Error{Kind: app.KindBadRequest, Message: "Malformed multipart body", Err: err}
	}
	return &app.Error{Kind: app.KindBadRequest, Message: invalidBodyMessage, Err: err}
}
