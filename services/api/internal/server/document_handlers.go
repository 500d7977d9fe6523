package server

import (
	"errors"
	"io"
	"net/http"

	"legalmitra/services/api/internal/aiclient"
	"legalmitra/services/api/internal/app"
)

const sniffLen = 512

func (s *Server) handleProcessDocument(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	if err := r.ParseMultipartForm(multipartMemoryBytes); err != nil {
		if errors.Is(err, http.ErrNotMultipart) {
			writeAppError(w, r, app.ErrNoFileUploaded)
			return
		}
		writeAppError(w, r, bodyError(err))
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile("file")
	if err != nil {
		writeAppError(w, r, app.ErrNoFileUploaded)
		return
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	if contentType == "" || contentType == "application/octet-stream" {
		contentType, err = sniffContentType(file)
		if err != nil {
			writeAppError(w, r, bodyError(err))
			return
		}
	}

	summary, err := s.app.ProcessDocument(r.Context(), app.DocumentRequest{
		Document: &aiclient.Document{
			FileName:    header.Filename,
			ContentType: contentType,
			Body:        file,
		},
		Language: r.FormValue("language"),
	})
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// sniffContentType detects the type from the leading bytes and rewinds.
func sniffContentType(rs io.ReadSeeker) (string, error) {
	buf := make([]byte, sniffLen)
	n, err := io.ReadFull(rs, buf)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return "", err
	}
	if _, err := rs.Seek(0, io.SeekStart); err != nil {
		return "", err
	}
	return http.DetectContentType(buf[:n]), nil
}
