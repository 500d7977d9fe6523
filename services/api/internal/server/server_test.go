package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"legalmitra/pkg/domain"
	"legalmitra/pkg/storage"
	"legalmitra/pkg/store"
	"legalmitra/services/api/internal/aiclient"
	"legalmitra/services/api/internal/app"
	"legalmitra/services/api/internal/relay"
)

type testServer struct {
	url     string
	objects *storage.MemoryStore
	tokens  *store.JWTSessionStore
}

// fakeAIService answers like the AI document service.
func fakeAIService(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/api/chat":
			q := r.FormValue("query")
			lang := r.FormValue("language")
			_ = json.NewEncoder(w).Encode(map[string]string{
				"chatbot_response": "Answer: " + q,
				"audio_url":        "https://audio.test/" + lang + ".mp3",
			})
		case "/api/process-document":
			file, header, err := r.FormFile("file")
			if err != nil {
				w.WriteHeader(http.StatusBadRequest)
				_ = json.NewEncoder(w).Encode(map[string]string{"detail": "No file"})
				return
			}
			defer file.Close()
			if strings.Contains(header.Filename, "corrupt") {
				w.WriteHeader(http.StatusInternalServerError)
				_ = json.NewEncoder(w).Encode(map[string]string{"detail": "Could not extract text from document"})
				return
			}
			data, _ := io.ReadAll(file)
			_ = json.NewEncoder(w).Encode(map[string]any{
				"summary":      fmt.Sprintf("%s summary of %d bytes", r.FormValue("language"), len(data)),
				"total_chunks": 1,
			})
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestApp(t *testing.T) (*app.App, *storage.MemoryStore, *store.JWTSessionStore) {
	t.Helper()
	ai := fakeAIService(t)
	objects := storage.NewMemoryStore("https://objects.test")
	tokens, err := store.NewJWTSessionStore("server-test-secret", 0, store.JWTOptions{})
	if err != nil {
		t.Fatalf("new session store: %v", err)
	}
	a, err := app.New(app.Config{
		Store:    store.NewMemoryStore(),
		Sessions: tokens,
		Relay:    relay.New(objects, 0),
		AI:       aiclient.NewClient(ai.URL, 5*time.Second),
		MaxFiles: 2,
	})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	return a, objects, tokens
}

func newTestServer(t *testing.T, mutate func(*Config)) *testServer {
	t.Helper()
	a, objects, tokens := newTestApp(t)
	redis := miniredis.RunT(t)
	cfg := Config{
		App:                      a,
		RedisAddr:                redis.Addr(),
		SignupRateLimitPerMinute: 100,
		LoginRateLimitPerMinute:  100,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	s, err := New(cfg)
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	srv := httptest.NewServer(s.Router())
	t.Cleanup(srv.Close)
	return &testServer{url: srv.URL, objects: objects, tokens: tokens}
}

func doJSON(t *testing.T, method, url, token string, body any, out any) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s %s response: %v", method, url, err)
		}
	}
	return resp
}

type formFile struct {
	field, name, contentType, body string
}

func multipartBody(t *testing.T, fields map[string]string, files []formFile) (*bytes.Buffer, string) {
	t.Helper()
	buf := &bytes.Buffer{}
	mw := multipart.NewWriter(buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatalf("write field: %v", err)
		}
	}
	for _, f := range files {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, f.field, f.name))
		if f.contentType != "" {
			h.Set("Content-Type", f.contentType)
		}
		part, err := mw.CreatePart(h)
		if err != nil {
			t.Fatalf("create part: %v", err)
		}
		_, _ = part.Write([]byte(f.body))
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart: %v", err)
	}
	return buf, mw.FormDataContentType()
}

func postMultipart(t *testing.T, url string, fields map[string]string, files []formFile, out any) *http.Response {
	t.Helper()
	body, contentType := multipartBody(t, fields, files)
	resp, err := http.Post(url, contentType, body)
	if err != nil {
		t.Fatalf("post multipart: %v", err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode response: %v", err)
		}
	}
	return resp
}

func TestHealthz(t *testing.T) {
	ts := newTestServer(t, nil)
	var out map[string]string
	resp := doJSON(t, http.MethodGet, ts.url+"/healthz", "", nil, &out)
	if resp.StatusCode != http.StatusOK || out["status"] != "ok" {
		t.Fatalf("unexpected health response %d %v", resp.StatusCode, out)
	}
	if resp.Header.Get("X-Request-Id") == "" {
		t.Fatalf("expected request id header")
	}
}

func TestUnknownRouteReturnsJSONError(t *testing.T) {
	ts := newTestServer(t, nil)
	var out errorResponse
	resp := doJSON(t, http.MethodGet, ts.url+"/nope", "", nil, &out)
	if resp.StatusCode != http.StatusNotFound || out.Code != "NOT_FOUND" {
		t.Fatalf("unexpected response %d %+v", resp.StatusCode, out)
	}
}

func TestChatCreatesNotebookAndStoresReply(t *testing.T) {
	ts := newTestServer(t, nil)
	var nb notebookResponse
	resp := doJSON(t, http.MethodPost, ts.url+"/api/chat/u1", "", map[string]any{
		"messages": []map[string]string{{"sender": "user", "message": "What is a lease?"}},
		"language": "hi",
	}, &nb)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if nb.NotebookID == "" {
		t.Fatalf("expected generated notebook id")
	}
	if len(nb.Messages) != 2 {
		t.Fatalf("expected user and bot messages, got %d", len(nb.Messages))
	}
	user, bot := nb.Messages[0], nb.Messages[1]
	if user.Sender != domain.SenderUser || user.Language != domain.LanguageHindi || user.Text != "What is a lease?" {
		t.Fatalf("unexpected user message %+v", user)
	}
	if bot.Sender != domain.SenderBot || bot.Text != "Answer: What is a lease?" {
		t.Fatalf("unexpected bot message %+v", bot)
	}
	if bot.AudioURL != "https://audio.test/hi.mp3" {
		t.Fatalf("audio url = %q", bot.AudioURL)
	}

	var fetched notebookResponse
	resp = doJSON(t, http.MethodGet, ts.url+"/api/chat/u1/"+nb.NotebookID, "", nil, &fetched)
	if resp.StatusCode != http.StatusOK || len(fetched.Messages) != 2 {
		t.Fatalf("fetch notebook: status %d, %d messages", resp.StatusCode, len(fetched.Messages))
	}

	var missing errorResponse
	resp = doJSON(t, http.MethodGet, ts.url+"/api/chat/u2/"+nb.NotebookID, "", nil, &missing)
	if resp.StatusCode != http.StatusNotFound || missing.Error != "No chat found" {
		t.Fatalf("other user should not see notebook: %d %+v", resp.StatusCode, missing)
	}
}

func TestChatAppendsToExistingNotebook(t *testing.T) {
	ts := newTestServer(t, nil)
	url := ts.url + "/api/chat/u1"
	var first, second notebookResponse
	doJSON(t, http.MethodPost, url, "", map[string]any{
		"notebookId": "case-42",
		"messages":   []map[string]string{{"message": "first"}},
	}, &first)
	doJSON(t, http.MethodPost, url, "", map[string]any{
		"notebookId": "case-42",
		"messages":   []map[string]string{{"message": "second"}},
	}, &second)
	if second.NotebookID != "case-42" || len(second.Messages) != 4 {
		t.Fatalf("expected 4 messages in case-42, got %+v", second)
	}
	if second.Messages[2].Text != "second" {
		t.Fatalf("expected order preserved, got %q", second.Messages[2].Text)
	}
}

func TestChatRejectsUnsupportedLanguage(t *testing.T) {
	ts := newTestServer(t, nil)
	var out errorResponse
	resp := doJSON(t, http.MethodPost, ts.url+"/api/chat/u1", "", map[string]any{
		"messages": []map[string]string{{"message": "bonjour"}},
		"language": "fr",
	}, &out)
	if resp.StatusCode != http.StatusBadRequest || out.Code != "BAD_REQUEST" {
		t.Fatalf("expected 400, got %d %+v", resp.StatusCode, out)
	}
	var list []domain.NotebookSummary
	doJSON(t, http.MethodGet, ts.url+"/api/chat/u1", "", nil, &list)
	if len(list) != 0 {
		t.Fatalf("rejected request must not create a notebook, got %d", len(list))
	}
}

func TestChatMultipartWithFilesAndStringMessages(t *testing.T) {
	ts := newTestServer(t, nil)
	var nb notebookResponse
	resp := postMultipart(t, ts.url+"/api/chat/u1", map[string]string{
		"messages": `[{"sender":"user","message":"Summarize this"}]`,
		"language": "ta",
	}, []formFile{
		{field: "files", name: "lease.pdf", contentType: "application/pdf", body: "%PDF-1.4"},
		{field: "files", name: "photo.png", contentType: "image/png", body: "png"},
	}, &nb)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if len(nb.Messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(nb.Messages))
	}
	files := nb.Messages[0].Files
	if len(files) != 2 {
		t.Fatalf("expected attachments on the user message, got %+v", files)
	}
	for _, f := range files {
		if !strings.HasPrefix(f.FileURL, "https://objects.test/notebooks/u1/") {
			t.Fatalf("unexpected file url %q", f.FileURL)
		}
	}
	if files[0].FileName != "lease.pdf" || files[0].FileType != "application/pdf" {
		t.Fatalf("unexpected attachment %+v", files[0])
	}
	if got := len(ts.objects.Keys()); got != 2 {
		t.Fatalf("expected 2 stored objects, got %d", got)
	}
	if len(nb.Messages[1].Files) != 0 {
		t.Fatalf("bot message must not carry files")
	}
}

func TestChatFilesOnlyCreatesSyntheticUserMessage(t *testing.T) {
	ts := newTestServer(t, nil)
	var nb notebookResponse
	postMultipart(t, ts.url+"/api/chat/u1", nil, []formFile{
		{field: "files", name: "deed.pdf", contentType: "application/pdf", body: "%PDF"},
	}, &nb)
	if len(nb.Messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(nb.Messages))
	}
	if nb.Messages[0].Text != "" || len(nb.Messages[0].Files) != 1 {
		t.Fatalf("unexpected synthetic message %+v", nb.Messages[0])
	}
	if nb.Messages[1].Text != app.FallbackReply {
		t.Fatalf("expected fallback reply, got %q", nb.Messages[1].Text)
	}
}

func TestChatRejectsInvalidMessagesJSON(t *testing.T) {
	ts := newTestServer(t, nil)
	var out errorResponse
	resp := postMultipart(t, ts.url+"/api/chat/u1", map[string]string{"messages": "[{oops"}, nil, &out)
	if resp.StatusCode != http.StatusBadRequest || out.Error != "Invalid messages JSON" {
		t.Fatalf("expected invalid messages error, got %d %+v", resp.StatusCode, out)
	}
}

func TestChatRejectsTooManyFiles(t *testing.T) {
	ts := newTestServer(t, nil)
	files := []formFile{
		{field: "files", name: "a.pdf", contentType: "application/pdf", body: "a"},
		{field: "files", name: "b.pdf", contentType: "application/pdf", body: "b"},
		{field: "files", name: "c.pdf", contentType: "application/pdf", body: "c"},
	}
	resp := postMultipart(t, ts.url+"/api/chat/u1", nil, files, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
	if got := len(ts.objects.Keys()); got != 0 {
		t.Fatalf("expected nothing uploaded, got %d objects", got)
	}
}

func TestChatRejectsOversizedBody(t *testing.T) {
	ts := newTestServer(t, func(cfg *Config) { cfg.MaxUploadBytes = 1024 })
	var out errorResponse
	resp := postMultipart(t, ts.url+"/api/chat/u1", nil, []formFile{
		{field: "files", name: "big.pdf", contentType: "application/pdf", body: strings.Repeat("x", 4096)},
	}, &out)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d %+v", resp.StatusCode, out)
	}
}

func TestListNotebooksNewestFirst(t *testing.T) {
	ts := newTestServer(t, nil)
	url := ts.url + "/api/chat/u1"
	post := func(id, text string) {
		var nb notebookResponse
		resp := doJSON(t, http.MethodPost, url, "", map[string]any{
			"notebookId": id,
			"messages":   []map[string]string{{"message": text}},
		}, &nb)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("post %s: %d", id, resp.StatusCode)
		}
	}
	post("older", "Tenant rights in Punjab for commercial leases")
	post("newer", "Hi")
	post("older", "Follow up")

	var list []domain.NotebookSummary
	resp := doJSON(t, http.MethodGet, url, "", nil, &list)
	if resp.StatusCode != http.StatusOK || len(list) != 2 {
		t.Fatalf("expected 2 summaries, got %d %+v", resp.StatusCode, list)
	}
	if list[0].NotebookID != "older" || list[1].NotebookID != "newer" {
		t.Fatalf("unexpected order %s, %s", list[0].NotebookID, list[1].NotebookID)
	}
	if list[0].Title != "Tenant rights in Punjab for co" {
		t.Fatalf("title = %q", list[0].Title)
	}
	if list[0].MessageCount != 4 || list[0].Preview != "Answer: Follow up" {
		t.Fatalf("unexpected summary %+v", list[0])
	}

	var empty []domain.NotebookSummary
	doJSON(t, http.MethodGet, ts.url+"/api/chat/nobody", "", nil, &empty)
	if empty == nil || len(empty) != 0 {
		t.Fatalf("expected empty JSON array, got %v", empty)
	}
}

func TestConcurrentChatRequestsKeepEveryMessage(t *testing.T) {
	ts := newTestServer(t, nil)
	const workers = 10
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			data, _ := json.Marshal(map[string]any{
				"notebookId": "shared",
				"messages":   []map[string]string{{"message": fmt.Sprintf("q%d", i)}},
			})
			resp, err := http.Post(ts.url+"/api/chat/u1", "application/json", bytes.NewReader(data))
			if err != nil {
				errs <- err
				return
			}
			resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				errs <- fmt.Errorf("status %d", resp.StatusCode)
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("concurrent chat: %v", err)
	}
	var nb notebookResponse
	doJSON(t, http.MethodGet, ts.url+"/api/chat/u1/shared", "", nil, &nb)
	if len(nb.Messages) != 2*workers {
		t.Fatalf("expected %d messages, got %d", 2*workers, len(nb.Messages))
	}
}

func TestRequireAuthChecksTokenSubject(t *testing.T) {
	ts := newTestServer(t, func(cfg *Config) { cfg.RequireAuth = true })
	var signup authResponse
	resp := doJSON(t, http.MethodPost, ts.url+"/auth/signup", "", map[string]string{
		"email": "owner@example.com", "password": "pw", "name": "Owner",
	}, &signup)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("signup: %d", resp.StatusCode)
	}
	owner, token := signup.User.ID, signup.Token

	resp = doJSON(t, http.MethodGet, ts.url+"/api/chat/"+owner, "", nil, nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("missing token: expected 401, got %d", resp.StatusCode)
	}
	resp = doJSON(t, http.MethodGet, ts.url+"/api/chat/"+owner, "not-a-jwt", nil, nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("bad token: expected 401, got %d", resp.StatusCode)
	}
	resp = doJSON(t, http.MethodGet, ts.url+"/api/chat/u2", token, nil, nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("foreign user: expected 403, got %d", resp.StatusCode)
	}
	resp = doJSON(t, http.MethodGet, ts.url+"/api/chat/"+owner, token, nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("owner: expected 200, got %d", resp.StatusCode)
	}

	ghost, err := ts.tokens.NewSession("ghost")
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	resp = doJSON(t, http.MethodGet, ts.url+"/api/chat/ghost", ghost, nil, nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("token for a user that is not stored: expected 401, got %d", resp.StatusCode)
	}
}

type downStore struct {
	*store.MemoryStore
}

func (downStore) Ping(context.Context) error { return errors.New("database unreachable") }

func TestHealthzReportsDatabaseOutage(t *testing.T) {
	tokens, err := store.NewJWTSessionStore("server-test-secret", 0, store.JWTOptions{})
	if err != nil {
		t.Fatalf("new session store: %v", err)
	}
	a, err := app.New(app.Config{
		Store:    downStore{MemoryStore: store.NewMemoryStore()},
		Sessions: tokens,
		Relay:    relay.New(storage.NewMemoryStore("https://objects.test"), 0),
		AI:       aiclient.NewClient(fakeAIService(t).URL, time.Second),
	})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	s, err := New(Config{App: a, RedisAddr: miniredis.RunT(t).Addr()})
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	srv := httptest.NewServer(s.Router())
	t.Cleanup(srv.Close)

	var out map[string]string
	resp := doJSON(t, http.MethodGet, srv.URL+"/healthz", "", nil, &out)
	if resp.StatusCode != http.StatusServiceUnavailable || out["status"] != "unavailable" {
		t.Fatalf("expected 503, got %d %v", resp.StatusCode, out)
	}
}

func TestProcessDocument(t *testing.T) {
	ts := newTestServer(t, nil)
	url := ts.url + "/api/process-document"

	var summary domain.DocumentSummary
	resp := postMultipart(t, url, map[string]string{"language": "pu"}, []formFile{
		{field: "file", name: "deed.pdf", contentType: "application/pdf", body: "%PDF-1.4 data"},
	}, &summary)
	if resp.StatusCode != http.StatusOK || summary.Summary != "pu summary of 13 bytes" {
		t.Fatalf("unexpected result %d %+v", resp.StatusCode, summary)
	}

	var sniffed domain.DocumentSummary
	resp = postMultipart(t, url, nil, []formFile{
		{field: "file", name: "scan", body: "%PDF-1.7 sniffed"},
	}, &sniffed)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("sniffed pdf: expected 200, got %d", resp.StatusCode)
	}

	var out errorResponse
	resp = postMultipart(t, url, nil, []formFile{
		{field: "file", name: "notes.txt", contentType: "text/plain", body: "hello"},
	}, &out)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("text file: expected 400, got %d", resp.StatusCode)
	}

	resp = postMultipart(t, url, map[string]string{"language": "en"}, nil, &out)
	if resp.StatusCode != http.StatusBadRequest || out.Error != "No file uploaded" {
		t.Fatalf("missing file: expected 400, got %d %+v", resp.StatusCode, out)
	}

	resp = postMultipart(t, url, nil, []formFile{
		{field: "file", name: "corrupt.pdf", contentType: "application/pdf", body: "%PDF"},
	}, &out)
	if resp.StatusCode != http.StatusBadGateway || out.Error != "Could not extract text from document" {
		t.Fatalf("ai failure: expected 502, got %d %+v", resp.StatusCode, out)
	}
}
