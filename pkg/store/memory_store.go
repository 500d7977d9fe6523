package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"legalmitra/pkg/domain"
)

type notebookKey struct {
	userID     string
	notebookID string
}

type memoryNotebook struct {
	mu sync.Mutex
	nb domain.Notebook
}

// MemoryStore keeps users and notebooks in-process. It backs tests and
// local runs without Postgres.
type MemoryStore struct {
	mu        sync.RWMutex
	users     map[string]domain.User // key: user ID
	email     map[string]string      // email -> user ID
	notebooks map[notebookKey]*memoryNotebook
	owned     map[string][]notebookKey // user ID -> notebooks
}

// NewMemoryStore initializes an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:     make(map[string]domain.User),
		email:     make(map[string]string),
		notebooks: make(map[notebookKey]*memoryNotebook),
		owned:     make(map[string][]notebookKey),
	}
}

// CreateUser inserts a user unless the email is already registered.
func (m *MemoryStore) CreateUser(_ context.Context, u domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.email[u.Email]; exists {
		return ErrEmailTaken
	}
	m.users[u.ID] = u
	m.email[u.Email] = u.ID
	return nil
}

// HasUserEmail checks if email exists.
func (m *MemoryStore) HasUserEmail(_ context.Context, email string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.email[email]
	return ok, nil
}

// GetUserByEmail looks up a user by email.
func (m *MemoryStore) GetUserByEmail(_ context.Context, email string) (domain.User, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.email[email]
	if !ok {
		return domain.User{}, false, nil
	}
	u, ok := m.users[id]
	return u, ok, nil
}

// GetUserByID returns a user by ID.
func (m *MemoryStore) GetUserByID(_ context.Context, id string) (domain.User, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	return u, ok, nil
}

// AppendMessages finds or creates the notebook and appends msgs while holding
// that notebook's lock.
func (m *MemoryStore) AppendMessages(_ context.Context, userID, notebookID string, msgs []domain.Message) (domain.Notebook, error) {
	if notebookID == "" {
		notebookID = NewID()
	}
	entry := m.notebookFor(userID, notebookID)

	entry.mu.Lock()
	defer entry.mu.Unlock()
	now := time.Now().UTC()
	for _, msg := range msgs {
		if msg.CreatedAt.IsZero() {
			msg.CreatedAt = now
		}
		msg.Files = copyFiles(msg.Files)
		entry.nb.Messages = append(entry.nb.Messages, msg)
	}
	if len(msgs) > 0 {
		entry.nb.UpdatedAt = now
	}
	return cloneNotebook(entry.nb), nil
}

// GetNotebook returns a copy of the notebook owned by userID.
func (m *MemoryStore) GetNotebook(_ context.Context, userID, notebookID string) (domain.Notebook, error) {
	m.mu.RLock()
	entry, ok := m.notebooks[notebookKey{userID: userID, notebookID: notebookID}]
	m.mu.RUnlock()
	if !ok {
		return domain.Notebook{}, ErrNotFound
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	return cloneNotebook(entry.nb), nil
}

// ListNotebookSummaries returns summaries newest-updated first.
func (m *MemoryStore) ListNotebookSummaries(_ context.Context, userID string) ([]domain.NotebookSummary, error) {
	m.mu.RLock()
	keys := append([]notebookKey(nil), m.owned[userID]...)
	entries := make([]*memoryNotebook, 0, len(keys))
	for _, key := range keys {
		entries = append(entries, m.notebooks[key])
	}
	m.mu.RUnlock()

	res := make([]domain.NotebookSummary, 0, len(entries))
	for _, entry := range entries {
		entry.mu.Lock()
		res = append(res, entry.nb.Summarize())
		entry.mu.Unlock()
	}
	// owned is in creation order; the stable sort keeps newer notebooks first on ties.
	for i, j := 0, len(res)-1; i < j; i, j = i+1, j-1 {
		res[i], res[j] = res[j], res[i]
	}
	sort.SliceStable(res, func(i, j int) bool {
		return res[i].UpdatedAt.After(res[j].UpdatedAt)
	})
	return res, nil
}

func (m *MemoryStore) notebookFor(userID, notebookID string) *memoryNotebook {
	key := notebookKey{userID: userID, notebookID: notebookID}
	m.mu.Lock()
	defer m.mu.Unlock()
	if entry, ok := m.notebooks[key]; ok {
		return entry
	}
	now := time.Now().UTC()
	entry := &memoryNotebook{nb: domain.Notebook{
		ID:        notebookID,
		UserID:    userID,
		Messages:  []domain.Message{},
		CreatedAt: now,
		UpdatedAt: now,
	}}
	m.notebooks[key] = entry
	m.owned[userID] = append(m.owned[userID], key)
	return entry
}

func cloneNotebook(nb domain.Notebook) domain.Notebook {
	msgs := make([]domain.Message, len(nb.Messages))
	for i, msg := range nb.Messages {
		msg.Files = copyFiles(msg.Files)
		msgs[i] = msg
	}
	nb.Messages = msgs
	return nb
}

func copyFiles(files []domain.FileAttachment) []domain.FileAttachment {
	return append([]domain.FileAttachment{}, files...)
}
