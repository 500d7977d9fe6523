package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"legalmitra/pkg/auth"
	"legalmitra/pkg/domain"
	"legalmitra/pkg/storage"
	"legalmitra/pkg/store"
	"legalmitra/services/api/internal/aiclient"
	"legalmitra/services/api/internal/relay"
)

const (
	defaultMaxFiles = 5
	pingTimeout     = 2 * time.Second
)

// FileRelay moves uploaded files into object storage.
type FileRelay interface {
	Upload(ctx context.Context, userID string, files []relay.File) ([]domain.FileAttachment, error)
	Discard(ctx context.Context, attachments []domain.FileAttachment)
}

// AIGateway is the remote AI document service.
type AIGateway interface {
	Chat(ctx context.Context, text string, lang domain.Language) (domain.ChatReply, error)
	ProcessDocument(ctx context.Context, doc aiclient.Document, lang domain.Language) (domain.DocumentSummary, error)
}

// Config holds runtime configuration for the core application. Dependencies
// left nil are built from the connection settings.
type Config struct {
	DatabaseURL    string
	JWTSecret      string
	JWTIssuer      string
	JWTAudience    string
	SessionTTL     time.Duration
	AIBaseURL      string
	AITimeout      time.Duration
	Minio          storage.MinioConfig
	MaxFiles       int
	AvatarTemplate string

	Store    store.Store
	Sessions store.SessionStore
	Objects  storage.ObjectStore
	Relay    FileRelay
	AI       AIGateway
}

// App wires storage, token issuing, file relay and the AI gateway.
type App struct {
	store          store.Store
	sessions       store.SessionStore
	relay          FileRelay
	ai             AIGateway
	maxFiles       int
	avatarTemplate string
}

// New constructs the application.
func New(cfg Config) (*App, error) {
	dataStore := cfg.Store
	if dataStore == nil {
		if strings.TrimSpace(cfg.DatabaseURL) == "" {
			return nil, fmt.Errorf("database URL required")
		}
		var err error
		dataStore, err = store.NewGormStore(cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("init postgres store: %w", err)
		}
	}

	sessions := cfg.Sessions
	if sessions == nil {
		jwtStore, err := store.NewJWTSessionStore(cfg.JWTSecret, cfg.SessionTTL, store.JWTOptions{
			Issuer:   cfg.JWTIssuer,
			Audience: cfg.JWTAudience,
		})
		if err != nil {
			return nil, fmt.Errorf("init jwt session store: %w", err)
		}
		sessions = jwtStore
	}

	fileRelay := cfg.Relay
	if fileRelay == nil {
		objects := cfg.Objects
		if objects == nil {
			minioStore, err := storage.NewMinioStore(cfg.Minio)
			if err != nil {
				return nil, fmt.Errorf("init object storage: %w", err)
			}
			objects = minioStore
		}
		fileRelay = relay.New(objects, 0)
	}

	ai := cfg.AI
	if ai == nil {
		if strings.TrimSpace(cfg.AIBaseURL) == "" {
			return nil, fmt.Errorf("AI base URL required")
		}
		ai = aiclient.NewClient(cfg.AIBaseURL, cfg.AITimeout)
	}

	maxFiles := cfg.MaxFiles
	if maxFiles <= 0 {
		maxFiles = defaultMaxFiles
	}
	avatarTemplate := cfg.AvatarTemplate
	if avatarTemplate == "" {
		avatarTemplate = auth.DefaultAvatarTemplate
	}
	return &App{
		store:          dataStore,
		sessions:       sessions,
		relay:          fileRelay,
		ai:             ai,
		maxFiles:       maxFiles,
		avatarTemplate: avatarTemplate,
	}, nil
}

// MaxFiles is the per-request attachment limit.
func (a *App) MaxFiles() int {
	return a.maxFiles
}

// Ping checks the store's backing database when it has one.
func (a *App) Ping(ctx context.Context) error {
	pinger, ok := a.store.(interface{ Ping(context.Context) error })
	if !ok {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	return pinger.Ping(ctx)
}

// Close releases resources held by the store, if any.
func (a *App) Close() error {
	if closer, ok := a.store.(interface{ Close() error }); ok {
		return closer.Close()
	}
	return nil
}
