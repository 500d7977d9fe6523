package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
	"legalmitra/pkg/domain"
)

const migrateLockID int64 = 51472027

// GormStore implements Store using GORM + Postgres.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens the DB and runs auto-migrations.
func NewGormStore(dsn string) (*GormStore, error) {
	gormLog := gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormLog, TranslateError: true})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := withMigrationLock(db, func(tx *gorm.DB) error {
		if err := tx.AutoMigrate(&UserModel{}, &NotebookModel{}, &MessageModel{}); err != nil {
			return fmt.Errorf("auto migrate: %w", err)
		}
		if err := tx.Exec(`
			DO $$
			BEGIN
				IF NOT EXISTS (
					SELECT 1 FROM information_schema.table_constraints
					WHERE table_schema = 'public'
					AND table_name = 'message_models'
					AND constraint_name = 'message_models_notebook_ref_fkey'
				) THEN
					ALTER TABLE message_models
					ADD CONSTRAINT message_models_notebook_ref_fkey
					FOREIGN KEY (notebook_ref) REFERENCES notebook_models(id) ON DELETE CASCADE;
				END IF;
			END $$;
		`).Error; err != nil {
			return fmt.Errorf("ensure notebook foreign key: %w", err)
		}
		return nil
	}); err != nil {
		return nil, err
	}
	return &GormStore{db: db}, nil
}

// Close releases the underlying connection pool.
func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Ping checks database connectivity.
func (s *GormStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func withMigrationLock(db *gorm.DB, fn func(*gorm.DB) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("get sql db: %w", err)
	}
	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("open sql conn: %w", err)
	}
	defer conn.Close()
	if err := execAdvisory(ctx, conn, "SELECT pg_advisory_lock($1)", migrateLockID); err != nil {
		return fmt.Errorf("acquire migrate lock: %w", err)
	}
	defer func() {
		_ = execAdvisory(ctx, conn, "SELECT pg_advisory_unlock($1)", migrateLockID)
	}()
	return fn(db)
}

func execAdvisory(ctx context.Context, conn *sql.Conn, query string, lockID int64) error {
	_, err := conn.ExecContext(ctx, query, lockID)
	return err
}

// CreateUser inserts a new user. A duplicate email yields ErrEmailTaken.
func (s *GormStore) CreateUser(ctx context.Context, u domain.User) error {
	model := userToModel(u)
	if err := s.db.WithContext(ctx).Create(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrEmailTaken
		}
		return err
	}
	return nil
}

// HasUserEmail checks if email exists.
func (s *GormStore) HasUserEmail(ctx context.Context, email string) (bool, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&UserModel{}).Where("email = ?", email).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// GetUserByEmail looks up a user by email.
func (s *GormStore) GetUserByEmail(ctx context.Context, email string) (domain.User, bool, error) {
	var model UserModel
	if err := s.db.WithContext(ctx).Where("email = ?", email).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, err
	}
	return userFromModel(model), true, nil
}

// GetUserByID returns a user by ID.
func (s *GormStore) GetUserByID(ctx context.Context, id string) (domain.User, bool, error) {
	var model UserModel
	if err := s.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, err
	}
	return userFromModel(model), true, nil
}

// AppendMessages upserts the notebook header, locks it and appends msgs with
// consecutive sequence numbers in a single transaction.
func (s *GormStore) AppendMessages(ctx context.Context, userID, notebookID string, msgs []domain.Message) (domain.Notebook, error) {
	if notebookID == "" {
		notebookID = NewID()
	}
	var out domain.Notebook
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now().UTC()
		header := NotebookModel{UserID: userID, NotebookID: notebookID, CreatedAt: now, UpdatedAt: now}
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "notebook_id"}},
			DoNothing: true,
		}).Create(&header).Error; err != nil {
			return fmt.Errorf("upsert notebook: %w", err)
		}

		var locked NotebookModel
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("user_id = ? AND notebook_id = ?", userID, notebookID).
			First(&locked).Error; err != nil {
			return fmt.Errorf("lock notebook: %w", err)
		}

		if len(msgs) > 0 {
			rows := make([]MessageModel, 0, len(msgs))
			for i, msg := range msgs {
				row, err := messageToModel(msg)
				if err != nil {
					return err
				}
				row.NotebookRef = locked.ID
				row.Seq = locked.MessageCount + i
				if row.CreatedAt.IsZero() {
					row.CreatedAt = now
				}
				rows = append(rows, row)
			}
			if err := tx.Create(&rows).Error; err != nil {
				return fmt.Errorf("insert messages: %w", err)
			}
			locked.MessageCount += len(rows)
			locked.UpdatedAt = now
			if err := tx.Model(&NotebookModel{}).Where("id = ?", locked.ID).Updates(map[string]any{
				"message_count": locked.MessageCount,
				"updated_at":    locked.UpdatedAt,
			}).Error; err != nil {
				return fmt.Errorf("update notebook: %w", err)
			}
		}

		nb, err := loadNotebook(tx, locked)
		if err != nil {
			return err
		}
		out = nb
		return nil
	})
	if err != nil {
		return domain.Notebook{}, err
	}
	return out, nil
}

// GetNotebook returns the full notebook owned by userID.
func (s *GormStore) GetNotebook(ctx context.Context, userID, notebookID string) (domain.Notebook, error) {
	db := s.db.WithContext(ctx)
	var header NotebookModel
	if err := db.Where("user_id = ? AND notebook_id = ?", userID, notebookID).First(&header).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Notebook{}, ErrNotFound
		}
		return domain.Notebook{}, err
	}
	return loadNotebook(db, header)
}

type summaryRow struct {
	NotebookID   string
	MessageCount int
	UpdatedAt    time.Time
	FirstText    string
	LastText     string
}

// ListNotebookSummaries returns one summary per notebook, most recently
// updated first. Only the first and last message of each notebook are read.
func (s *GormStore) ListNotebookSummaries(ctx context.Context, userID string) ([]domain.NotebookSummary, error) {
	var rows []summaryRow
	if err := s.db.WithContext(ctx).Raw(`
		SELECT n.notebook_id, n.message_count, n.updated_at,
			COALESCE(f.text, '') AS first_text,
			COALESCE(l.text, '') AS last_text
		FROM notebook_models n
		LEFT JOIN message_models f ON f.notebook_ref = n.id AND f.seq = 0
		LEFT JOIN message_models l ON l.notebook_ref = n.id AND l.seq = n.message_count - 1
		WHERE n.user_id = ?
		ORDER BY n.updated_at DESC, n.id DESC
	`, userID).Scan(&rows).Error; err != nil {
		return nil, err
	}
	res := make([]domain.NotebookSummary, 0, len(rows))
	for _, row := range rows {
		res = append(res, domain.NewNotebookSummary(row.NotebookID, row.MessageCount, row.FirstText, row.LastText, row.UpdatedAt))
	}
	return res, nil
}

func loadNotebook(db *gorm.DB, header NotebookModel) (domain.Notebook, error) {
	var rows []MessageModel
	if err := db.Where("notebook_ref = ?", header.ID).Order("seq asc").Find(&rows).Error; err != nil {
		return domain.Notebook{}, fmt.Errorf("load messages: %w", err)
	}
	msgs := make([]domain.Message, 0, len(rows))
	for _, row := range rows {
		msg, err := messageFromModel(row)
		if err != nil {
			return domain.Notebook{}, err
		}
		msgs = append(msgs, msg)
	}
	return domain.Notebook{
		ID:        header.NotebookID,
		UserID:    header.UserID,
		Messages:  msgs,
		CreatedAt: header.CreatedAt,
		UpdatedAt: header.UpdatedAt,
	}, nil
}

func userToModel(u domain.User) UserModel {
	return UserModel{
		ID:           u.ID,
		Email:        u.Email,
		Name:         u.Name,
		AvatarURL:    u.AvatarURL,
		PasswordHash: u.PasswordHash,
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
	}
}

func userFromModel(m UserModel) domain.User {
	return domain.User{
		ID:           m.ID,
		Email:        m.Email,
		Name:         m.Name,
		AvatarURL:    m.AvatarURL,
		PasswordHash: m.PasswordHash,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
}

func messageToModel(msg domain.Message) (MessageModel, error) {
	files := msg.Files
	if files == nil {
		files = []domain.FileAttachment{}
	}
	rawFiles, err := json.Marshal(files)
	if err != nil {
		return MessageModel{}, fmt.Errorf("encode attachments: %w", err)
	}
	return MessageModel{
		Sender:         string(msg.Sender),
		Text:           msg.Text,
		Language:       string(msg.Language),
		Files:          rawFiles,
		AudioURL:       msg.AudioURL,
		TranslatedText: msg.TranslatedText,
		CreatedAt:      msg.CreatedAt,
	}, nil
}

func messageFromModel(m MessageModel) (domain.Message, error) {
	files := []domain.FileAttachment{}
	if len(m.Files) > 0 {
		if err := json.Unmarshal(m.Files, &files); err != nil {
			return domain.Message{}, fmt.Errorf("decode files of message %d: %w", m.Seq, err)
		}
	}
	return domain.Message{
		Sender:         domain.Sender(m.Sender),
		Text:           m.Text,
		Language:       domain.Language(m.Language),
		Files:          files,
		AudioURL:       m.AudioURL,
		TranslatedText: m.TranslatedText,
		CreatedAt:      m.CreatedAt,
	}, nil
}
