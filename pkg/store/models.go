package store

import (
	"time"

	"gorm.io/datatypes"
)

// GORM models used for persistence.
type UserModel struct {
	ID           string `gorm:"primaryKey"`
	Email        string `gorm:"uniqueIndex;not null"`
	Name         string `gorm:"not null"`
	AvatarURL    string
	PasswordHash string    `gorm:"not null"`
	CreatedAt    time.Time `gorm:"not null"`
	UpdatedAt    time.Time
}

// NotebookModel is the header row of a chat thread. MessageCount doubles as
// the next message sequence number and is only changed under a row lock.
type NotebookModel struct {
	ID           uint      `gorm:"primaryKey"`
	UserID       string    `gorm:"not null;uniqueIndex:idx_notebook_owner,priority:1;index:idx_notebook_recent,priority:1"`
	NotebookID   string    `gorm:"not null;uniqueIndex:idx_notebook_owner,priority:2"`
	MessageCount int       `gorm:"not null;default:0"`
	CreatedAt    time.Time `gorm:"not null"`
	UpdatedAt    time.Time `gorm:"not null;index:idx_notebook_recent,priority:2,sort:desc"`
}

type MessageModel struct {
	ID             uint           `gorm:"primaryKey"`
	NotebookRef    uint           `gorm:"not null;uniqueIndex:idx_message_seq,priority:1"`
	Seq            int            `gorm:"not null;uniqueIndex:idx_message_seq,priority:2"`
	Sender         string         `gorm:"not null"`
	Text           string         `gorm:"type:text;not null"`
	Language       string         `gorm:"not null"`
	Files          datatypes.JSON `gorm:"type:jsonb"`
	AudioURL       string
	TranslatedText string    `gorm:"type:text"`
	CreatedAt      time.Time `gorm:"not null"`
}
