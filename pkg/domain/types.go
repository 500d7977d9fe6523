package domain

import (
	"strings"
	"time"
)

// Language is a message language tag understood by the AI service.
type Language string

const (
	LanguageEnglish Language = "en"
	LanguageHindi   Language = "hi"
	LanguagePunjabi Language = "pu"
	LanguageTamil   Language = "ta"
)

// DefaultLanguage is used when a request or message carries no valid tag.
const DefaultLanguage = LanguageEnglish

var supportedLanguages = map[Language]struct{}{
	LanguageEnglish: {},
	LanguageHindi:   {},
	LanguagePunjabi: {},
	LanguageTamil:   {},
}

// ParseLanguage reports whether raw is one of the supported language tags.
func ParseLanguage(raw string) (Language, bool) {
	lang := Language(strings.ToLower(strings.TrimSpace(raw)))
	if _, ok := supportedLanguages[lang]; !ok {
		return "", false
	}
	return lang, true
}

// Sender identifies who authored a message.
type Sender string

const (
	SenderUser Sender = "user"
	SenderBot  Sender = "bot"
)

// ParseSender reports whether raw is a known sender role.
func ParseSender(raw string) (Sender, bool) {
	switch Sender(strings.ToLower(strings.TrimSpace(raw))) {
	case SenderUser:
		return SenderUser, true
	case SenderBot:
		return SenderBot, true
	default:
		return "", false
	}
}

type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	AvatarURL    string    `json:"avatarUrl"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// FileAttachment describes an uploaded file referenced by a message.
type FileAttachment struct {
	FileName  string `json:"fileName"`
	FileType  string `json:"fileType"`
	FileURL   string `json:"fileUrl"`
	StorageID string `json:"publicId,omitempty"`
}

type Message struct {
	Sender         Sender           `json:"sender"`
	Text           string           `json:"message"`
	Language       Language         `json:"language"`
	Files          []FileAttachment `json:"files"`
	AudioURL       string           `json:"audioUrl,omitempty"`
	TranslatedText string           `json:"translatedText,omitempty"`
	CreatedAt      time.Time        `json:"createdAt"`
}

// Notebook is a chat thread owned by a single user.
type Notebook struct {
	ID        string    `json:"notebookId"`
	UserID    string    `json:"userId"`
	Messages  []Message `json:"messages"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type NotebookSummary struct {
	NotebookID   string    `json:"notebookId"`
	Title        string    `json:"title"`
	Preview      string    `json:"preview"`
	MessageCount int       `json:"messageCount"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

const (
	UntitledNotebook = "Untitled Notebook"
	titleLength      = 30
	previewLength    = 40
)

// Summarize derives the listing entry for a notebook.
func (n Notebook) Summarize() NotebookSummary {
	var first, last string
	if len(n.Messages) > 0 {
		first = n.Messages[0].Text
		last = n.Messages[len(n.Messages)-1].Text
	}
	return NewNotebookSummary(n.ID, len(n.Messages), first, last, n.UpdatedAt)
}

// NewNotebookSummary builds a summary from the first and last message texts.
// Title and preview are plain prefix cuts (in runes) followed by a trim.
func NewNotebookSummary(notebookID string, messageCount int, firstText, lastText string, updatedAt time.Time) NotebookSummary {
	summary := NotebookSummary{
		NotebookID:   notebookID,
		Title:        UntitledNotebook,
		MessageCount: messageCount,
		UpdatedAt:    updatedAt,
	}
	if messageCount == 0 {
		return summary
	}
	if title := prefix(firstText, titleLength); title != "" {
		summary.Title = title
	}
	summary.Preview = prefix(lastText, previewLength)
	return summary
}

func prefix(text string, n int) string {
	runes := []rune(text)
	if len(runes) > n {
		runes = runes[:n]
	}
	return strings.TrimSpace(string(runes))
}

// ChatReply is the AI service answer to a chat query.
type ChatReply struct {
	Text           string `json:"text"`
	AudioURL       string `json:"audioUrl,omitempty"`
	TranslatedText string `json:"translatedText,omitempty"`
}

// DocumentSummary is the AI service result for a processed document.
type DocumentSummary struct {
	Summary           string  `json:"summary"`
	TotalChunks       int     `json:"total_chunks"`
	ProcessingTime    float64 `json:"processing_time"`
	AudioURL          string  `json:"audio_url"`
	TranslatedSummary string  `json:"translated_summary"`
	IsSuspicious      bool    `json:"is_suspicious"`
	SuspicionNote     string  `json:"suspicion_note"`
}
