package app

import (
	"context"
	"errors"
	"strings"

	"legalmitra/internal/util"
	"legalmitra/pkg/domain"
	"legalmitra/pkg/store"
	"legalmitra/services/api/internal/relay"
)

// FallbackReply is stored as the bot answer when there is no question to
// forward or the AI service cannot answer.
const FallbackReply = "Sorry, I couldn't process your request right now. Please try again later."

// ChatRequest is a raw chat submission for one user.
type ChatRequest struct {
	UserID     string
	NotebookID string
	Messages   MessageList
	Language   string
	Files      []relay.File
}

// PostChat runs one chat turn: validate, upload files, append the user
// messages, ask the AI service and append its reply. Each append is atomic;
// the turn as a whole is not, so another request to the same notebook may
// land between the two appends.
func (a *App) PostChat(ctx context.Context, req ChatRequest) (domain.Notebook, error) {
	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		return domain.Notebook{}, ErrUserIDRequired
	}
	lang, err := ParseRequestLanguage(req.Language)
	if err != nil {
		return domain.Notebook{}, err
	}
	msgs, err := NormalizeMessages(req.Messages, lang)
	if err != nil {
		return domain.Notebook{}, err
	}
	if len(req.Files) > a.maxFiles {
		return domain.Notebook{}, ErrTooManyFiles
	}
	notebookID := strings.TrimSpace(req.NotebookID)
	if notebookID == "" {
		notebookID = store.NewID()
	}

	attachments, err := a.relay.Upload(ctx, userID, req.Files)
	if err != nil {
		return domain.Notebook{}, withCause(ErrUploadFailed, err)
	}
	msgs = AttachFiles(msgs, attachments, lang)

	if len(msgs) > 0 {
		if _, err := a.store.AppendMessages(ctx, userID, notebookID, msgs); err != nil {
			a.relay.Discard(ctx, attachments)
			return domain.Notebook{}, withCause(ErrInternal, err)
		}
	}

	reply := a.reply(ctx, LatestUserText(msgs), lang)
	bot := domain.Message{
		Sender:         domain.SenderBot,
		Text:           reply.Text,
		Language:       lang,
		Files:          []domain.FileAttachment{},
		AudioURL:       reply.AudioURL,
		TranslatedText: reply.TranslatedText,
	}
	nb, err := a.store.AppendMessages(ctx, userID, notebookID, []domain.Message{bot})
	if err != nil {
		return domain.Notebook{}, withCause(ErrInternal, err)
	}
	return nb, nil
}

// reply asks the AI service and falls back to FallbackReply on empty input
// or any failure. It never returns an error.
func (a *App) reply(ctx context.Context, question string, lang domain.Language) domain.ChatReply {
	if strings.TrimSpace(question) == "" {
		return domain.ChatReply{Text: FallbackReply}
	}
	reply, err := a.ai.Chat(ctx, question, lang)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			util.LoggerFromContext(ctx).Warn("ai chat failed, using fallback reply", "err", err)
		}
		return domain.ChatReply{Text: FallbackReply}
	}
	if strings.TrimSpace(reply.Text) == "" {
		return domain.ChatReply{Text: FallbackReply}
	}
	return reply
}
