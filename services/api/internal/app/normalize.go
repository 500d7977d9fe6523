package app

import (
	"bytes"
	"encoding/json"
	"strings"

	"legalmitra/pkg/domain"
)

// IncomingMessage is one client supplied message before defaults are applied.
// Attachments are never taken from the client; they come from the file relay.
type IncomingMessage struct {
	Sender   string `json:"sender"`
	Message  string `json:"message"`
	Language string `json:"language"`
}

// MessageList is the messages field of a chat request. On the wire it is
// either a JSON array or a string holding a JSON encoded value. Values that
// are not arrays normalize to an empty list.
type MessageList []IncomingMessage

// UnmarshalJSON accepts an array, a JSON encoded string, or anything else
// (treated as empty).
func (l *MessageList) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var raw string
		if err := json.Unmarshal(data, &raw); err != nil {
			return ErrInvalidMessagesJSON
		}
		parsed, err := ParseMessageList(raw)
		if err != nil {
			return err
		}
		*l = parsed
		return nil
	}
	parsed, err := decodeMessageValue(data)
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

// ParseMessageList decodes the stringified form, as sent in multipart
// requests. A blank string counts as an absent field.
func ParseMessageList(raw string) (MessageList, error) {
	if strings.TrimSpace(raw) == "" {
		return MessageList{}, nil
	}
	if !json.Valid([]byte(raw)) {
		return nil, ErrInvalidMessagesJSON
	}
	return decodeMessageValue([]byte(raw))
}

func decodeMessageValue(data []byte) (MessageList, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || data[0] != '[' {
		return MessageList{}, nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, withCause(ErrInvalidMessagesJSON, err)
	}
	out := make(MessageList, 0, len(items))
	for _, item := range items {
		var msg IncomingMessage
		if err := json.Unmarshal(item, &msg); err != nil {
			return nil, withCause(ErrInvalidMessagesJSON, err)
		}
		out = append(out, msg)
	}
	return out, nil
}

// ParseRequestLanguage validates the request level language. Absent means
// the default language; anything outside the allow-list is rejected.
func ParseRequestLanguage(raw string) (domain.Language, error) {
	if strings.TrimSpace(raw) == "" {
		return domain.DefaultLanguage, nil
	}
	lang, ok := domain.ParseLanguage(raw)
	if !ok {
		return "", ErrInvalidLanguage
	}
	return lang, nil
}

// NormalizeMessages fills defaults: sender user, empty text, and the request
// language unless the message names a valid language of its own.
func NormalizeMessages(in MessageList, requestLang domain.Language) ([]domain.Message, error) {
	out := make([]domain.Message, 0, len(in)+1)
	for _, m := range in {
		sender := domain.SenderUser
		if strings.TrimSpace(m.Sender) != "" {
			parsed, ok := domain.ParseSender(m.Sender)
			if !ok {
				return nil, ErrInvalidSender
			}
			sender = parsed
		}
		lang, ok := domain.ParseLanguage(m.Language)
		if !ok {
			lang = requestLang
		}
		out = append(out, domain.Message{
			Sender:   sender,
			Text:     m.Message,
			Language: lang,
			Files:    []domain.FileAttachment{},
		})
	}
	return out, nil
}

// AttachFiles puts attachments on the last message, or on a new file-only
// user message when there is none.
func AttachFiles(msgs []domain.Message, attachments []domain.FileAttachment, requestLang domain.Language) []domain.Message {
	if len(attachments) == 0 {
		return msgs
	}
	files := append([]domain.FileAttachment{}, attachments...)
	if len(msgs) == 0 {
		return append(msgs, domain.Message{
			Sender:   domain.SenderUser,
			Text:     "",
			Language: requestLang,
			Files:    files,
		})
	}
	msgs[len(msgs)-1].Files = files
	return msgs
}

// LatestUserText returns the text of the last user message, or "".
func LatestUserText(msgs []domain.Message) string {
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Sender == domain.SenderUser {
			return msgs[i].Text
		}
	}
	return ""
}
