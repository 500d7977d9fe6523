package aiclient

import (
	"encoding/json"
	"strings"
	"unicode/utf8"
)

const maxDetailLength = 512

// detailMessage extracts a readable message from an error body. The service
// answers {"detail": "..."}; validation errors carry a list of objects.
func detailMessage(body []byte) string {
	var payload struct {
		Detail json.RawMessage `json:"detail"`
		Error  string          `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		var text string
		if json.Unmarshal(payload.Detail, &text) == nil && text != "" {
			return clip(text)
		}
		var items []struct {
			Msg string `json:"msg"`
		}
		if json.Unmarshal(payload.Detail, &items) == nil && len(items) > 0 {
			parts := make([]string, 0, len(items))
			for _, item := range items {
				if item.Msg != "" {
					parts = append(parts, item.Msg)
				}
			}
			if len(parts) > 0 {
				return clip(strings.Join(parts, "; "))
			}
		}
		if payload.Error != "" {
			return clip(payload.Error)
		}
	}
	return clip(strings.TrimSpace(string(body)))
}

// clip cuts s to at most maxDetailLength bytes on a rune boundary.
func clip(s string) string {
	if len(s) <= maxDetailLength {
		return s
	}
	cut := maxDetailLength
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
