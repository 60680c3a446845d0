package pipeline

import (
	"oncare-chatbot-be/internal/constant"
	"oncare-chatbot-be/internal/entity"
)

// SanitizeHistory keeps the last turns, coerces unknown roles to user and truncates long content.
func SanitizeHistory(history []entity.HistoryMessage) []entity.HistoryMessage {
	out := make([]entity.HistoryMessage, 0, len(history))
	for _, h := range history {
		role := h.Role
		if role != constant.ChatMessageRoleUser && role != constant.ChatMessageRoleModel {
			role = constant.ChatMessageRoleUser
		}
		content := h.Content
		if runes := []rune(content); len(runes) > constant.MaxHistoryContentRune {
			content = string(runes[:constant.MaxHistoryContentRune])
		}
		out = append(out, entity.HistoryMessage{Role: role, Content: content})
	}
	if len(out) > constant.MaxHistoryMessages {
		out = out[len(out)-constant.MaxHistoryMessages:]
	}
	return out
}
