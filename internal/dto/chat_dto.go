package dto

type HistoryMessageDTO struct {
	Role    string `json:"role"`
	Content string `json:"content" validate:"required"`
}

type ChatRequest struct {
	Question string              `json:"question" validate:"required,max=2000"`
	Category string              `json:"category,omitempty" validate:"omitempty,oneof=auto cancer nerve general"`
	History  []HistoryMessageDTO `json:"history,omitempty" validate:"omitempty,dive"`
}

type CitationDTO struct {
	SourceURL string `json:"source_url"`
	Title     string `json:"title"`
}

// ChatResponse is returned as-is for answered, blocked and abstained questions.
type ChatResponse struct {
	Answer             string        `json:"answer"`
	Citations          []CitationDTO `json:"citations"`
	Abstained          bool          `json:"abstained"`
	GuardrailTriggered bool          `json:"guardrail_triggered"`
	Category           string        `json:"category"`
}

type HealthResponse struct {
	Status string `json:"status"`
}

// ChatSocketFrame is a server frame on the chat websocket.
type ChatSocketFrame struct {
	Type    string        `json:"type"` // "answer" | "error"
	Payload *ChatResponse `json:"payload,omitempty"`
	Message string        `json:"message,omitempty"`
}
