package composer

import (
	"fmt"
	"strings"

	"oncare-chatbot-be/internal/constant"
	"oncare-chatbot-be/internal/entity"
	"oncare-chatbot-be/pkg/llm"
)

// source is a chunk placed in the prompt under a citation tag such as "S1".
type source struct {
	tag   string
	rank  int
	chunk *entity.Chunk
}

// selectSources takes chunks in rank order until maxChars of chunk text is used.
// The first chunk is always included.
func selectSources(result entity.RetrievalResult, maxChars int) []source {
	var sources []source
	used := 0
	for i, rc := range result {
		n := len([]rune(rc.Chunk.Text))
		if len(sources) > 0 && maxChars > 0 && used+n > maxChars {
			break
		}
		used += n
		sources = append(sources, source{
			tag:   fmt.Sprintf("S%d", i+1),
			rank:  i,
			chunk: rc.Chunk,
		})
	}
	return sources
}

// PromptBuilder assembles the chat messages for one answer attempt.
type PromptBuilder struct {
	query    string
	category string
	history  []entity.HistoryMessage
	sources  []source
	strict   bool
}

func newPromptBuilder(query, category string, history []entity.HistoryMessage, sources []source, strict bool) *PromptBuilder {
	return &PromptBuilder{query: query, category: category, history: history, sources: sources, strict: strict}
}

func (b *PromptBuilder) Build() []llm.Message {
	system := constant.AnswerSystemPromptV1
	if topic, ok := constant.ConsultationTopics[b.category]; ok {
		system += fmt.Sprintf(constant.AnswerTopicV1, topic)
	}
	if b.strict {
		system += constant.AnswerStrictSuffixV1
	}

	messages := make([]llm.Message, 0, len(b.history)+2)
	messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: system})

	for _, h := range b.history {
		role := llm.RoleUser
		if h.Role == constant.ChatMessageRoleModel {
			role = llm.RoleAssistant
		}
		messages = append(messages, llm.Message{Role: role, Content: h.Content})
	}

	var prompt strings.Builder
	b.writeContext(&prompt)
	b.writeUserQuery(&prompt)
	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: prompt.String()})

	return messages
}

func (b *PromptBuilder) writeContext(prompt *strings.Builder) {
	prompt.WriteString("<context>\n")
	for _, s := range b.sources {
		fmt.Fprintf(prompt, "[%s] 제목: %s\n", s.tag, s.chunk.Metadata.Title)
		if s.chunk.Metadata.TimestampRange != "" {
			fmt.Fprintf(prompt, "구간: %s\n", s.chunk.Metadata.TimestampRange)
		}
		prompt.WriteString(s.chunk.Text)
		prompt.WriteString("\n\n")
	}
	prompt.WriteString("</context>\n\n")
}

func (b *PromptBuilder) writeUserQuery(prompt *strings.Builder) {
	prompt.WriteString("<user_question>\n")
	prompt.WriteString(b.query)
	prompt.WriteString("\n</user_question>")
}
