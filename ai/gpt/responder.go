// Package gpt answers messages that no session, flow trigger or keyword
// rule claims, using chat completions grounded in authored context
// snippets and recent conversation history.
package gpt

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sashabaranov/go-openai"

	"WhatsFlow/entity"
	"WhatsFlow/internal/config"
	"WhatsFlow/internal/lib/sl"
)

const historyLimit = 10

// ContextStore lists enabled knowledge snippets for prompt grounding.
type ContextStore interface {
	ListContexts(ctx context.Context) ([]entity.AIContext, error)
}

// HistoryStore returns a contact's recent messages, newest first.
type HistoryStore interface {
	History(ctx context.Context, phone string, limit int) ([]entity.Message, error)
}

// Responder generates free-form replies via the OpenAI API.
type Responder struct {
	client       *openai.Client
	model        string
	systemPrompt string
	maxTokens    int
	temperature  float32
	contexts     ContextStore
	history      HistoryStore
	log          *slog.Logger
}

// NewResponder creates an AI responder from the OpenAI section of the
// service configuration.
func NewResponder(conf *config.Config, contexts ContextStore, history HistoryStore, log *slog.Logger) *Responder {
	return &Responder{
		client:       openai.NewClient(conf.OpenAI.ApiKey),
		model:        conf.OpenAI.Model,
		systemPrompt: conf.OpenAI.SystemPrompt,
		maxTokens:    conf.OpenAI.MaxTokens,
		temperature:  conf.OpenAI.Temperature,
		contexts:     contexts,
		history:      history,
		log:          log.With(sl.Module("responder")),
	}
}

// Reply produces an answer to the contact's message. An empty reply
// means the model produced nothing usable.
func (r *Responder) Reply(ctx context.Context, phone, text string) (string, error) {
	messages := []openai.ChatCompletionMessage{{
		Role:    openai.ChatMessageRoleSystem,
		Content: r.buildSystemPrompt(ctx, text),
	}}
	messages = append(messages, r.recentHistory(ctx, phone)...)
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: text,
	})

	resp, err := r.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       r.model,
		Messages:    messages,
		MaxTokens:   r.maxTokens,
		Temperature: r.temperature,
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", nil
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

// buildSystemPrompt appends matching context snippets to the base
// prompt. A snippet with no trigger keywords is always included; one
// with keywords joins only when the message mentions any of them.
func (r *Responder) buildSystemPrompt(ctx context.Context, text string) string {
	prompt := r.systemPrompt
	if prompt == "" {
		prompt = "You are a helpful WhatsApp assistant. Keep answers short and plain."
	}
	if r.contexts == nil {
		return prompt
	}

	snippets, err := r.contexts.ListContexts(ctx)
	if err != nil {
		r.log.With(sl.Err(err)).Warn("loading ai contexts")
		return prompt
	}

	needle := strings.ToLower(text)
	var sb strings.Builder
	sb.WriteString(prompt)
	for _, snippet := range snippets {
		if !snippetApplies(&snippet, needle) {
			continue
		}
		sb.WriteString("\n\n")
		sb.WriteString(snippet.Content)
	}
	return sb.String()
}

func snippetApplies(snippet *entity.AIContext, needle string) bool {
	if snippet.TriggerKeywords == "" {
		return true
	}
	for _, keyword := range strings.Split(snippet.TriggerKeywords, ",") {
		if k := strings.ToLower(strings.TrimSpace(keyword)); k != "" && strings.Contains(needle, k) {
			return true
		}
	}
	return false
}

// recentHistory maps the contact's last messages onto chat roles,
// oldest first.
func (r *Responder) recentHistory(ctx context.Context, phone string) []openai.ChatCompletionMessage {
	if r.history == nil {
		return nil
	}

	records, err := r.history.History(ctx, phone, historyLimit)
	if err != nil {
		r.log.With(
			slog.String("phone", phone),
			sl.Err(err),
		).Warn("loading history")
		return nil
	}

	messages := make([]openai.ChatCompletionMessage, 0, len(records))
	for i := len(records) - 1; i >= 0; i-- {
		record := records[i]
		if record.Text == "" {
			continue
		}
		role := openai.ChatMessageRoleUser
		if record.Direction == entity.DirectionOutgoing {
			role = openai.ChatMessageRoleAssistant
		}
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    role,
			Content: record.Text,
		})
	}
	return messages
}
