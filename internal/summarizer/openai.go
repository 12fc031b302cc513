package summarizer

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	goopenai "github.com/sashabaranov/go-openai"
)

const systemPrompt = "You answer questions using only the provided context. " +
	"If the context does not contain the answer, say so. Keep the answer short."

// ChatConfig configures the chat-completions generator.
type ChatConfig struct {
	BaseURL        string
	APIKeyEnv      string
	APIKey         string
	Model          string
	Timeout        time.Duration
	MaxTokens      int
	Temperature    float32
	MaxPromptChars int
}

// ChatGenerator answers a query from retrieved context with an
// OpenAI-compatible chat model.
type ChatGenerator struct {
	api            *goopenai.Client
	model          string
	maxTokens      int
	temperature    float32
	maxPromptChars int
}

func NewChatGenerator(cfg ChatConfig) (*ChatGenerator, error) {
	key := cfg.APIKey
	if key == "" {
		key = os.Getenv(cfg.APIKeyEnv)
	}
	if key == "" {
		return nil, fmt.Errorf("missing API key in env %s", cfg.APIKeyEnv)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.Model == "" {
		cfg.Model = goopenai.GPT4oMini
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.MaxPromptChars <= 0 {
		cfg.MaxPromptChars = 12000
	}
	apiCfg := goopenai.DefaultConfig(key)
	apiCfg.BaseURL = cfg.BaseURL
	apiCfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	return &ChatGenerator{
		api:            goopenai.NewClientWithConfig(apiCfg),
		model:          cfg.Model,
		maxTokens:      cfg.MaxTokens,
		temperature:    cfg.Temperature,
		maxPromptChars: cfg.MaxPromptChars,
	}, nil
}

func (g *ChatGenerator) Generate(ctx context.Context, contextText, query string) (string, error) {
	resp, err := g.api.CreateChatCompletion(ctx, goopenai.ChatCompletionRequest{
		Model:       g.model,
		MaxTokens:   g.maxTokens,
		Temperature: g.temperature,
		Messages: []goopenai.ChatCompletionMessage{
			{Role: goopenai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: goopenai.ChatMessageRoleUser, Content: buildPrompt(contextText, query, g.maxPromptChars)},
		},
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("chat completion: no choices returned")
	}
	answer := strings.TrimSpace(resp.Choices[0].Message.Content)
	if answer == "" {
		return "", fmt.Errorf("chat completion: empty answer")
	}
	return answer, nil
}

// buildPrompt lays out context and question, cutting the context so the
// whole prompt stays under maxChars.
func buildPrompt(contextText, query string, maxChars int) string {
	var buf strings.Builder
	buf.WriteString("Context:\n<<<\n")
	tail := "\n>>>\n\nQuestion: " + query + "\nAnswer:"
	budget := maxChars - len(buf.String()) - len(tail)
	if budget < 0 {
		budget = 0
	}
	if len(contextText) > budget {
		end := 0
		for i := range contextText {
			if i > budget {
				break
			}
			end = i
		}
		contextText = contextText[:end] + "..."
	}
	buf.WriteString(contextText)
	buf.WriteString(tail)
	return buf.String()
}
