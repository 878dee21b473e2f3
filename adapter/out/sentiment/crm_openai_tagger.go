package sentiment

import (
	"context"
	"fmt"

	"crm_server/core/port/out"

	openai "github.com/sashabaranov/go-openai"
)

// DefaultModel is the chat model used for tagging.
const DefaultModel = "gpt-4o-mini"

// maxInputRunes bounds the text sent per message.
const maxInputRunes = 4000

const systemPrompt = "You label the sentiment of customer correspondence. " +
	"Answer with exactly one word: Positive, Neutral or Negative."

// OpenAIConfig configures the OpenAI tagger.
type OpenAIConfig struct {
	APIKey  string
	Model   string
	BaseURL string // optional, for compatible endpoints
}

// OpenAITagger labels text with a chat completion.
type OpenAITagger struct {
	client *openai.Client
	model  string
}

// NewOpenAITagger creates an OpenAI-backed tagger.
func NewOpenAITagger(cfg OpenAIConfig) *OpenAITagger {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	return &OpenAITagger{client: openai.NewClientWithConfig(clientCfg), model: model}
}

// Tag implements out.SentimentTagger.
func (t *OpenAITagger) Tag(ctx context.Context, text string) (string, error) {
	if runes := []rune(text); len(runes) > maxInputRunes {
		text = string(runes[:maxInputRunes])
	}

	resp, err := t.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       t.model,
		MaxTokens:   3,
		Temperature: 0,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: text},
		},
	})
	if err != nil {
		return "", fmt.Errorf("sentiment completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("sentiment completion returned no choices")
	}
	return normalizeLabel(resp.Choices[0].Message.Content)
}

var _ out.SentimentTagger = (*OpenAITagger)(nil)
