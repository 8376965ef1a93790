package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"

	"github.com/Viphunter83/userbot-orders/internal/models"
)

// DefaultOpenAIBaseURL is the ProxyAPI OpenAI-compatible endpoint
const DefaultOpenAIBaseURL = "https://api.proxyapi.ru/openai/v1"

// chatCompleter is the subset of *openai.Client used here
type chatCompleter interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// OpenAIClassifier classifies messages with an OpenAI-compatible chat completion API
type OpenAIClassifier struct {
	client   chatCompleter
	settings Settings
	logger   zerolog.Logger
}

// NewOpenAIClassifier creates a new OpenAI-compatible classifier
func NewOpenAIClassifier(settings Settings, logger zerolog.Logger) *OpenAIClassifier {
	settings = settings.withDefaults("gpt-4o-mini")

	config := openai.DefaultConfig(settings.APIKey)
	config.BaseURL = DefaultOpenAIBaseURL
	if settings.BaseURL != "" {
		config.BaseURL = settings.BaseURL
	}

	return &OpenAIClassifier{
		client:   openai.NewClientWithConfig(config),
		settings: settings,
		logger:   logger.With().Str("component", "llm").Str("provider", "openai").Logger(),
	}
}

// Classify asks the model whether text is an order
func (c *OpenAIClassifier) Classify(ctx context.Context, text string) (models.LLMVerdict, error) {
	startTime := time.Now()

	ctx, cancel := context.WithTimeout(ctx, c.settings.Timeout)
	defer cancel()

	var verdict models.LLMVerdict
	err := generateWithRetry(ctx, c.logger, c.settings.MaxRetries, c.settings.Backoff, func(ctx context.Context) error {
		v, err := c.complete(ctx, text)
		if err != nil {
			return err
		}
		verdict = v
		return nil
	})
	if err != nil {
		return models.LLMVerdict{}, models.NewError(models.KindClassificationUnavailable, "openai.classify", err)
	}

	verdict.Usage.Latency = time.Since(startTime)
	return verdict, nil
}

func (c *OpenAIClassifier) complete(ctx context.Context, text string) (models.LLMVerdict, error) {
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.settings.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: SystemPrompt(c.settings.Categories)},
			{Role: openai.ChatMessageRoleUser, Content: UserPrompt(text)},
		},
		Temperature: 0.1,
		MaxTokens:   300,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return models.LLMVerdict{}, fmt.Errorf("chat completion: %w", err)
	}

	if len(resp.Choices) == 0 {
		return models.LLMVerdict{}, fmt.Errorf("no response choices")
	}

	verdict, err := ParseVerdict(resp.Choices[0].Message.Content)
	if err != nil {
		return models.LLMVerdict{}, permanent(err)
	}

	verdict.Usage.PromptTokens = resp.Usage.PromptTokens
	verdict.Usage.CompletionTokens = resp.Usage.CompletionTokens
	verdict.Usage.TotalTokens = resp.Usage.TotalTokens
	verdict.Usage.CostUSD = c.settings.Pricing.Cost(resp.Usage.PromptTokens, resp.Usage.CompletionTokens)

	c.logger.Info().
		Str("model", c.settings.Model).
		Bool("is_order", verdict.IsOrder).
		Str("category", verdict.Category).
		Float64("confidence", verdict.Confidence).
		Int("tokens", verdict.Usage.TotalTokens).
		Msg("LLM verdict received")

	return verdict, nil
}
