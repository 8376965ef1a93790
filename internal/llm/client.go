package llm

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/generative-ai-go/genai"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"

	"github.com/Viphunter83/userbot-orders/internal/models"
)

// Settings configures an LLM classification client
type Settings struct {
	APIKey     string
	BaseURL    string // OpenAI-compatible endpoints only
	Model      string
	Timeout    time.Duration
	Categories []string
	Pricing    Pricing
	MaxRetries int
	Backoff    time.Duration // First retry delay, doubled each attempt
}

func (s Settings) withDefaults(model string) Settings {
	if s.Model == "" {
		s.Model = model
	}
	if s.Timeout <= 0 {
		s.Timeout = 30 * time.Second
	}
	if s.Backoff <= 0 {
		s.Backoff = time.Second
	}
	if s.MaxRetries < 0 {
		s.MaxRetries = 0
	}
	return s
}

// GeminiClassifier classifies messages with Google Gemini
type GeminiClassifier struct {
	settings    Settings
	logger      zerolog.Logger
	genaiClient *genai.Client
	mu          sync.Mutex
}

// NewGeminiClassifier creates a new Gemini classifier
func NewGeminiClassifier(settings Settings, logger zerolog.Logger) *GeminiClassifier {
	return &GeminiClassifier{
		settings:    settings.withDefaults("gemini-2.0-flash"),
		logger:      logger.With().Str("component", "llm").Str("provider", "gemini").Logger(),
		genaiClient: nil, // Will be created on first use
	}
}

// getClient returns or creates a genai client (thread-safe)
func (c *GeminiClassifier) getClient(ctx context.Context) (*genai.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.genaiClient != nil {
		return c.genaiClient, nil
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(c.settings.APIKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	c.genaiClient = client
	c.logger.Info().Msg("Gemini client created and cached")
	return c.genaiClient, nil
}

// Close closes the client and releases resources
func (c *GeminiClassifier) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.genaiClient != nil {
		err := c.genaiClient.Close()
		c.genaiClient = nil
		if err != nil {
			c.logger.Error().Err(err).Msg("Failed to close Gemini client")
			return err
		}
		c.logger.Info().Msg("Gemini client closed")
	}
	return nil
}

// Classify asks Gemini whether text is an order
func (c *GeminiClassifier) Classify(ctx context.Context, text string) (models.LLMVerdict, error) {
	startTime := time.Now()

	ctx, cancel := context.WithTimeout(ctx, c.settings.Timeout)
	defer cancel()

	var verdict models.LLMVerdict
	err := generateWithRetry(ctx, c.logger, c.settings.MaxRetries, c.settings.Backoff, func(ctx context.Context) error {
		v, err := c.generate(ctx, text)
		if err != nil {
			return err
		}
		verdict = v
		return nil
	})
	if err != nil {
		return models.LLMVerdict{}, models.NewError(models.KindClassificationUnavailable, "gemini.classify", err)
	}

	verdict.Usage.Latency = time.Since(startTime)
	return verdict, nil
}

// generate makes actual API call to Gemini
func (c *GeminiClassifier) generate(ctx context.Context, text string) (models.LLMVerdict, error) {
	client, err := c.getClient(ctx)
	if err != nil {
		return models.LLMVerdict{}, fmt.Errorf("failed to get genai client: %w", err)
	}

	model := client.GenerativeModel(c.settings.Model)
	model.SetTemperature(0.1)
	model.SetMaxOutputTokens(300)
	model.ResponseMIMEType = "application/json"
	model.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(SystemPrompt(c.settings.Categories))},
	}

	c.logger.Debug().
		Str("model", c.settings.Model).
		Int("text_length", len([]rune(text))).
		Msg("Sending request to LLM")

	resp, err := model.GenerateContent(ctx, genai.Text(UserPrompt(text)))
	if err != nil {
		return models.LLMVerdict{}, fmt.Errorf("failed to generate content: %w", err)
	}

	verdict, err := geminiVerdict(resp, c.settings.Pricing)
	if err != nil {
		return models.LLMVerdict{}, err
	}

	c.logger.Info().
		Str("model", c.settings.Model).
		Bool("is_order", verdict.IsOrder).
		Str("category", verdict.Category).
		Float64("confidence", verdict.Confidence).
		Int("tokens", verdict.Usage.TotalTokens).
		Msg("LLM verdict received")

	return verdict, nil
}

// geminiVerdict assembles the text parts of the first candidate, parses the
// verdict and prices the reported token usage. Unparseable output is permanent.
func geminiVerdict(resp *genai.GenerateContentResponse, pricing Pricing) (models.LLMVerdict, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		return models.LLMVerdict{}, fmt.Errorf("no response candidates from LLM")
	}

	candidate := resp.Candidates[0]
	if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		return models.LLMVerdict{}, fmt.Errorf("no content parts in response")
	}

	var responseText strings.Builder
	for _, part := range candidate.Content.Parts {
		if t, ok := part.(genai.Text); ok {
			responseText.WriteString(string(t))
		}
	}

	verdict, err := ParseVerdict(responseText.String())
	if err != nil {
		return models.LLMVerdict{}, permanent(err)
	}

	if resp.UsageMetadata != nil {
		verdict.Usage.PromptTokens = int(resp.UsageMetadata.PromptTokenCount)
		verdict.Usage.CompletionTokens = int(resp.UsageMetadata.CandidatesTokenCount)
		verdict.Usage.TotalTokens = int(resp.UsageMetadata.TotalTokenCount)
	}
	verdict.Usage.CostUSD = pricing.Cost(verdict.Usage.PromptTokens, verdict.Usage.CompletionTokens)
	return verdict, nil
}
