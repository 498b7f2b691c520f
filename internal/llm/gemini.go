package llm

import (
	"context"

	"google.golang.org/genai"

	"github.com/Iron-Ham/codeloom/internal/errors"
)

// GeminiClient calls Google's Gemini API through the genai SDK.
type GeminiClient struct {
	client          *genai.Client
	model           string
	temperature     float32
	maxOutputTokens int32
}

// GeminiOptions configures a GeminiClient.
type GeminiOptions struct {
	// APIKey is the Gemini API key. Required.
	APIKey string
	// Model is the model identifier. Defaults to "gemini-2.0-flash".
	Model string
	// Temperature controls sampling randomness.
	Temperature float64
	// MaxOutputTokens caps response length, 0 = provider default.
	MaxOutputTokens int
}

// NewGeminiClient creates a Gemini-backed Client.
func NewGeminiClient(ctx context.Context, opts GeminiOptions) (*GeminiClient, error) {
	if opts.APIKey == "" {
		return nil, errors.NewValidationError("Gemini API key is required").WithField("api_key")
	}
	if opts.Model == "" {
		opts.Model = "gemini-2.0-flash"
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey: opts.APIKey,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create Gemini client")
	}

	return &GeminiClient{
		client:          client,
		model:           opts.Model,
		temperature:     float32(opts.Temperature),
		maxOutputTokens: int32(opts.MaxOutputTokens),
	}, nil
}

// CompleteWithSystem sends a prompt with a separate system instruction.
// An empty system prompt sends the user prompt alone.
func (c *GeminiClient) CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	var system *genai.Content
	if systemPrompt != "" {
		system = genai.NewContentFromText(systemPrompt, genai.RoleUser)
	}
	return c.generate(ctx, system, userPrompt)
}

func (c *GeminiClient) generate(ctx context.Context, system *genai.Content, prompt string) (string, error) {
	config := &genai.GenerateContentConfig{
		Temperature:       genai.Ptr(c.temperature),
		SystemInstruction: system,
	}
	if c.maxOutputTokens > 0 {
		config.MaxOutputTokens = c.maxOutputTokens
	}

	result, err := c.client.Models.GenerateContent(ctx, c.model, genai.Text(prompt), config)
	if err != nil {
		return "", errors.Wrap(err, "Gemini generate failed")
	}

	text := result.Text()
	if text == "" {
		return "", errors.New("Gemini returned an empty response")
	}
	return text, nil
}
