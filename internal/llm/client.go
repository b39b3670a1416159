package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/spherical/pdf-insight/internal/domain"
	"github.com/spherical/pdf-insight/internal/observability"
)

const (
	DefaultBaseURL = "https://api.openai.com/v1"
	DefaultModel   = openai.GPT4o
)

// Temperature is fixed for every request.
const Temperature float32 = 0.3

// Config holds the client settings. APIKey is passed explicitly and never
// read from the process environment here.
type Config struct {
	APIKey     string
	BaseURL    string
	Model      string
	HTTPClient *http.Client
}

// Client sends a question plus page images to an OpenAI compatible
// chat completions endpoint
type Client struct {
	api     *openai.Client
	apiKey  string
	baseURL string
	model   string
	logger  *observability.Logger
}

// NewClient creates a new LLM client
func NewClient(cfg Config, logger *observability.Logger) *Client {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if logger == nil {
		logger = observability.NopLogger()
	}

	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	apiCfg := openai.DefaultConfig(cfg.APIKey)
	apiCfg.BaseURL = baseURL
	if cfg.HTTPClient != nil {
		apiCfg.HTTPClient = cfg.HTTPClient
	}

	return &Client{
		api:     openai.NewClientWithConfig(apiCfg),
		apiKey:  cfg.APIKey,
		baseURL: baseURL,
		model:   cfg.Model,
		logger:  logger.WithOperation("query"),
	}
}

// Model returns the model identifier requests are sent to.
func (c *Client) Model() string {
	return c.model
}

// Query sends one request holding the query text followed by every page image
// in ascending page order and returns the model's answer. It blocks until the
// full response arrives; failures are returned as is, never retried.
func (c *Client) Query(ctx context.Context, images *domain.PageImages, query string) (string, error) {
	if c.apiKey == "" {
		return "", domain.MissingCredentialError("OPENAI_API_KEY is not set", nil)
	}

	start := time.Now()
	c.logger.Debug().
		Str("model", c.model).
		Int("images", images.Len()).
		Msg("Sending query")

	resp, err := c.api.CreateChatCompletion(ctx, BuildRequest(c.model, images, query))
	if err != nil {
		return "", invocationError(err)
	}
	if len(resp.Choices) == 0 {
		return "", domain.ModelInvocationError("no choices in API response", nil)
	}

	c.logger.Info().
		Str("model", c.model).
		Int("images", images.Len()).
		Int("total_tokens", resp.Usage.TotalTokens).
		Dur("latency", time.Since(start)).
		Msg("Query answered")

	return resp.Choices[0].Message.Content, nil
}

// BuildRequest constructs the multimodal request: content[0] is the query
// text, content[1..N] are the page images in ascending page order.
func BuildRequest(model string, images *domain.PageImages, query string) openai.ChatCompletionRequest {
	parts := make([]openai.ChatMessagePart, 0, images.Len()+1)
	parts = append(parts, openai.ChatMessagePart{
		Type: openai.ChatMessagePartTypeText,
		Text: query,
	})
	for _, img := range images.Ordered() {
		parts = append(parts, openai.ChatMessagePart{
			Type: openai.ChatMessagePartTypeImageURL,
			ImageURL: &openai.ChatMessageImageURL{
				URL: img.DataURI(),
			},
		})
	}

	return openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{{
			Role:         openai.ChatMessageRoleUser,
			MultiContent: parts,
		}},
		Temperature: Temperature,
	}
}

// invocationError maps an SDK error to a ModelInvocationError, keeping the
// API's status and message when there is one.
func invocationError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return domain.ModelInvocationError(
			fmt.Sprintf("API returned status %d: %s", apiErr.HTTPStatusCode, apiErr.Message), err)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return domain.ModelInvocationError(fmt.Sprintf("API returned status %d", reqErr.HTTPStatusCode), err)
	}
	return domain.ModelInvocationError("chat completion failed", err)
}
