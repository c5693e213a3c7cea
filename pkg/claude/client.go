package claude

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/xrsl/jobprep/pkg/retry"
)

const (
	DefaultAgent     = "claude-sonnet-4-5"
	defaultMaxTokens = 8192
)

// Shared across clients: one request per second is enough for a five-step workflow.
var rateLimiter = retry.NewRateLimiter(1.0)

var SupportedAgents = []string{
	"claude-sonnet-4",
	"claude-sonnet-4-5",
	"claude-opus-4",
	"claude-opus-4-5",
	"claude-haiku-4-5",
}

// Map friendly agent names to Anthropic model IDs
var modelMapping = map[string]string{
	"claude-sonnet-4":   "claude-sonnet-4-20250514",
	"claude-sonnet-4-5": "claude-sonnet-4-5-20250929",
	"claude-opus-4":     "claude-opus-4-20250514",
	"claude-opus-4-5":   "claude-opus-4-5-20251101",
	"claude-haiku-4-5":  "claude-haiku-4-5-20251001",
}

func IsAgentSupported(agent string) bool {
	for _, a := range SupportedAgents {
		if a == agent {
			return true
		}
	}
	return false
}

type Client struct {
	client    anthropic.Client
	model     string
	maxTokens int64
	retry     retry.Config
}

// Option customises a Client.
type Option func(*clientOptions)

type clientOptions struct {
	apiKey    string
	baseURL   string
	maxTokens int64
	retry     *retry.Config
}

// WithAPIKey overrides ANTHROPIC_API_KEY.
func WithAPIKey(key string) Option {
	return func(o *clientOptions) { o.apiKey = key }
}

// WithBaseURL points the client at a different API host.
func WithBaseURL(url string) Option {
	return func(o *clientOptions) { o.baseURL = url }
}

// WithMaxTokens caps the response length.
func WithMaxTokens(n int64) Option {
	return func(o *clientOptions) { o.maxTokens = n }
}

// WithRetry replaces retry.DefaultConfig.
func WithRetry(cfg retry.Config) Option {
	return func(o *clientOptions) { o.retry = &cfg }
}

func NewClient(model string, opts ...Option) (*Client, error) {
	o := clientOptions{
		apiKey:    os.Getenv("ANTHROPIC_API_KEY"),
		maxTokens: defaultMaxTokens,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.apiKey == "" {
		return nil, fmt.Errorf("ANTHROPIC_API_KEY environment variable not set")
	}

	if model == "" {
		model = DefaultAgent
	}

	modelID, ok := modelMapping[model]
	if !ok {
		modelID = model // fallback to raw value if not in mapping
	}

	// retries are handled by retry.Do so they share our backoff and logging
	reqOpts := []option.RequestOption{
		option.WithAPIKey(o.apiKey),
		option.WithMaxRetries(0),
	}
	if o.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(o.baseURL))
	}

	cfg := retry.DefaultConfig()
	if o.retry != nil {
		cfg = *o.retry
	}

	return &Client{
		client:    anthropic.NewClient(reqOpts...),
		model:     modelID,
		maxTokens: o.maxTokens,
		retry:     cfg,
	}, nil
}

func (c *Client) GenerateContent(ctx context.Context, prompt string) (string, error) {
	return c.GenerateContentWithSystem(ctx, "", prompt)
}

func statusCode(err error) int {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

// isRetryableError checks if an error should trigger a retry
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	switch statusCode(err) {
	case http.StatusTooManyRequests, http.StatusServiceUnavailable, 529:
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "rate_limit") ||
		strings.Contains(errStr, "overloaded") ||
		strings.Contains(errStr, "timeout")
}

// formatAPIError converts API errors to user-friendly messages
func formatAPIError(err error, model string) error {
	if err == nil {
		return nil
	}
	code := statusCode(err)
	errStr := err.Error()

	switch {
	case code == http.StatusUnauthorized || strings.Contains(errStr, "authentication_error"):
		return fmt.Errorf("claude API error: invalid API key. Check ANTHROPIC_API_KEY environment variable")
	case code == http.StatusForbidden || strings.Contains(errStr, "permission_error"):
		return fmt.Errorf("claude API error: key does not have access to model %q", model)
	case code == http.StatusNotFound || strings.Contains(errStr, "not_found_error"):
		return fmt.Errorf("claude API error: model %q not found", model)
	case code == http.StatusTooManyRequests || strings.Contains(errStr, "rate_limit"):
		return fmt.Errorf("claude API error: rate limit exceeded for model %q: %w", model, err)
	case code == 529 || strings.Contains(errStr, "overloaded"):
		return fmt.Errorf("claude API error: service overloaded: %w", err)
	default:
		return fmt.Errorf("claude API error: %w", err)
	}
}

// GenerateContentWithSystem sends a prompt with a cached system message.
// The system block is marked ephemeral so the workflow's repeated
// tailor/validate calls reuse it.
func (c *Client) GenerateContentWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	if err := rateLimiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limiter: %w", err)
	}

	return retry.Do(ctx, c.retry, func() (string, error) {
		params := anthropic.MessageNewParams{
			Model:     anthropic.Model(c.model),
			MaxTokens: c.maxTokens,
			Messages: []anthropic.MessageParam{
				anthropic.NewUserMessage(anthropic.NewTextBlock(userPrompt)),
			},
		}

		if systemPrompt != "" {
			params.System = []anthropic.TextBlockParam{
				{
					Text:         systemPrompt,
					CacheControl: anthropic.NewCacheControlEphemeralParam(),
				},
			}
		}

		message, err := c.client.Messages.New(ctx, params)
		if err != nil {
			if isRetryableError(err) {
				return "", retry.Retryable(formatAPIError(err, c.model))
			}
			return "", formatAPIError(err, c.model)
		}

		var sb strings.Builder
		for _, block := range message.Content {
			if block.Type == "text" {
				sb.WriteString(block.Text)
			}
		}
		if sb.Len() == 0 {
			return "", fmt.Errorf("no text content in response")
		}
		return sb.String(), nil
	})
}

func (c *Client) Close() {}
