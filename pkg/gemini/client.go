package gemini

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/xrsl/jobprep/pkg/retry"
)

const DefaultAgent = "gemini-2.5-flash"

var SupportedAgents = []string{
	"gemini-2.5-flash",
	"gemini-2.5-pro",
	"gemini-2.0-flash",
	"gemini-3-flash-preview",
	"gemini-3-pro-preview",
}

func IsAgentSupported(agent string) bool {
	for _, a := range SupportedAgents {
		if a == agent {
			return true
		}
	}
	return false
}

// APIKey returns GEMINI_API_KEY, falling back to GOOGLE_API_KEY.
func APIKey() string {
	if k := os.Getenv("GEMINI_API_KEY"); k != "" {
		return k
	}
	return os.Getenv("GOOGLE_API_KEY")
}

type Client struct {
	client *genai.Client
	model  string
}

func NewClient(model string) (*Client, error) {
	apiKey := APIKey()
	if apiKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY environment variable not set")
	}

	if model == "" {
		model = DefaultAgent
	}

	client, err := genai.NewClient(context.Background(), option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("gemini client: %w", err)
	}

	return &Client{client: client, model: model}, nil
}

func (c *Client) GenerateContent(ctx context.Context, prompt string) (string, error) {
	return c.GenerateContentWithSystem(ctx, "", prompt)
}

// GenerateContentWithSystem sends the system prompt as a system instruction.
// A fresh GenerativeModel is built per call since SystemInstruction is model state.
func (c *Client) GenerateContentWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	m := c.client.GenerativeModel(c.model)
	if systemPrompt != "" {
		m.SystemInstruction = &genai.Content{
			Parts: []genai.Part{genai.Text(systemPrompt)},
		}
	}

	return retry.Do(ctx, retry.DefaultConfig(), func() (string, error) {
		resp, err := m.GenerateContent(ctx, genai.Text(userPrompt))
		if err != nil {
			if isRetryableError(err) {
				return "", retry.Retryable(fmt.Errorf("gemini API error: %w", err))
			}
			return "", fmt.Errorf("gemini API error: %w", err)
		}
		return responseText(resp)
	})
}

func isRetryableError(err error) bool {
	s := err.Error()
	return strings.Contains(s, "429") ||
		strings.Contains(s, "503") ||
		strings.Contains(s, "RESOURCE_EXHAUSTED") ||
		strings.Contains(s, "UNAVAILABLE")
}

func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", fmt.Errorf("no content generated")
	}

	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			sb.WriteString(string(txt))
		}
	}
	if sb.Len() == 0 {
		return "", fmt.Errorf("unexpected response format")
	}
	return sb.String(), nil
}

func (c *Client) Close() {
	_ = c.client.Close()
}
