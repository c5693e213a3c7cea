package ai

import (
	"context"
	"os"
	"strings"
)

func hasAnthropicKey() bool {
	return os.Getenv("ANTHROPIC_API_KEY") != ""
}

// Generate sends systemPrompt and userPrompt, using prompt caching when the
// client supports it and concatenating them otherwise.
func Generate(ctx context.Context, c Client, systemPrompt, userPrompt string) (string, error) {
	if cc, ok := c.(CachingClient); ok {
		return cc.GenerateContentWithSystem(ctx, systemPrompt, userPrompt)
	}
	if systemPrompt == "" {
		return c.GenerateContent(ctx, userPrompt)
	}
	return c.GenerateContent(ctx, systemPrompt+"\n\n"+userPrompt)
}

// CleanJSON strips markdown code fences and any prose around the outermost
// JSON object.
func CleanJSON(resp string) string {
	resp = stripFences(resp)
	start := strings.Index(resp, "{")
	end := strings.LastIndex(resp, "}")
	if start == -1 || end < start {
		return resp
	}
	return resp[start : end+1]
}

// CleanMarkdown strips a wrapping ```markdown fence if the model added one.
func CleanMarkdown(resp string) string {
	return stripFences(resp)
}

func stripFences(resp string) string {
	resp = strings.TrimSpace(resp)
	if !strings.HasPrefix(resp, "```") {
		return resp
	}
	// drop the opening fence line including any language tag
	if idx := strings.Index(resp, "\n"); idx != -1 {
		resp = resp[idx+1:]
	} else {
		resp = strings.TrimPrefix(resp, "```")
	}
	resp = strings.TrimSpace(resp)
	resp = strings.TrimSuffix(resp, "```")
	return strings.TrimSpace(resp)
}
