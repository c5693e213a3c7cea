package ai

import (
	"context"
	"os/exec"
)

// GeminiCLI implements Client using the gemini CLI
type GeminiCLI struct {
	model string // e.g., "flash", "pro"
}

// NewGeminiCLI creates a Gemini CLI client
func NewGeminiCLI(model string) *GeminiCLI {
	return &GeminiCLI{model: model}
}

// IsGeminiCLIAvailable checks if gemini CLI is installed
func IsGeminiCLIAvailable() bool {
	_, err := exec.LookPath("gemini")
	return err == nil
}

func (c *GeminiCLI) args(prompt string) []string {
	args := []string{"-p", prompt, "-o", "text"}
	if c.model != "" {
		args = append(args, "--model", c.model)
	}
	return args
}

func (c *GeminiCLI) GenerateContent(ctx context.Context, prompt string) (string, error) {
	return runCLI(ctx, "gemini", c.args(prompt))
}

func (c *GeminiCLI) Close() {}
