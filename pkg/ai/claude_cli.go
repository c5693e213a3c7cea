package ai

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// ClaudeCLI implements Client using the claude CLI in print mode
type ClaudeCLI struct {
	model string // e.g., "sonnet-4-5", "opus-4"
}

// NewClaudeCLI creates a Claude CLI client
func NewClaudeCLI(model string) *ClaudeCLI {
	return &ClaudeCLI{model: model}
}

// IsClaudeCLIAvailable checks if claude CLI is installed
func IsClaudeCLIAvailable() bool {
	_, err := exec.LookPath("claude")
	return err == nil
}

func (c *ClaudeCLI) args(prompt string) []string {
	args := []string{"-p", prompt, "--output-format", "text"}
	if c.model != "" {
		args = append(args, "--model", "claude-"+c.model)
	}
	return args
}

func (c *ClaudeCLI) GenerateContent(ctx context.Context, prompt string) (string, error) {
	return runCLI(ctx, "claude", c.args(prompt))
}

func (c *ClaudeCLI) Close() {}

// runCLI executes a model CLI and returns stdout, folding stderr into the error.
func runCLI(ctx context.Context, name string, args []string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	output, err := cmd.Output()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok && len(exitErr.Stderr) > 0 {
			return "", fmt.Errorf("%s: %w: %s", name, err, strings.TrimSpace(string(exitErr.Stderr)))
		}
		return "", fmt.Errorf("%s: %w", name, err)
	}
	return string(output), nil
}
