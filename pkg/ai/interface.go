package ai

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/xrsl/jobprep/pkg/claude"
	"github.com/xrsl/jobprep/pkg/gemini"
)

// Client is the common interface for AI providers
type Client interface {
	GenerateContent(ctx context.Context, prompt string) (string, error)
	Close()
}

// CachingClient accepts a separate, cacheable system prompt
type CachingClient interface {
	Client
	GenerateContentWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// DefaultAgent returns the best available agent.
// API agents come first when their key is set since the workflow makes
// several non-interactive calls; CLI agents are the fallback.
func DefaultAgent() string {
	switch {
	case hasAnthropicKey():
		return claude.DefaultAgent
	case gemini.APIKey() != "":
		return gemini.DefaultAgent
	case IsClaudeCLIAvailable():
		return "claude-code"
	case IsGeminiCLIAvailable():
		return "gemini-cli"
	}
	return claude.DefaultAgent
}

// subAgent parses "claude-code:sonnet-4-5" -> "sonnet-4-5"
func subAgent(agent string) string {
	if idx := strings.Index(agent, ":"); idx != -1 {
		return agent[idx+1:]
	}
	return ""
}

func isClaudeCode(agent string) bool {
	return agent == "claude-code" || strings.HasPrefix(agent, "claude-code:")
}

func isGeminiCLI(agent string) bool {
	return agent == "gemini-cli" || strings.HasPrefix(agent, "gemini-cli:")
}

// NewClient creates an AI client based on agent prefix
func NewClient(agent string) (Client, error) {
	switch {
	case isClaudeCode(agent):
		if !IsClaudeCLIAvailable() {
			return nil, fmt.Errorf("claude CLI not found in PATH")
		}
		return NewClaudeCLI(subAgent(agent)), nil
	case isGeminiCLI(agent):
		if !IsGeminiCLIAvailable() {
			return nil, fmt.Errorf("gemini CLI not found in PATH")
		}
		return NewGeminiCLI(subAgent(agent)), nil
	case strings.HasPrefix(agent, "gemini-"):
		return gemini.NewClient(agent)
	case strings.HasPrefix(agent, "claude-"):
		return claude.NewClient(agent)
	default:
		return nil, fmt.Errorf("unknown agent: %s (use claude-code, gemini-cli, gemini-*, or claude-*)", agent)
	}
}

// IsAgentSupported checks if an agent is supported by any provider
func IsAgentSupported(agent string) bool {
	switch {
	case isClaudeCode(agent):
		return IsClaudeCLIAvailable()
	case isGeminiCLI(agent):
		return IsGeminiCLIAvailable()
	default:
		return IsModelSupported(agent)
	}
}

// IsAgentCLI returns true if the agent is a CLI agent (claude-code, gemini-cli)
func IsAgentCLI(agent string) bool {
	return isClaudeCode(agent) || isGeminiCLI(agent)
}

// IsModelSupported checks if an API model is supported
func IsModelSupported(model string) bool {
	switch {
	case strings.HasPrefix(model, "gemini-"):
		return gemini.IsAgentSupported(model)
	case strings.HasPrefix(model, "claude-"):
		return claude.IsAgentSupported(model)
	default:
		return false
	}
}

// SupportedModels returns supported API models (full names)
func SupportedModels() []string {
	models := []string{}
	models = append(models, claude.SupportedAgents...)
	models = append(models, gemini.SupportedAgents...)
	return models
}

// Model represents a model configuration for both CLI and API usage
type Model struct {
	Name    string // Short name (e.g., "sonnet-4")
	CLIName string // CLI parameter name (e.g., "sonnet-4")
	APIName string // Full API model name (e.g., "claude-sonnet-4")
}

// SupportedModelMap maps short model names to their configurations
var SupportedModelMap = map[string]Model{
	"sonnet-4":   {Name: "sonnet-4", CLIName: "sonnet-4", APIName: "claude-sonnet-4"},
	"sonnet-4-5": {Name: "sonnet-4-5", CLIName: "sonnet-4-5", APIName: "claude-sonnet-4-5"},
	"opus-4":     {Name: "opus-4", CLIName: "opus-4", APIName: "claude-opus-4"},
	"opus-4-5":   {Name: "opus-4-5", CLIName: "opus-4-5", APIName: "claude-opus-4-5"},
	"haiku-4-5":  {Name: "haiku-4-5", CLIName: "haiku-4-5", APIName: "claude-haiku-4-5"},
	"flash":      {Name: "flash", CLIName: "flash", APIName: "gemini-2.5-flash"},
	"pro":        {Name: "pro", CLIName: "pro", APIName: "gemini-2.5-pro"},
	"flash-3":    {Name: "flash-3", CLIName: "flash-3", APIName: "gemini-3-flash-preview"},
	"pro-3":      {Name: "pro-3", CLIName: "pro-3", APIName: "gemini-3-pro-preview"},
}

// GetModel returns the model configuration for a given short name
func GetModel(shortName string) (Model, bool) {
	model, ok := SupportedModelMap[shortName]
	return model, ok
}

// SupportedModelNames returns the short model names, sorted
func SupportedModelNames() []string {
	names := make([]string, 0, len(SupportedModelMap))
	for name := range SupportedModelMap {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ResolveAgent combines an agent and an optional short model name into the
// identifier NewClient understands. CLI agents get the model appended
// ("claude-code:sonnet-4-5"); API agents are replaced by the model's API name.
func ResolveAgent(agent, model string) (string, error) {
	if agent == "" {
		agent = DefaultAgent()
	}
	if model == "" {
		return agent, nil
	}

	m, ok := GetModel(model)
	if !ok {
		if IsModelSupported(model) {
			return model, nil
		}
		return "", fmt.Errorf("unsupported model: %s (supported: %v)", model, SupportedModelNames())
	}

	if IsAgentCLI(agent) {
		base := agent
		if idx := strings.Index(base, ":"); idx != -1 {
			base = base[:idx]
		}
		return base + ":" + m.CLIName, nil
	}
	return m.APIName, nil
}
