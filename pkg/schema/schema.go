// Package schema describes the job requirements extracted from a posting.
//
// A schema is a GitHub issue-form YAML file: every input, textarea and
// dropdown becomes a key the model must return. The same definition drives
// the extraction prompt, a JSON schema used to validate the model output and
// the markdown rendering of the result.
package schema

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Field types understood by the schema.
const (
	TypeInput    = "input"
	TypeTextarea = "textarea"
	TypeDropdown = "dropdown"
)

// Field represents a single field from the issue form.
type Field struct {
	ID          string
	Label       string
	Placeholder string
	Required    bool
	Type        string
	Options     []string // dropdown only
}

// Schema represents a parsed issue form.
type Schema struct {
	Name        string
	Description string
	Labels      []string
	Fields      []Field
}

type rawTemplate struct {
	Name        string     `yaml:"name"`
	Description string     `yaml:"description"`
	Labels      []string   `yaml:"labels"`
	Body        []rawField `yaml:"body"`
}

type rawField struct {
	Type       string `yaml:"type"`
	ID         string `yaml:"id"`
	Attributes struct {
		Label       string   `yaml:"label"`
		Placeholder string   `yaml:"placeholder"`
		Options     []string `yaml:"options"`
	} `yaml:"attributes"`
	Validations struct {
		Required bool `yaml:"required"`
	} `yaml:"validations"`
}

// Load parses an issue-form YAML file. An empty path loads the bundled default.
func Load(path string) (*Schema, error) {
	if path == "" {
		return LoadDefault()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema: %w", err)
	}
	return Parse(data)
}

// Parse builds a schema from issue-form YAML.
func Parse(data []byte) (*Schema, error) {
	var raw rawTemplate
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse schema: %w", err)
	}

	s := &Schema{
		Name:        raw.Name,
		Description: raw.Description,
		Labels:      raw.Labels,
	}
	seen := make(map[string]bool)
	for _, f := range raw.Body {
		switch f.Type {
		case TypeInput, TypeTextarea, TypeDropdown:
		default:
			continue // markdown, checkboxes
		}
		if f.ID == "" {
			return nil, fmt.Errorf("schema field %q has no id", f.Attributes.Label)
		}
		if seen[f.ID] {
			return nil, fmt.Errorf("schema field id %q is duplicated", f.ID)
		}
		if f.Type == TypeDropdown && len(f.Attributes.Options) == 0 {
			return nil, fmt.Errorf("schema dropdown %q has no options", f.ID)
		}
		seen[f.ID] = true

		label := f.Attributes.Label
		if label == "" {
			label = f.ID
		}
		s.Fields = append(s.Fields, Field{
			ID:          f.ID,
			Label:       label,
			Placeholder: f.Attributes.Placeholder,
			Required:    f.Validations.Required,
			Type:        f.Type,
			Options:     f.Attributes.Options,
		})
	}
	if len(s.Fields) == 0 {
		return nil, fmt.Errorf("schema %q defines no fields", s.Name)
	}
	return s, nil
}

// Field returns the field with the given id.
func (s *Schema) Field(id string) (Field, bool) {
	for _, f := range s.Fields {
		if f.ID == id {
			return f, true
		}
	}
	return Field{}, false
}

const systemPrompt = `You extract structured requirements from job postings.
Return ONLY a valid JSON object. Do not wrap it in markdown. Do not invent facts that are not in the posting.`

// GeneratePromptParts returns the system and user prompts for extraction.
// The system part is stable across postings so it can be cached by the model provider.
func (s *Schema) GeneratePromptParts(url, posting string) (system, user string) {
	var sb strings.Builder
	sb.WriteString(systemPrompt)
	sb.WriteString("\n\nUse these exact keys:\n")
	for _, f := range s.Fields {
		hint := f.Placeholder
		if hint == "" {
			hint = f.Label
		}
		switch f.Type {
		case TypeTextarea:
			hint += " (string or array of strings)"
		case TypeDropdown:
			hint += fmt.Sprintf(" (one of: %s)", strings.Join(f.Options, ", "))
		}
		if !f.Required {
			hint += " or null if not found"
		}
		fmt.Fprintf(&sb, "- %s: %s\n", f.ID, hint)
	}

	return strings.TrimSpace(sb.String()), fmt.Sprintf("Job URL: %s\n\nJob posting:\n%s", url, posting)
}

// Render formats extracted data as markdown, one section per field.
func (s *Schema) Render(data map[string]any) string {
	var sb strings.Builder
	for _, f := range s.Fields {
		fmt.Fprintf(&sb, "### %s\n\n", f.Label)
		sb.WriteString(formatValue(data[f.ID]))
		sb.WriteString("\n\n")
	}
	return strings.TrimSuffix(sb.String(), "\n\n")
}

func formatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return "_No response_"
	case string:
		if strings.TrimSpace(val) == "" {
			return "_No response_"
		}
		return val
	case []any:
		if len(val) == 0 {
			return "_No response_"
		}
		lines := make([]string, 0, len(val))
		for _, item := range val {
			lines = append(lines, "- "+fmt.Sprint(item))
		}
		return strings.Join(lines, "\n")
	default:
		return fmt.Sprint(val)
	}
}

// GetTitle derives a short heading from extracted data.
func (s *Schema) GetTitle(data map[string]any) string {
	title := ""
	for _, key := range []string{"title", "job-title", "position", "role"} {
		if val, ok := data[key]; ok && val != nil && fmt.Sprint(val) != "" {
			title = fmt.Sprint(val)
			break
		}
	}
	if title == "" {
		for _, f := range s.Fields {
			if f.Required && f.Type == TypeInput && !strings.Contains(strings.ToLower(f.ID), "url") {
				if val, ok := data[f.ID]; ok && val != nil {
					title = fmt.Sprint(val)
					break
				}
			}
		}
	}
	if title == "" {
		return "Job Application"
	}
	if f, ok := s.Field("company"); ok {
		if company, ok := data[f.ID].(string); ok && company != "" && !strings.Contains(title, company) {
			title += " at " + company
		}
	}
	return title
}
