package prompt

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"
)

// Prompt names.
const (
	Profile   = "profile"
	Tailor    = "tailor"
	Validate  = "validate"
	Interview = "interview"
)

// Data is the value every prompt template is executed with.
type Data struct {
	JobURL       string
	Title        string
	Requirements string // markdown rendering of the extracted requirements
	Resume       string
	Summary      string
	GitHub       string
	Profile      string // candidate profile JSON

	TailoredResume    string
	PreviousResume    string
	ValidatorFeedback string
	HumanFeedback     string
	Attempt           int
}

// Names lists every prompt in workflow order.
var Names = []string{Profile, Tailor, Validate, Interview}

//go:embed defaults/*.md
var defaults embed.FS

// Default returns the embedded template for name.
func Default(name string) (string, error) {
	data, err := defaults.ReadFile("defaults/" + name + ".md")
	if err != nil {
		return "", fmt.Errorf("unknown prompt %q", name)
	}
	return string(data), nil
}

// Set resolves prompts from an override directory, falling back to the
// embedded defaults. An empty dir uses defaults only.
type Set struct {
	dir string
}

// New returns a Set reading overrides from dir.
func New(dir string) *Set {
	return &Set{dir: dir}
}

// Dir returns the override directory.
func (s *Set) Dir() string { return s.dir }

// Path returns the override path for name.
func (s *Set) Path(name string) string {
	return filepath.Join(s.dir, name+".md")
}

// Load returns the template text for name and whether it came from an override.
func (s *Set) Load(name string) (text string, overridden bool, err error) {
	def, err := Default(name)
	if err != nil {
		return "", false, err
	}
	if s == nil || s.dir == "" {
		return def, false, nil
	}
	content, err := os.ReadFile(s.Path(name))
	if errors.Is(err, os.ErrNotExist) {
		return def, false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read prompt %s: %w", name, err)
	}
	return string(content), true, nil
}

// Render executes the named template with data and returns its system and
// user parts.
func (s *Set) Render(name string, data any) (system, user string, err error) {
	text, _, err := s.Load(name)
	if err != nil {
		return "", "", err
	}
	tmpl, err := template.New(name).Option("missingkey=error").Parse(text)
	if err != nil {
		return "", "", fmt.Errorf("failed to parse prompt %s: %w", name, err)
	}

	var buf bytes.Buffer
	if tmpl.Lookup("system") != nil {
		if err := tmpl.ExecuteTemplate(&buf, "system", data); err != nil {
			return "", "", fmt.Errorf("failed to render prompt %s: %w", name, err)
		}
		system = strings.TrimSpace(buf.String())
		buf.Reset()
	}
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", "", fmt.Errorf("failed to render prompt %s: %w", name, err)
	}
	user = strings.TrimSpace(buf.String())
	if user == "" {
		return "", "", fmt.Errorf("prompt %s rendered empty", name)
	}
	return system, user, nil
}

// Check parses every prompt so broken overrides are reported up front.
func (s *Set) Check() error {
	var errs []error
	for _, name := range Names {
		text, _, err := s.Load(name)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if _, err := template.New(name).Parse(text); err != nil {
			errs = append(errs, fmt.Errorf("prompt %s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

// Init writes the default prompts into dir without touching existing files,
// and the schema file when schemaPath is set and missing. It returns the
// paths it created.
func Init(dir, schemaPath string, schemaYAML []byte) ([]string, error) {
	return write(dir, schemaPath, schemaYAML, false)
}

// Reset overwrites the prompts in dir with the defaults.
func Reset(dir string) ([]string, error) {
	return write(dir, "", nil, true)
}

func write(dir, schemaPath string, schemaYAML []byte, overwrite bool) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	var created []string
	for _, name := range Names {
		path := filepath.Join(dir, name+".md")
		if !overwrite && exists(path) {
			continue
		}
		def, _ := Default(name)
		if err := os.WriteFile(path, []byte(def), 0o644); err != nil {
			return created, err
		}
		created = append(created, path)
	}

	if schemaPath != "" && !exists(schemaPath) {
		if err := os.MkdirAll(filepath.Dir(schemaPath), 0o755); err != nil {
			return created, err
		}
		if err := os.WriteFile(schemaPath, schemaYAML, 0o644); err != nil {
			return created, err
		}
		created = append(created, schemaPath)
	}
	return created, nil
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
