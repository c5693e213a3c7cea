package workflow

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/xrsl/jobprep/pkg/utils"
)

// Output file names written under <output_dir>/<thread>.
const (
	ResumeFile       = "resume.md"
	InterviewFile    = "interview.md"
	RequirementsFile = "requirements.md"
)

// RequirementsMarkdown renders the extracted requirements with a title heading.
func (w *Workflow) RequirementsMarkdown(s State) string {
	if len(s.JobRequirements) == 0 {
		return ""
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "# %s\n\n", w.cfg.Schema.GetTitle(s.JobRequirements))
	if s.JobURL != "" {
		fmt.Fprintf(&sb, "Source: %s\n\n", s.JobURL)
	}
	sb.WriteString(w.cfg.Schema.Render(s.JobRequirements))
	sb.WriteString("\n")
	return sb.String()
}

// WriteOutputs writes whichever of the résumé, interview materials and
// requirements the state holds into dir and returns the paths written.
func (w *Workflow) WriteOutputs(dir string, s State) ([]string, error) {
	files := []struct {
		name, content string
	}{
		{RequirementsFile, w.RequirementsMarkdown(s)},
		{ResumeFile, s.TailoredResume},
		{InterviewFile, s.InterviewMaterials},
	}

	var written []string
	for _, f := range files {
		if strings.TrimSpace(f.content) == "" {
			continue
		}
		path := filepath.Join(dir, f.name)
		content := f.content
		if !strings.HasSuffix(content, "\n") {
			content += "\n"
		}
		if err := utils.WriteFile(path, content); err != nil {
			return written, fmt.Errorf("failed to write %s: %w", path, err)
		}
		written = append(written, path)
	}
	return written, nil
}
