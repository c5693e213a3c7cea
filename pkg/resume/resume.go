// Package resume extracts plain text from uploaded résumés.
package resume

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/ledongthuc/pdf"

	clog "github.com/xrsl/jobprep/pkg/log"
)

var (
	ErrEmpty       = errors.New("no text could be extracted from the résumé")
	ErrNotPDF      = errors.New("file is not a PDF")
	ErrUnsupported = errors.New("unsupported résumé format: use .pdf, .txt or .md")
)

var pdfMagic = []byte("%PDF")

// Load reads and extracts the résumé at path.
func Load(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read résumé: %w", err)
	}
	return Extract(filepath.Base(path), data)
}

// Extract returns the text of a résumé. The format is chosen by extension;
// files without one are sniffed for the PDF header.
func Extract(filename string, data []byte) (string, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	if ext == "" && bytes.HasPrefix(data, pdfMagic) {
		ext = ".pdf"
	}

	var (
		text string
		err  error
	)
	switch ext {
	case ".pdf":
		text, err = extractPDF(data)
	case ".txt", ".md", ".markdown", "":
		text = string(data)
	default:
		return "", fmt.Errorf("%w (got %s)", ErrUnsupported, ext)
	}
	if err != nil {
		return "", err
	}

	text = normalizeWhitespace(text)
	if text == "" {
		return "", ErrEmpty
	}
	clog.Debug("extracted résumé", "file", filename, "chars", len(text))
	return text, nil
}

func extractPDF(data []byte) (text string, err error) {
	if !bytes.HasPrefix(data, pdfMagic) {
		return "", ErrNotPDF
	}
	// the pdf reader panics on some malformed inputs
	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("failed to parse PDF: %v", r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("failed to parse PDF: %w", err)
	}

	var sb strings.Builder
	for i := 1; i <= r.NumPage(); i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		pageText, err := page.GetPlainText(nil)
		if err != nil {
			clog.Warn("failed to extract PDF page", "page", i, "error", err)
			continue
		}
		if sb.Len() > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(pageText)
	}
	return sb.String(), nil
}

var (
	spaceRun = regexp.MustCompile(`[ \t\f\v\r]+`)
	blankRun = regexp.MustCompile(`\n{3,}`)
)

func normalizeWhitespace(s string) string {
	s = spaceRun.ReplaceAllString(s, " ")
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSpace(l)
	}
	s = strings.Join(lines, "\n")
	s = blankRun.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}
