// Package jobpost retrieves job posting text from the web or a local file.
package jobpost

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/tidwall/gjson"

	clog "github.com/xrsl/jobprep/pkg/log"
)

// ErrEmpty is returned when a posting yields no text.
var ErrEmpty = errors.New("job posting is empty")

const (
	DefaultTimeout  = 30 * time.Second
	DefaultMaxBytes = 5 << 20
)

// Fetcher downloads and cleans job postings.
type Fetcher struct {
	Client    *http.Client
	UserAgent string
	MaxBytes  int64
}

// New returns a Fetcher with a 30s timeout identifying as userAgent.
func New(userAgent string) *Fetcher {
	return &Fetcher{
		Client:    &http.Client{Timeout: DefaultTimeout},
		UserAgent: userAgent,
		MaxBytes:  DefaultMaxBytes,
	}
}

// Get returns the posting text, reading bodyPath instead of fetching when set.
func (f *Fetcher) Get(ctx context.Context, rawURL, bodyPath string) (string, error) {
	if bodyPath != "" {
		return ReadFile(bodyPath)
	}
	return f.Fetch(ctx, rawURL)
}

// ReadFile loads a posting saved to disk. HTML files are cleaned.
func ReadFile(path string) (string, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	text := string(content)
	if strings.HasSuffix(strings.ToLower(path), ".html") || strings.HasSuffix(strings.ToLower(path), ".htm") {
		return CleanHTML(text)
	}
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("%s: %w", path, ErrEmpty)
	}
	clog.Debug("using job posting from file", "path", path, "chars", len(text))
	return text, nil
}

// Fetch downloads rawURL and returns its readable text.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", fmt.Errorf("invalid URL: %q", rawURL)
	}

	client := f.Client
	if client == nil {
		client = &http.Client{Timeout: DefaultTimeout}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), http.NoBody)
	if err != nil {
		return "", fmt.Errorf("invalid URL: %w", err)
	}
	if f.UserAgent != "" {
		req.Header.Set("User-Agent", f.UserAgent)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml,text/plain;q=0.9,*/*;q=0.5")

	clog.Info("fetching job posting", "url", rawURL)
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch failed: HTTP %d", resp.StatusCode)
	}

	limit := f.MaxBytes
	if limit <= 0 {
		limit = DefaultMaxBytes
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, limit))
	if err != nil {
		return "", fmt.Errorf("read failed: %w", err)
	}

	mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if mediaType == "text/plain" || mediaType == "text/markdown" {
		text := strings.TrimSpace(string(body))
		if text == "" {
			return "", ErrEmpty
		}
		return text, nil
	}
	return CleanHTML(string(body))
}

// CleanHTML extracts readable text from a page. Structured JobPosting data
// (schema.org JSON-LD) is preferred over the page body when present.
func CleanHTML(html string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", fmt.Errorf("failed to parse HTML: %w", err)
	}

	if text := jobPostingLD(doc); text != "" {
		clog.Debug("using structured job posting data", "chars", len(text))
		return text, nil
	}

	text := pageText(doc.Selection)
	if text == "" {
		return "", ErrEmpty
	}
	clog.Debug("extracted job posting", "chars", len(text))
	return text, nil
}

// lineBreak marks block boundaries; source newlines inside text are just spaces.
const lineBreak = "\u2029"

func pageText(sel *goquery.Selection) string {
	// Remove unwanted elements
	sel.Find("head, script, style, noscript, svg, iframe, nav, footer, header").Remove()

	sel.Find("br").ReplaceWithHtml(lineBreak)
	sel.Find("p, li, div, tr, h1, h2, h3, h4, h5, h6, section, article").Each(func(_ int, s *goquery.Selection) {
		s.AppendHtml(lineBreak)
	})
	sel.Find("li").Each(func(_ int, s *goquery.Selection) {
		s.PrependHtml("- ")
	})

	text := strings.ReplaceAll(sel.Text(), "\n", " ")
	lines := strings.Split(text, lineBreak)
	cleaned := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line != "" && line != "-" {
			cleaned = append(cleaned, line)
		}
	}
	return strings.Join(cleaned, "\n")
}

func jobPostingLD(doc *goquery.Document) string {
	var out string
	doc.Find(`script[type="application/ld+json"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		raw := s.Text()
		if !gjson.Valid(raw) {
			return true
		}
		posting := findJobPosting(gjson.Parse(raw))
		if !posting.Exists() {
			return true
		}
		out = formatJobPosting(posting)
		return out == ""
	})
	return out
}

// findJobPosting looks at the root, an array root and @graph.
func findJobPosting(v gjson.Result) gjson.Result {
	candidates := []gjson.Result{v}
	if v.IsArray() {
		candidates = v.Array()
	}
	if g := v.Get("@graph"); g.IsArray() {
		candidates = append(candidates, g.Array()...)
	}
	for _, c := range candidates {
		if c.Get("@type").String() == "JobPosting" {
			return c
		}
	}
	return gjson.Result{}
}

func formatJobPosting(p gjson.Result) string {
	desc := p.Get("description").String()
	if desc == "" {
		return ""
	}
	descDoc, err := goquery.NewDocumentFromReader(strings.NewReader(desc))
	if err != nil {
		return ""
	}
	body := pageText(descDoc.Selection)
	if body == "" {
		return ""
	}

	var sb strings.Builder
	field := func(label, path string) {
		r := p.Get(path)
		v := strings.TrimSpace(r.String())
		if r.IsArray() {
			var parts []string
			for _, item := range r.Array() {
				parts = append(parts, item.String())
			}
			v = strings.Join(parts, ", ")
		}
		if v != "" {
			fmt.Fprintf(&sb, "%s: %s\n", label, v)
		}
	}
	field("Title", "title")
	field("Company", "hiringOrganization.name")
	field("Location", "jobLocation.address.addressLocality")
	field("Location", "jobLocation.0.address.addressLocality")
	field("Employment type", "employmentType")
	field("Posted", "datePosted")
	if sb.Len() > 0 {
		sb.WriteString("\n")
	}
	sb.WriteString(body)
	return sb.String()
}
