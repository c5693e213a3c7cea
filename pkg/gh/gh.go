// Package gh reads a candidate's public GitHub profile through the gh CLI.
package gh

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os/exec"
	"regexp"
	"sort"
	"strings"
)

// ErrNoCLI is returned when the gh binary is not installed.
var ErrNoCLI = errors.New("gh CLI not found in PATH")

// CLI defines the GitHub operations used to build a candidate profile
type CLI interface {
	// User returns the public user record as JSON
	User(ctx context.Context, login string) ([]byte, error)
	// Repos returns the user's public repositories as JSON, most recently pushed first
	Repos(ctx context.Context, login string, limit int) ([]byte, error)
}

// DefaultCLI implements CLI using the gh command
type DefaultCLI struct{}

// New returns a new DefaultCLI instance
func New() *DefaultCLI {
	return &DefaultCLI{}
}

// Available reports whether the gh binary can be found.
func Available() bool {
	_, err := exec.LookPath("gh")
	return err == nil
}

func (c *DefaultCLI) api(ctx context.Context, path string) ([]byte, error) {
	if !Available() {
		return nil, ErrNoCLI
	}
	cmd := exec.CommandContext(ctx, "gh", "api", "-H", "Accept: application/vnd.github+json", path)
	out, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && len(exitErr.Stderr) > 0 {
			return nil, fmt.Errorf("gh api %s failed: %s", path, strings.TrimSpace(string(exitErr.Stderr)))
		}
		return nil, fmt.Errorf("gh api %s failed: %w", path, err)
	}
	return out, nil
}

// User returns the public user record
func (c *DefaultCLI) User(ctx context.Context, login string) ([]byte, error) {
	return c.api(ctx, "users/"+url.PathEscape(login))
}

// Repos lists public repositories
func (c *DefaultCLI) Repos(ctx context.Context, login string, limit int) ([]byte, error) {
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	return c.api(ctx, fmt.Sprintf("users/%s/repos?sort=pushed&per_page=%d", url.PathEscape(login), limit))
}

var loginRe = regexp.MustCompile(`^[A-Za-z0-9](?:[A-Za-z0-9]|-[A-Za-z0-9]){0,38}$`)

// ParseUsername extracts the login from a profile URL, "github.com/login",
// "@login" or a bare login.
func ParseUsername(profile string) (string, error) {
	s := strings.TrimSpace(profile)
	s = strings.TrimPrefix(s, "@")
	if strings.Contains(s, "github.com") {
		if !strings.Contains(s, "://") {
			s = "https://" + s
		}
		u, err := url.Parse(s)
		if err != nil {
			return "", fmt.Errorf("invalid GitHub URL %q: %w", profile, err)
		}
		host := strings.TrimPrefix(u.Host, "www.")
		if host != "github.com" {
			return "", fmt.Errorf("not a GitHub URL: %q", profile)
		}
		s = strings.Split(strings.Trim(u.Path, "/"), "/")[0]
	}
	if !loginRe.MatchString(s) {
		return "", fmt.Errorf("invalid GitHub username in %q", profile)
	}
	return s, nil
}

// User is the subset of the GitHub user record used in prompts
type User struct {
	Login       string `json:"login"`
	Name        string `json:"name"`
	Bio         string `json:"bio"`
	Company     string `json:"company"`
	Location    string `json:"location"`
	Blog        string `json:"blog"`
	PublicRepos int    `json:"public_repos"`
	Followers   int    `json:"followers"`
}

// Repo represents a public repository
type Repo struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Language    string   `json:"language"`
	Stars       int      `json:"stargazers_count"`
	Fork        bool     `json:"fork"`
	Archived    bool     `json:"archived"`
	URL         string   `json:"html_url"`
	Topics      []string `json:"topics"`
	PushedAt    string   `json:"pushed_at"`
}

// ParseUser parses user JSON
func ParseUser(data []byte) (*User, error) {
	var u User
	if err := json.Unmarshal(data, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// ParseRepos parses repository JSON, dropping forks and archived repos and
// ordering by stars (ties keep API order).
func ParseRepos(data []byte) ([]Repo, error) {
	var all []Repo
	if err := json.Unmarshal(data, &all); err != nil {
		return nil, err
	}
	repos := all[:0]
	for _, r := range all {
		if r.Fork || r.Archived {
			continue
		}
		repos = append(repos, r)
	}
	sort.SliceStable(repos, func(i, j int) bool { return repos[i].Stars > repos[j].Stars })
	return repos, nil
}

// Profile is a candidate's public GitHub footprint
type Profile struct {
	User  User
	Repos []Repo
}

// FetchProfile loads the user and up to limit original repositories.
func FetchProfile(ctx context.Context, cli CLI, profileURL string, limit int) (*Profile, error) {
	login, err := ParseUsername(profileURL)
	if err != nil {
		return nil, err
	}

	data, err := cli.User(ctx, login)
	if err != nil {
		return nil, err
	}
	user, err := ParseUser(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse user: %w", err)
	}

	data, err = cli.Repos(ctx, login, 100)
	if err != nil {
		return nil, err
	}
	repos, err := ParseRepos(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse repos: %w", err)
	}
	if limit > 0 && len(repos) > limit {
		repos = repos[:limit]
	}
	return &Profile{User: *user, Repos: repos}, nil
}

// Markdown summarizes the profile for a model prompt.
func (p *Profile) Markdown() string {
	var sb strings.Builder
	name := p.User.Name
	if name == "" {
		name = p.User.Login
	}
	fmt.Fprintf(&sb, "GitHub: %s (https://github.com/%s)\n", name, p.User.Login)
	if p.User.Bio != "" {
		fmt.Fprintf(&sb, "Bio: %s\n", p.User.Bio)
	}
	if p.User.Company != "" {
		fmt.Fprintf(&sb, "Company: %s\n", p.User.Company)
	}
	fmt.Fprintf(&sb, "Public repositories: %d, followers: %d\n", p.User.PublicRepos, p.User.Followers)

	if len(p.Repos) == 0 {
		return strings.TrimSuffix(sb.String(), "\n")
	}
	sb.WriteString("\nNotable repositories:\n")
	for _, r := range p.Repos {
		fmt.Fprintf(&sb, "- %s", r.Name)
		var meta []string
		if r.Language != "" {
			meta = append(meta, r.Language)
		}
		if r.Stars > 0 {
			meta = append(meta, fmt.Sprintf("%d★", r.Stars))
		}
		if len(r.Topics) > 0 {
			meta = append(meta, strings.Join(r.Topics, ", "))
		}
		if len(meta) > 0 {
			fmt.Fprintf(&sb, " [%s]", strings.Join(meta, "; "))
		}
		if r.Description != "" {
			fmt.Fprintf(&sb, ": %s", r.Description)
		}
		sb.WriteString("\n")
	}
	return strings.TrimSuffix(sb.String(), "\n")
}
