package gh

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestNew(t *testing.T) {
	cli := New()
	if cli == nil {
		t.Fatal("expected non-nil CLI")
	}
}

func TestParseUsername(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"https://github.com/octocat", "octocat", false},
		{"https://github.com/octocat/", "octocat", false},
		{"https://www.github.com/octocat?tab=repositories", "octocat", false},
		{"github.com/octo-cat/hello-world", "octo-cat", false},
		{"@octocat", "octocat", false},
		{"  octocat  ", "octocat", false},
		{"https://gitlab.com/octocat", "", true},
		{"https://github.com/", "", true},
		{"-bad", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseUsername(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseUsername(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseUsername(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestParseRepos(t *testing.T) {
	data := `[
		{"name": "small", "stargazers_count": 1, "language": "Go"},
		{"name": "forked", "stargazers_count": 99, "fork": true},
		{"name": "big", "stargazers_count": 50, "description": "popular"},
		{"name": "old", "stargazers_count": 70, "archived": true},
		{"name": "also-small", "stargazers_count": 1}
	]`
	repos, err := ParseRepos([]byte(data))
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, r := range repos {
		names = append(names, r.Name)
	}
	if got := strings.Join(names, ","); got != "big,small,also-small" {
		t.Errorf("repos = %s", got)
	}

	if _, err := ParseRepos([]byte(`{invalid}`)); err == nil {
		t.Error("expected error for invalid json")
	}
}

type fakeCLI struct {
	user, repos   string
	err           error
	reposLogin    string
	reposRequests int
}

func (f *fakeCLI) User(ctx context.Context, login string) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []byte(f.user), nil
}

func (f *fakeCLI) Repos(ctx context.Context, login string, limit int) ([]byte, error) {
	f.reposLogin = login
	f.reposRequests++
	return []byte(f.repos), nil
}

func TestFetchProfile(t *testing.T) {
	cli := &fakeCLI{
		user: `{"login": "octocat", "name": "The Octocat", "bio": "Hubot fan", "public_repos": 8, "followers": 100}`,
		repos: `[
			{"name": "hello-world", "stargazers_count": 10, "language": "Go", "topics": ["demo"], "description": "First repo"},
			{"name": "spoon-knife", "stargazers_count": 5},
			{"name": "linguist", "stargazers_count": 1}
		]`,
	}

	p, err := FetchProfile(context.Background(), cli, "https://github.com/octocat", 2)
	if err != nil {
		t.Fatalf("FetchProfile: %v", err)
	}
	if cli.reposLogin != "octocat" {
		t.Errorf("repos requested for %q", cli.reposLogin)
	}
	if len(p.Repos) != 2 {
		t.Fatalf("limit not applied: %d repos", len(p.Repos))
	}

	md := p.Markdown()
	for _, want := range []string{
		"GitHub: The Octocat (https://github.com/octocat)",
		"Bio: Hubot fan",
		"- hello-world [Go; 10★; demo]: First repo",
		"- spoon-knife [5★]",
	} {
		if !strings.Contains(md, want) {
			t.Errorf("markdown missing %q:\n%s", want, md)
		}
	}
	if strings.Contains(md, "linguist") {
		t.Error("repos beyond the limit should be dropped")
	}
}

func TestFetchProfileErrors(t *testing.T) {
	boom := errors.New("HTTP 404: Not Found")
	if _, err := FetchProfile(context.Background(), &fakeCLI{err: boom}, "octocat", 5); !errors.Is(err, boom) {
		t.Errorf("expected CLI error, got %v", err)
	}

	cli := &fakeCLI{}
	if _, err := FetchProfile(context.Background(), cli, "https://example.com/octocat", 5); err == nil {
		t.Error("expected error for non-GitHub URL")
	}
	if cli.reposRequests != 0 {
		t.Error("no API call should be made for an invalid URL")
	}
}

func TestMarkdownWithoutRepos(t *testing.T) {
	p := &Profile{User: User{Login: "ghost"}}
	md := p.Markdown()
	if !strings.HasPrefix(md, "GitHub: ghost (https://github.com/ghost)") {
		t.Errorf("unexpected markdown: %s", md)
	}
	if strings.Contains(md, "Notable repositories") {
		t.Error("no repository section expected")
	}
}
