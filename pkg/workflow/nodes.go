package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/xrsl/jobprep/pkg/ai"
	"github.com/xrsl/jobprep/pkg/cache"
	"github.com/xrsl/jobprep/pkg/gh"
	clog "github.com/xrsl/jobprep/pkg/log"
	"github.com/xrsl/jobprep/pkg/prompt"
	"github.com/xrsl/jobprep/pkg/schema"
)

// jsonAttempts bounds how often a JSON answer is re-requested after it fails
// to parse or validate.
const jsonAttempts = 2

func (w *Workflow) research(ctx context.Context, s State) (State, error) {
	if s.JobPosting == "" {
		if w.cfg.Fetcher == nil {
			return s, errors.New("no job posting text and no fetcher configured")
		}
		posting, err := w.cfg.Fetcher.Fetch(ctx, s.JobURL)
		if err != nil {
			return s, fmt.Errorf("failed to fetch job posting: %w", err)
		}
		s.JobPosting = posting
	}

	key := cache.ResearchKey(s.JobPosting, w.schemaFingerprint, w.cfg.Model)
	var cached map[string]any
	if hit, err := w.cfg.Cache.Get(key, &cached); err != nil {
		clog.Warn("ignoring unreadable research cache", "error", err)
	} else if hit && w.cfg.Schema.Validate(cached) == nil {
		clog.Info("using cached job requirements", "key", key[:12])
		s.JobRequirements = cached
		return s, nil
	}

	system, user := w.cfg.Schema.GeneratePromptParts(s.JobURL, s.JobPosting)
	reqs, err := w.generateJSON(ctx, system, user, func(data map[string]any) error {
		return w.cfg.Schema.Validate(w.cfg.Schema.Normalize(data))
	})
	if err != nil {
		return s, fmt.Errorf("requirements extraction failed: %w", err)
	}
	if err := w.cfg.Cache.Put(key, reqs); err != nil {
		clog.Warn("failed to cache job requirements", "error", err)
	}
	s.JobRequirements = reqs
	return s, nil
}

func (w *Workflow) buildProfile(ctx context.Context, s State) (State, error) {
	data := prompt.Data{
		Resume:  s.ResumeText,
		Summary: s.Summary,
		GitHub:  w.githubContext(ctx, s.GitHubURL),
	}
	system, user, err := w.cfg.Prompts.Render(prompt.Profile, data)
	if err != nil {
		return s, err
	}

	profile, err := w.generateJSON(ctx, system, user, schema.ValidateProfile)
	if err != nil {
		return s, fmt.Errorf("profile extraction failed: %w", err)
	}
	s.CandidateProfile = profile
	return s, nil
}

// githubContext degrades to no context when the profile cannot be read.
func (w *Workflow) githubContext(ctx context.Context, url string) string {
	if url == "" || w.cfg.GitHub == nil {
		return ""
	}
	p, err := gh.FetchProfile(ctx, w.cfg.GitHub, url, w.cfg.GitHubRepoLimit)
	if err != nil {
		clog.Warn("continuing without GitHub context", "url", url, "error", err)
		return ""
	}
	return p.Markdown()
}

func (w *Workflow) tailor(ctx context.Context, s State) (State, error) {
	data := w.promptData(s)
	data.Attempt = s.RetryCount + 1
	if s.RetryCount > 0 && !s.Approved {
		data.ValidatorFeedback = s.ValidationFeedback
	}
	data.HumanFeedback = s.HumanFeedback
	if data.ValidatorFeedback != "" || data.HumanFeedback != "" {
		data.PreviousResume = s.TailoredResume
	}
	data.TailoredResume = ""

	system, user, err := w.cfg.Prompts.Render(prompt.Tailor, data)
	if err != nil {
		return s, err
	}
	resp, err := ai.Generate(ctx, w.cfg.LLM, system, user)
	if err != nil {
		return s, err
	}
	resume := ai.CleanMarkdown(resp)
	if resume == "" {
		return s, errors.New("model returned an empty résumé")
	}

	s.TailoredResume = resume
	s.Approved = false
	return s, nil
}

func (w *Workflow) validate(ctx context.Context, s State) (State, error) {
	system, user, err := w.cfg.Prompts.Render(prompt.Validate, w.promptData(s))
	if err != nil {
		return s, err
	}
	resp, err := ai.Generate(ctx, w.cfg.LLM, system, user)
	if err != nil {
		return s, err
	}

	v := ParseVerdict(resp)
	if !v.Parsed {
		clog.Warn("unrecognized validation reply, treating as rejection", "reply", truncate(resp, 120))
	}
	s.Approved = v.Approved
	s.ValidationFeedback = v.Feedback
	if !v.Approved {
		s.RetryCount++
	}
	clog.Info("résumé validated", "approved", v.Approved, "retry_count", s.RetryCount)
	return s, nil
}

func (w *Workflow) interview(ctx context.Context, s State) (State, error) {
	system, user, err := w.cfg.Prompts.Render(prompt.Interview, w.promptData(s))
	if err != nil {
		return s, err
	}
	resp, err := ai.Generate(ctx, w.cfg.LLM, system, user)
	if err != nil {
		return s, err
	}
	materials := ai.CleanMarkdown(resp)
	if materials == "" {
		return s, errors.New("model returned empty interview materials")
	}
	s.InterviewMaterials = materials
	return s, nil
}

// routeAfterValidation sends a rejected résumé back for tailoring while
// RetryCount is within MaxRetries.
func (w *Workflow) routeAfterValidation(s State) string {
	if s.Approved {
		return NodeInterview
	}
	if s.RetryCount <= w.cfg.MaxRetries {
		return NodeTailor
	}
	clog.Warn("retry budget exhausted, continuing with the last draft", "retry_count", s.RetryCount)
	return NodeInterview
}

func (w *Workflow) promptData(s State) prompt.Data {
	profile, _ := json.MarshalIndent(s.CandidateProfile, "", "  ")
	return prompt.Data{
		JobURL:         s.JobURL,
		Title:          w.cfg.Schema.GetTitle(s.JobRequirements),
		Requirements:   w.cfg.Schema.Render(s.JobRequirements),
		Resume:         s.ResumeText,
		Summary:        s.Summary,
		Profile:        string(profile),
		TailoredResume: s.TailoredResume,
		HumanFeedback:  s.HumanFeedback,
	}
}

// generateJSON asks for a JSON object and re-asks once with the error when the
// answer does not parse or fails check.
func (w *Workflow) generateJSON(ctx context.Context, system, user string, check func(map[string]any) error) (map[string]any, error) {
	var lastErr error
	for attempt := 1; attempt <= jsonAttempts; attempt++ {
		req := user
		if lastErr != nil {
			req = fmt.Sprintf("%s\n\n## Fix required\n\nYour previous answer was rejected: %v\nReturn the corrected JSON object only.", user, lastErr)
		}
		resp, err := ai.Generate(ctx, w.cfg.LLM, system, req)
		if err != nil {
			return nil, err
		}

		var data map[string]any
		if err := json.Unmarshal([]byte(ai.CleanJSON(resp)), &data); err != nil {
			lastErr = fmt.Errorf("invalid JSON: %w", err)
		} else if err := check(data); err != nil {
			lastErr = err
		} else {
			return data, nil
		}
		clog.Debug("model JSON rejected", "attempt", attempt, "error", lastErr)
	}
	return nil, lastErr
}

// truncate shortens s to at most n bytes without splitting a rune.
func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}
