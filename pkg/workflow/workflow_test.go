package workflow

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/xrsl/jobprep/pkg/ai/aitest"
	"github.com/xrsl/jobprep/pkg/cache"
	"github.com/xrsl/jobprep/pkg/checkpoint"
	"github.com/xrsl/jobprep/pkg/gh"
	"github.com/xrsl/jobprep/pkg/schema"
)

// Markers that identify each step's system prompt.
const (
	researchMarker  = "extract structured requirements"
	profileMarker   = "build structured candidate profiles"
	tailorMarker    = "expert résumé writer"
	validateMarker  = "review tailored résumés"
	interviewMarker = "interview coach"
)

const (
	requirementsJSON = `{"title": "Backend Engineer", "company": "Acme", "responsibilities": "Build APIs",
		"required-skills": ["Go", "PostgreSQL"], "seniority": "senior"}`
	profileJSON = "```json\n" + `{"name": "Jane Doe", "skills": ["Go", "SQL"],
		"experience": [{"title": "Engineer", "company": "Initech", "highlights": ["Shipped billing"]}]}` + "\n```"
	approve = `{"approved": true, "feedback": "Accurate and targeted."}`
	reject  = `{"approved": false, "feedback": "Remove the invented Kubernetes claim."}`
)

type fakeFetcher struct {
	posting string
	calls   atomic.Int32
}

func (f *fakeFetcher) Fetch(ctx context.Context, url string) (string, error) {
	f.calls.Add(1)
	if f.posting == "" {
		return "", errors.New("fetch failed: HTTP 404")
	}
	return f.posting, nil
}

// fakeLLM scripts every step; validate replies are consumed in order.
func fakeLLM(validations ...string) *aitest.Fake {
	if len(validations) == 0 {
		validations = []string{approve}
	}
	var tailored atomic.Int32
	return aitest.NewFake().
		On(researchMarker, requirementsJSON).
		On(profileMarker, profileJSON).
		OnFunc(tailorMarker, func(system, user string) (string, error) {
			n := tailored.Add(1)
			return "```markdown\n# Jane Doe\n\nDraft " + string(rune('0'+n)) + "\n```", nil
		}).
		OnSequence(validateMarker, validations...).
		On(interviewMarker, "## Likely Questions\n\n1. Tell me about billing.")
}

func newWorkflow(t *testing.T, llm *aitest.Fake, mutate ...func(*Config)) (*Workflow, *fakeFetcher) {
	t.Helper()
	sch, err := schema.LoadDefault()
	if err != nil {
		t.Fatal(err)
	}
	fetcher := &fakeFetcher{posting: "Acme is hiring a Backend Engineer. Go and PostgreSQL required."}
	cfg := Config{
		LLM:        llm,
		Model:      "test-model",
		Schema:     sch,
		Fetcher:    fetcher,
		MaxRetries: DefaultMaxRetries,
	}
	for _, m := range mutate {
		m(&cfg)
	}
	w, err := New(cfg, checkpoint.NewMemory())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return w, fetcher
}

func input() Input {
	return Input{
		JobURL:     "https://jobs.example.com/backend",
		ResumeText: "Jane Doe. Engineer at Initech. Go, SQL.",
		Summary:    "I like building billing systems.",
	}
}

func TestRunPausesBeforeInterviewThenCompletes(t *testing.T) {
	llm := fakeLLM()
	w, fetcher := newWorkflow(t, llm)
	ctx := context.Background()

	snap, err := w.Start(ctx, "t1", input())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !snap.Interrupted() || snap.Next != NodeInterview {
		t.Fatalf("expected pause before %s, got status=%s next=%s", NodeInterview, snap.Status, snap.Next)
	}

	s := snap.State
	if fetcher.calls.Load() != 1 || !strings.Contains(s.JobPosting, "Backend Engineer") {
		t.Errorf("posting not fetched: calls=%d posting=%q", fetcher.calls.Load(), s.JobPosting)
	}
	if s.JobRequirements["seniority"] != "Senior" {
		t.Errorf("requirements should be normalized, seniority = %v", s.JobRequirements["seniority"])
	}
	if s.CandidateProfile["name"] != "Jane Doe" {
		t.Errorf("profile = %v", s.CandidateProfile)
	}
	if s.TailoredResume != "# Jane Doe\n\nDraft 1" {
		t.Errorf("tailored résumé = %q", s.TailoredResume)
	}
	if !s.Approved || s.RetryCount != 0 || s.ValidationFeedback != "Accurate and targeted." {
		t.Errorf("validation state = approved:%v retries:%d feedback:%q", s.Approved, s.RetryCount, s.ValidationFeedback)
	}
	if s.InterviewMaterials != "" || llm.CountMatching(interviewMarker) != 0 {
		t.Error("interview step must not run before approval")
	}

	snap, err = w.Decide(ctx, "t1", Decision{Approve: true})
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if !snap.Completed() {
		t.Fatalf("expected completion, got %s", snap.Status)
	}
	if !strings.Contains(snap.State.InterviewMaterials, "Likely Questions") {
		t.Errorf("interview materials = %q", snap.State.InterviewMaterials)
	}

	hist, err := w.History(ctx, "t1")
	if err != nil {
		t.Fatal(err)
	}
	var nodes []string
	for _, h := range hist {
		nodes = append(nodes, string(h.Status)+":"+h.Node)
	}
	want := "running:research_job,running:build_profile,running:tailor_resume,running:validate_resume," +
		"interrupted:validate_resume,running:prepare_interview,completed:prepare_interview"
	if got := strings.Join(nodes, ","); got != want {
		t.Errorf("history = %s\nwant      %s", got, want)
	}

	if _, err := w.Decide(ctx, "t1", Decision{Approve: true}); !errors.Is(err, ErrNotAwaiting) {
		t.Errorf("deciding a completed thread: expected ErrNotAwaiting, got %v", err)
	}
}

func TestRejectedValidationRetriesAtMostThreeTimes(t *testing.T) {
	llm := fakeLLM(reject)
	w, _ := newWorkflow(t, llm)

	snap, err := w.Start(context.Background(), "loop", input())
	if err != nil {
		t.Fatal(err)
	}
	if got := llm.CountMatching(tailorMarker); got != 3 {
		t.Errorf("tailor ran %d times, want 3", got)
	}
	if got := llm.CountMatching(validateMarker); got != 3 {
		t.Errorf("validate ran %d times, want 3", got)
	}
	s := snap.State
	if s.Approved || s.RetryCount != 3 {
		t.Errorf("approved=%v retry_count=%d", s.Approved, s.RetryCount)
	}
	if !snap.Interrupted() || snap.Next != NodeInterview {
		t.Errorf("exhausted retries should still pause before interview, got %s/%s", snap.Status, snap.Next)
	}

	var retryPrompts []string
	for _, c := range llm.Calls() {
		if strings.Contains(c.System, tailorMarker) {
			retryPrompts = append(retryPrompts, c.User)
		}
	}
	if strings.Contains(retryPrompts[0], "Reviewer feedback") {
		t.Error("first tailoring round should not carry reviewer feedback")
	}
	if !strings.Contains(retryPrompts[1], "invented Kubernetes claim") || !strings.Contains(retryPrompts[1], "attempt 2") {
		t.Errorf("second round should carry reviewer feedback:\n%s", retryPrompts[1])
	}
	if !strings.Contains(retryPrompts[2], "Draft 2") {
		t.Error("retry should include the previous draft")
	}
}

func TestRetryThenApprove(t *testing.T) {
	llm := fakeLLM(reject, approve)
	w, _ := newWorkflow(t, llm)

	snap, err := w.Start(context.Background(), "t", input())
	if err != nil {
		t.Fatal(err)
	}
	if got := llm.CountMatching(tailorMarker); got != 2 {
		t.Errorf("tailor ran %d times, want 2", got)
	}
	if !snap.State.Approved || snap.State.RetryCount != 1 || snap.State.TailoredResume != "# Jane Doe\n\nDraft 2" {
		t.Errorf("state = %+v", snap.State)
	}
}

func TestMaxRetriesZero(t *testing.T) {
	llm := fakeLLM(reject)
	w, _ := newWorkflow(t, llm, func(c *Config) { c.MaxRetries = 0 })

	if _, err := w.Start(context.Background(), "t", input()); err != nil {
		t.Fatal(err)
	}
	if got := llm.CountMatching(tailorMarker); got != 1 {
		t.Errorf("tailor ran %d times, want 1", got)
	}
}

func TestHumanRejectionRetailors(t *testing.T) {
	llm := fakeLLM(reject, reject, approve)
	w, _ := newWorkflow(t, llm)
	ctx := context.Background()

	snap, err := w.Start(ctx, "t", input())
	if err != nil {
		t.Fatal(err)
	}
	if snap.State.RetryCount != 2 {
		t.Fatalf("retry_count = %d, want 2", snap.State.RetryCount)
	}

	snap, err = w.Decide(ctx, "t", Decision{Approve: false, Feedback: "Mention the open source billing library."})
	if err != nil {
		t.Fatalf("Decide(reject): %v", err)
	}
	if !snap.Interrupted() || snap.Next != NodeInterview {
		t.Fatalf("rejected thread should pause again, got %s/%s", snap.Status, snap.Next)
	}
	s := snap.State
	if s.HumanFeedback != "Mention the open source billing library." {
		t.Errorf("human feedback = %q", s.HumanFeedback)
	}
	if s.RetryCount != 0 || !s.Approved {
		t.Errorf("after re-tailoring: retry_count=%d approved=%v", s.RetryCount, s.Approved)
	}
	if s.TailoredResume != "# Jane Doe\n\nDraft 4" {
		t.Errorf("tailored résumé = %q", s.TailoredResume)
	}

	calls := llm.Calls()
	last := ""
	for _, c := range calls {
		if strings.Contains(c.System, tailorMarker) {
			last = c.User
		}
	}
	if !strings.Contains(last, "Feedback from the candidate") || !strings.Contains(last, "open source billing") {
		t.Errorf("human feedback missing from tailor prompt:\n%s", last)
	}
	if strings.Contains(last, "Reviewer feedback") {
		t.Error("reviewer feedback from the previous round should not be carried after a human decision")
	}
	if llm.CountMatching(interviewMarker) != 0 {
		t.Error("interview must wait for approval")
	}
}

func TestRejectWithoutFeedbackUsesDefault(t *testing.T) {
	w, _ := newWorkflow(t, fakeLLM())
	ctx := context.Background()
	if _, err := w.Start(ctx, "t", input()); err != nil {
		t.Fatal(err)
	}
	snap, err := w.Decide(ctx, "t", Decision{})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(snap.State.HumanFeedback, "rejected the previous draft") {
		t.Errorf("human feedback = %q", snap.State.HumanFeedback)
	}
}

func TestApproveWithEditedResume(t *testing.T) {
	llm := fakeLLM()
	w, _ := newWorkflow(t, llm)
	ctx := context.Background()

	if _, err := w.Start(ctx, "t", input()); err != nil {
		t.Fatal(err)
	}
	snap, err := w.Decide(ctx, "t", Decision{Approve: true, EditedResume: "  # Jane Doe (edited)\n"})
	if err != nil {
		t.Fatal(err)
	}
	if snap.State.TailoredResume != "# Jane Doe (edited)" {
		t.Errorf("edited résumé not applied: %q", snap.State.TailoredResume)
	}
	for _, c := range llm.Calls() {
		if strings.Contains(c.System, interviewMarker) && !strings.Contains(c.User, "# Jane Doe (edited)") {
			t.Error("interview prompt should use the edited résumé")
		}
	}
}

func TestDecideUnknownThread(t *testing.T) {
	w, _ := newWorkflow(t, fakeLLM())
	if _, err := w.Decide(context.Background(), "missing", Decision{Approve: true}); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestStartValidation(t *testing.T) {
	w, _ := newWorkflow(t, fakeLLM())
	ctx := context.Background()

	in := input()
	in.ResumeText = "  "
	if _, err := w.Start(ctx, "a", in); !errors.Is(err, ErrNoResume) {
		t.Errorf("expected ErrNoResume, got %v", err)
	}

	in = input()
	in.JobURL = ""
	if _, err := w.Start(ctx, "b", in); !errors.Is(err, ErrNoJob) {
		t.Errorf("expected ErrNoJob, got %v", err)
	}

	if _, err := w.Start(ctx, "c", input()); err != nil {
		t.Fatal(err)
	}
	if _, err := w.Start(ctx, "c", input()); !errors.Is(err, ErrThreadExists) {
		t.Errorf("expected ErrThreadExists, got %v", err)
	}
}

func TestJobPostingTextSkipsFetch(t *testing.T) {
	w, fetcher := newWorkflow(t, fakeLLM())
	in := input()
	in.JobURL = ""
	in.JobPosting = "Backend Engineer at Acme. Go."

	snap, err := w.Start(context.Background(), "t", in)
	if err != nil {
		t.Fatal(err)
	}
	if fetcher.calls.Load() != 0 {
		t.Error("fetcher should not be called when posting text is given")
	}
	if snap.State.JobPosting != in.JobPosting {
		t.Errorf("posting = %q", snap.State.JobPosting)
	}
}

func TestResearchRepairsInvalidJSON(t *testing.T) {
	llm := aitest.NewFake().
		OnSequence(researchMarker, "Sure! Here you go: not json", `{"title": "", "company": "Acme"}`, requirementsJSON).
		On(profileMarker, profileJSON).
		On(tailorMarker, "# Jane").
		On(validateMarker, approve)
	w, _ := newWorkflow(t, llm)
	ctx := context.Background()

	snap, err := w.Start(ctx, "t", input())
	if err == nil {
		t.Fatal("expected research to fail after two invalid answers")
	}
	if snap == nil || snap.Status != checkpoint.StatusFailed || snap.Next != NodeResearch {
		t.Fatalf("expected failed checkpoint at %s, got %+v", NodeResearch, snap)
	}

	calls := llm.Calls()
	if len(calls) != 2 || !strings.Contains(calls[1].User, "Fix required") || !strings.Contains(calls[1].User, "invalid JSON") {
		t.Fatalf("second attempt should carry the parse error: %+v", calls)
	}

	snap, err = w.Retry(ctx, "t")
	if err != nil {
		t.Fatalf("Retry: %v", err)
	}
	if !snap.Interrupted() || snap.State.JobRequirements["title"] != "Backend Engineer" {
		t.Errorf("retry should recover, got %s %v", snap.Status, snap.State.JobRequirements)
	}

	if _, err := w.Retry(ctx, "t"); !errors.Is(err, ErrNotFailed) {
		t.Errorf("retrying a paused thread: expected ErrNotFailed, got %v", err)
	}
}

func TestFetchFailureFailsResearch(t *testing.T) {
	w, fetcher := newWorkflow(t, fakeLLM())
	fetcher.posting = ""

	snap, err := w.Start(context.Background(), "t", input())
	if err == nil || !strings.Contains(err.Error(), "failed to fetch job posting") {
		t.Fatalf("expected fetch error, got %v", err)
	}
	if snap.Status != checkpoint.StatusFailed {
		t.Errorf("status = %s", snap.Status)
	}
}

func TestResearchCacheSharedAcrossThreads(t *testing.T) {
	store := cache.New(t.TempDir())
	llm := fakeLLM()
	w, _ := newWorkflow(t, llm, func(c *Config) { c.Cache = store })
	ctx := context.Background()

	if _, err := w.Start(ctx, "first", input()); err != nil {
		t.Fatal(err)
	}
	if _, err := w.Start(ctx, "second", input()); err != nil {
		t.Fatal(err)
	}
	if got := llm.CountMatching(researchMarker); got != 1 {
		t.Errorf("research ran %d times, want 1 (second should hit the cache)", got)
	}

	other, _ := newWorkflow(t, llm, func(c *Config) { c.Cache = store; c.Model = "other-model" })
	if _, err := other.Start(ctx, "third", input()); err != nil {
		t.Fatal(err)
	}
	if got := llm.CountMatching(researchMarker); got != 2 {
		t.Errorf("a different model must miss the cache, research ran %d times", got)
	}
}

type fakeGitHub struct{ err error }

func (f fakeGitHub) User(ctx context.Context, login string) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	return []byte(`{"login": "` + login + `", "name": "Jane Doe"}`), nil
}

func (f fakeGitHub) Repos(ctx context.Context, login string, limit int) ([]byte, error) {
	return []byte(`[{"name": "billing-engine", "language": "Go", "stargazers_count": 12}]`), nil
}

var _ gh.CLI = fakeGitHub{}

func TestGitHubContext(t *testing.T) {
	profilePrompt := func(llm *aitest.Fake) string {
		for _, c := range llm.Calls() {
			if strings.Contains(c.System, profileMarker) {
				return c.User
			}
		}
		return ""
	}
	in := input()
	in.GitHubURL = "https://github.com/janedoe"

	llm := fakeLLM()
	w, _ := newWorkflow(t, llm, func(c *Config) { c.GitHub = fakeGitHub{} })
	if _, err := w.Start(context.Background(), "t", in); err != nil {
		t.Fatal(err)
	}
	if p := profilePrompt(llm); !strings.Contains(p, "## GitHub") || !strings.Contains(p, "billing-engine") {
		t.Errorf("profile prompt should include GitHub repos:\n%s", p)
	}

	llm = fakeLLM()
	w, _ = newWorkflow(t, llm, func(c *Config) { c.GitHub = fakeGitHub{err: gh.ErrNoCLI} })
	snap, err := w.Start(context.Background(), "t", in)
	if err != nil {
		t.Fatalf("GitHub failures must not fail the run: %v", err)
	}
	if !snap.Interrupted() {
		t.Errorf("status = %s", snap.Status)
	}
	if p := profilePrompt(llm); strings.Contains(p, "## GitHub") {
		t.Error("profile prompt should omit GitHub when it cannot be read")
	}
}

func TestUnrecognizedVerdictCountsAsRejection(t *testing.T) {
	llm := fakeLLM("Hmm, hard to say.", approve)
	w, _ := newWorkflow(t, llm)

	snap, err := w.Start(context.Background(), "t", input())
	if err != nil {
		t.Fatal(err)
	}
	if snap.State.RetryCount != 1 || !snap.State.Approved {
		t.Errorf("retry_count=%d approved=%v", snap.State.RetryCount, snap.State.Approved)
	}
}

func TestModelErrorFailsRunAndRetryResumes(t *testing.T) {
	var down atomic.Bool
	down.Store(true)
	llm := aitest.NewFake().
		On(researchMarker, requirementsJSON).
		On(profileMarker, profileJSON).
		OnFunc(tailorMarker, func(string, string) (string, error) {
			if down.Load() {
				return "", errors.New("overloaded")
			}
			return "# Jane", nil
		}).
		On(validateMarker, approve)
	w, _ := newWorkflow(t, llm)
	ctx := context.Background()

	snap, err := w.Start(ctx, "t", input())
	if err == nil || snap.Status != checkpoint.StatusFailed || snap.Next != NodeTailor {
		t.Fatalf("expected failure at %s, got %v %+v", NodeTailor, err, snap)
	}
	if snap.State.CandidateProfile == nil {
		t.Error("completed steps should be kept in the failed checkpoint")
	}

	down.Store(false)
	snap, err = w.Retry(ctx, "t")
	if err != nil {
		t.Fatal(err)
	}
	if !snap.Interrupted() || llm.CountMatching(researchMarker) != 1 {
		t.Errorf("retry should resume at the failed step without redoing research")
	}
}

func TestDurableResumeAcrossInstances(t *testing.T) {
	path := filepath.Join(t.TempDir(), "checkpoints.db")
	sch, _ := schema.LoadDefault()
	ctx := context.Background()

	open := func() (*Workflow, checkpoint.Saver) {
		saver, err := checkpoint.Open(checkpoint.BackendSQLite, path)
		if err != nil {
			t.Fatal(err)
		}
		w, err := New(Config{LLM: fakeLLM(), Schema: sch, Fetcher: &fakeFetcher{posting: "Backend Engineer"}, MaxRetries: 2}, saver)
		if err != nil {
			t.Fatal(err)
		}
		return w, saver
	}

	w1, s1 := open()
	if _, err := w1.Start(ctx, "durable", input()); err != nil {
		t.Fatal(err)
	}
	s1.Close()

	w2, s2 := open()
	defer s2.Close()
	snap, err := w2.Decide(ctx, "durable", Decision{Approve: true})
	if err != nil {
		t.Fatalf("Decide in a new instance: %v", err)
	}
	if !snap.Completed() || snap.State.InterviewMaterials == "" {
		t.Errorf("expected completed run with interview materials, got %s", snap.Status)
	}
}

func TestThreadsAndDelete(t *testing.T) {
	w, _ := newWorkflow(t, fakeLLM())
	ctx := context.Background()
	for _, id := range []string{"a", "b"} {
		if _, err := w.Start(ctx, id, input()); err != nil {
			t.Fatal(err)
		}
	}
	threads, err := w.Threads(ctx)
	if err != nil || len(threads) != 2 {
		t.Fatalf("Threads() = %v, %v", threads, err)
	}
	if err := w.Delete(ctx, "a"); err != nil {
		t.Fatal(err)
	}
	if _, err := w.State(ctx, "a"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestWriteOutputs(t *testing.T) {
	w, _ := newWorkflow(t, fakeLLM())
	ctx := context.Background()
	if _, err := w.Start(ctx, "t", input()); err != nil {
		t.Fatal(err)
	}
	dir := filepath.Join(t.TempDir(), "out", "t")

	snap, _ := w.State(ctx, "t")
	written, err := w.WriteOutputs(dir, snap.State)
	if err != nil {
		t.Fatal(err)
	}
	if len(written) != 2 {
		t.Errorf("before approval only requirements and résumé exist, wrote %v", written)
	}

	snap, err = w.Decide(ctx, "t", Decision{Approve: true})
	if err != nil {
		t.Fatal(err)
	}
	written, err = w.WriteOutputs(dir, snap.State)
	if err != nil || len(written) != 3 {
		t.Fatalf("WriteOutputs = %v, %v", written, err)
	}

	req, _ := os.ReadFile(filepath.Join(dir, RequirementsFile))
	for _, want := range []string{"# Backend Engineer at Acme", "Source: https://jobs.example.com/backend", "- PostgreSQL"} {
		if !strings.Contains(string(req), want) {
			t.Errorf("requirements.md missing %q:\n%s", want, req)
		}
	}
	resume, _ := os.ReadFile(filepath.Join(dir, ResumeFile))
	if string(resume) != "# Jane Doe\n\nDraft 1\n" {
		t.Errorf("resume.md = %q", resume)
	}
}

func TestNewRequiresCollaborators(t *testing.T) {
	sch, _ := schema.LoadDefault()
	if _, err := New(Config{Schema: sch}, nil); err == nil {
		t.Error("expected error without a model client")
	}
	if _, err := New(Config{LLM: fakeLLM()}, nil); err == nil {
		t.Error("expected error without a schema")
	}
}
