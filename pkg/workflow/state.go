package workflow

import (
	"errors"
	"strings"

	"github.com/xrsl/jobprep/pkg/graph"
)

// Node names.
const (
	NodeResearch  = "research_job"
	NodeProfile   = "build_profile"
	NodeTailor    = "tailor_resume"
	NodeValidate  = "validate_resume"
	NodeInterview = "prepare_interview"
)

// StepLabels are human readable names for the nodes.
var StepLabels = map[string]string{
	NodeResearch:  "Researching job posting",
	NodeProfile:   "Building candidate profile",
	NodeTailor:    "Tailoring résumé",
	NodeValidate:  "Validating résumé",
	NodeInterview: "Preparing interview materials",
}

// DefaultMaxRetries is how many rejected validations send the résumé back
// for another tailoring round.
const DefaultMaxRetries = 2

// State is threaded through every step and checkpointed after each one.
type State struct {
	JobURL     string `json:"job_url,omitempty"`
	GitHubURL  string `json:"github_url,omitempty"`
	ResumeText string `json:"resume_text"`
	Summary    string `json:"summary,omitempty"`

	JobPosting         string         `json:"job_posting,omitempty"`
	JobRequirements    map[string]any `json:"job_requirements,omitempty"`
	CandidateProfile   map[string]any `json:"candidate_profile,omitempty"`
	TailoredResume     string         `json:"tailored_resume,omitempty"`
	InterviewMaterials string         `json:"interview_materials,omitempty"`

	Approved           bool   `json:"approved"`
	ValidationFeedback string `json:"validation_feedback,omitempty"`
	RetryCount         int    `json:"retry_count"`
	HumanFeedback      string `json:"human_feedback,omitempty"`
}

// Snapshot is a checkpointed State.
type Snapshot = graph.Snapshot[State]

var (
	ErrNoResume     = errors.New("résumé text is required")
	ErrNoJob        = errors.New("a job URL or job posting text is required")
	ErrNotAwaiting  = errors.New("thread is not awaiting approval")
	ErrNotFailed    = errors.New("thread has not failed")
	ErrNotFound     = graph.ErrNotFound
	ErrThreadBusy   = graph.ErrThreadBusy
	ErrThreadExists = graph.ErrThreadExists
)

// Input starts a run.
type Input struct {
	JobURL     string `json:"job_url"`
	JobPosting string `json:"job_posting,omitempty"` // used instead of fetching JobURL
	GitHubURL  string `json:"github_url,omitempty"`
	ResumeText string `json:"resume_text"`
	Summary    string `json:"summary,omitempty"`
}

// Validate checks the required fields.
func (in Input) Validate() error {
	if strings.TrimSpace(in.ResumeText) == "" {
		return ErrNoResume
	}
	if strings.TrimSpace(in.JobURL) == "" && strings.TrimSpace(in.JobPosting) == "" {
		return ErrNoJob
	}
	return nil
}

func (in Input) state() State {
	return State{
		JobURL:     strings.TrimSpace(in.JobURL),
		GitHubURL:  strings.TrimSpace(in.GitHubURL),
		ResumeText: in.ResumeText,
		Summary:    strings.TrimSpace(in.Summary),
		JobPosting: strings.TrimSpace(in.JobPosting),
	}
}

// Decision is the human verdict at the approval pause.
type Decision struct {
	Approve bool `json:"approve"`
	// EditedResume replaces the tailored résumé when approving.
	EditedResume string `json:"edited_resume,omitempty"`
	// Feedback is passed to the next tailoring round when rejecting.
	Feedback string `json:"feedback,omitempty"`
}
