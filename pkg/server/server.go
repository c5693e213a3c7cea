// Package server exposes application threads over HTTP. Runs and resumes are
// executed in the background; clients poll a session until it pauses for
// approval or completes.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/xrsl/jobprep/pkg/checkpoint"
	clog "github.com/xrsl/jobprep/pkg/log"
	"github.com/xrsl/jobprep/pkg/resume"
	"github.com/xrsl/jobprep/pkg/workflow"
)

const (
	// MaxUploadBytes bounds request bodies, résumé uploads included.
	MaxUploadBytes = 10 << 20
	shutdownGrace  = 10 * time.Second
)

// Server serves the session API for one workflow.
type Server struct {
	wf  *workflow.Workflow
	app *fiber.App

	// background runs are bound to runCtx and cancelled on shutdown
	runCtx    context.Context
	cancelRun context.CancelFunc
	wg        sync.WaitGroup

	mu      sync.Mutex
	running map[string]bool
}

// New builds the server and its routes.
func New(wf *workflow.Workflow) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		wf:        wf,
		runCtx:    ctx,
		cancelRun: cancel,
		running:   make(map[string]bool),
	}
	s.app = fiber.New(fiber.Config{
		AppName:               "jobprep",
		BodyLimit:             MaxUploadBytes,
		DisableStartupMessage: true,
		ErrorHandler:          errorHandler,
	})
	s.routes()
	return s
}

// App returns the fiber app, for tests and embedding.
func (s *Server) App() *fiber.App { return s.app }

func (s *Server) routes() {
	s.app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	api := s.app.Group("/api/sessions")
	api.Post("/", s.createSession)
	api.Get("/", s.listSessions)
	api.Get("/:id", s.getSession)
	api.Delete("/:id", s.deleteSession)
	api.Get("/:id/history", s.getHistory)
	api.Post("/:id/approve", s.approve)
	api.Post("/:id/retry", s.retry)
	api.Get("/:id/resume.md", s.download(workflow.ResumeFile, func(st workflow.State) string { return st.TailoredResume }))
	api.Get("/:id/interview.md", s.download(workflow.InterviewFile, func(st workflow.State) string { return st.InterviewMaterials }))
}

// Start listens on addr until ctx is cancelled or the listener fails, then
// shuts down and cancels background runs. Cancelled runs are checkpointed as
// failed and can be retried.
func (s *Server) Start(ctx context.Context, addr string) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		clog.Info("listening", "addr", addr)
		if err := s.app.Listen(addr); err != nil {
			return fmt.Errorf("listen %s: %w", addr, err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		clog.Info("shutting down")
		err := s.app.ShutdownWithTimeout(shutdownGrace)
		s.cancelRun()
		s.Wait()
		return err
	})

	return g.Wait()
}

// Wait blocks until background runs finish.
func (s *Server) Wait() {
	s.wg.Wait()
}

// spawn runs fn in the background under the thread's running mark.
// It fails with ErrThreadBusy when the thread is already marked.
func (s *Server) spawn(id string, fn func(ctx context.Context) (*workflow.Snapshot, error)) error {
	s.mu.Lock()
	if s.running[id] || s.wf.Busy(id) {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", workflow.ErrThreadBusy, id)
	}
	s.running[id] = true
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			s.mu.Lock()
			delete(s.running, id)
			s.mu.Unlock()
		}()

		snap, err := fn(s.runCtx)
		if err != nil {
			clog.Error("session failed", "thread", id, "error", err)
			return
		}
		clog.Info("session updated", "thread", id, "status", snap.Status, "next", snap.Next)
	}()
	return nil
}

func (s *Server) isRunning(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running[id]
}

type createReq struct {
	JobURL     string `json:"job_url" form:"job_url"`
	JobPosting string `json:"job_posting" form:"job_posting"`
	GitHubURL  string `json:"github_url" form:"github_url"`
	ResumeText string `json:"resume_text" form:"resume_text"`
	Summary    string `json:"summary" form:"summary"`
}

func (s *Server) createSession(c *fiber.Ctx) error {
	var req createReq
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid payload")
	}

	if fh, err := c.FormFile("resume"); err == nil {
		f, err := fh.Open()
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "unreadable résumé upload")
		}
		data, err := io.ReadAll(f)
		_ = f.Close()
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "unreadable résumé upload")
		}
		text, err := resume.Extract(fh.Filename, data)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}
		req.ResumeText = text
	}

	in := workflow.Input(req)
	if err := in.Validate(); err != nil {
		return err
	}

	id := uuid.NewString()
	if err := s.spawn(id, func(ctx context.Context) (*workflow.Snapshot, error) {
		return s.wf.Start(ctx, id, in)
	}); err != nil {
		return err
	}
	clog.Info("session started", "thread", id)
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"thread_id": id, "status": "running"})
}

type sessionView struct {
	ThreadID  string          `json:"thread_id"`
	Status    string          `json:"status"`
	Next      string          `json:"next,omitempty"`
	Step      int             `json:"step"`
	Error     string          `json:"error,omitempty"`
	Title     string          `json:"title,omitempty"`
	UpdatedAt time.Time       `json:"updated_at"`
	State     *workflow.State `json:"state,omitempty"`
}

func (s *Server) view(snap *workflow.Snapshot, withState bool) sessionView {
	v := sessionView{
		ThreadID:  snap.ThreadID,
		Status:    string(snap.Status),
		Next:      snap.Next,
		Step:      snap.Step,
		Error:     snap.Error,
		UpdatedAt: snap.UpdatedAt,
	}
	if len(snap.State.JobRequirements) > 0 {
		v.Title = s.wf.Schema().GetTitle(snap.State.JobRequirements)
	}
	if s.isRunning(snap.ThreadID) {
		v.Status = "running"
	}
	if withState {
		st := snap.State
		v.State = &st
	}
	return v
}

func (s *Server) listSessions(c *fiber.Ctx) error {
	snaps, err := s.wf.Threads(c.UserContext())
	if err != nil {
		return err
	}
	out := make([]sessionView, 0, len(snaps))
	for _, snap := range snaps {
		out = append(out, s.view(snap, false))
	}
	return c.JSON(out)
}

func (s *Server) getSession(c *fiber.Ctx) error {
	id := c.Params("id")
	snap, err := s.wf.State(c.UserContext(), id)
	if errors.Is(err, workflow.ErrNotFound) && s.isRunning(id) {
		// started but no step has finished yet
		return c.JSON(sessionView{ThreadID: id, Status: "running"})
	}
	if err != nil {
		return err
	}
	return c.JSON(s.view(snap, true))
}

type historyEntry struct {
	Step      int       `json:"step"`
	Node      string    `json:"node,omitempty"`
	Next      string    `json:"next,omitempty"`
	Status    string    `json:"status"`
	Error     string    `json:"error,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (s *Server) getHistory(c *fiber.Ctx) error {
	hist, err := s.wf.History(c.UserContext(), c.Params("id"))
	if err != nil {
		return err
	}
	out := make([]historyEntry, 0, len(hist))
	for _, h := range hist {
		out = append(out, historyEntry{
			Step:      h.Step,
			Node:      h.Node,
			Next:      h.Next,
			Status:    string(h.Status),
			Error:     h.Error,
			UpdatedAt: h.UpdatedAt,
		})
	}
	return c.JSON(out)
}

func (s *Server) approve(c *fiber.Ctx) error {
	id := c.Params("id")
	var d workflow.Decision
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&d); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid payload")
		}
	}

	if s.isRunning(id) {
		return fmt.Errorf("%w: %s", workflow.ErrThreadBusy, id)
	}
	snap, err := s.wf.State(c.UserContext(), id)
	if err != nil {
		return err
	}
	if !snap.Interrupted() {
		return fmt.Errorf("%w: %s is %s", workflow.ErrNotAwaiting, id, snap.Status)
	}

	if err := s.spawn(id, func(ctx context.Context) (*workflow.Snapshot, error) {
		return s.wf.Decide(ctx, id, d)
	}); err != nil {
		return err
	}
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"thread_id": id, "status": "running", "approved": d.Approve})
}

func (s *Server) retry(c *fiber.Ctx) error {
	id := c.Params("id")
	if s.isRunning(id) {
		return fmt.Errorf("%w: %s", workflow.ErrThreadBusy, id)
	}
	snap, err := s.wf.State(c.UserContext(), id)
	if err != nil {
		return err
	}
	if snap.Status != checkpoint.StatusFailed {
		return fmt.Errorf("%w: %s is %s", workflow.ErrNotFailed, id, snap.Status)
	}
	if err := s.spawn(id, func(ctx context.Context) (*workflow.Snapshot, error) {
		return s.wf.Retry(ctx, id)
	}); err != nil {
		return err
	}
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"thread_id": id, "status": "running"})
}

func (s *Server) download(name string, content func(workflow.State) string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := c.Params("id")
		snap, err := s.wf.State(c.UserContext(), id)
		if err != nil {
			return err
		}
		body := strings.TrimSpace(content(snap.State))
		if body == "" {
			return fiber.NewError(fiber.StatusConflict, name+" is not available yet")
		}
		c.Attachment(name)
		c.Set(fiber.HeaderContentType, "text/markdown; charset=utf-8")
		return c.SendString(body + "\n")
	}
}

func (s *Server) deleteSession(c *fiber.Ctx) error {
	id := c.Params("id")
	if s.isRunning(id) {
		return fmt.Errorf("%w: %s", workflow.ErrThreadBusy, id)
	}
	if err := s.wf.Delete(c.UserContext(), id); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// errorHandler maps workflow errors to HTTP statuses.
func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var fe *fiber.Error
	switch {
	case errors.As(err, &fe):
		code = fe.Code
	case errors.Is(err, workflow.ErrNotFound):
		code = fiber.StatusNotFound
	case errors.Is(err, workflow.ErrThreadBusy),
		errors.Is(err, workflow.ErrThreadExists),
		errors.Is(err, workflow.ErrNotAwaiting),
		errors.Is(err, workflow.ErrNotFailed):
		code = fiber.StatusConflict
	case errors.Is(err, workflow.ErrNoResume),
		errors.Is(err, workflow.ErrNoJob):
		code = fiber.StatusBadRequest
	}

	msg := err.Error()
	if code == fiber.StatusInternalServerError {
		clog.Error("request failed", "method", c.Method(), "path", c.Path(), "error", err)
		msg = "internal error"
	}
	return c.Status(code).JSON(fiber.Map{"error": msg})
}
