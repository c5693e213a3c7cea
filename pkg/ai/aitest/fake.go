// Package aitest provides scripted model clients for tests.
package aitest

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// Call records one prompt sent to a Fake.
type Call struct {
	System string
	User   string
}

// Responder produces a reply for a prompt. Returning an error simulates a failed API call.
type Responder func(system, user string) (string, error)

// Fake is an ai.CachingClient whose replies are chosen by the first rule
// whose marker appears in the system or user prompt.
type Fake struct {
	mu     sync.Mutex
	rules  []rule
	calls  []Call
	closed bool
}

type rule struct {
	marker string
	reply  Responder
}

// NewFake returns an empty Fake; unmatched prompts produce an error.
func NewFake() *Fake {
	return &Fake{}
}

// On registers a fixed reply for prompts containing marker.
func (f *Fake) On(marker, reply string) *Fake {
	return f.OnFunc(marker, func(string, string) (string, error) { return reply, nil })
}

// OnSequence replies with each element in turn, repeating the last one.
func (f *Fake) OnSequence(marker string, replies ...string) *Fake {
	var n int
	return f.OnFunc(marker, func(string, string) (string, error) {
		i := n
		if i >= len(replies) {
			i = len(replies) - 1
		}
		n++
		return replies[i], nil
	})
}

// OnFunc registers a responder for prompts containing marker.
func (f *Fake) OnFunc(marker string, r Responder) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rules = append(f.rules, rule{marker: marker, reply: r})
	return f
}

func (f *Fake) GenerateContent(ctx context.Context, prompt string) (string, error) {
	return f.GenerateContentWithSystem(ctx, "", prompt)
}

func (f *Fake) GenerateContentWithSystem(ctx context.Context, system, user string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	f.mu.Lock()
	f.calls = append(f.calls, Call{System: system, User: user})
	var match Responder
	for _, r := range f.rules {
		if strings.Contains(system, r.marker) || strings.Contains(user, r.marker) {
			match = r.reply
			break
		}
	}
	f.mu.Unlock()

	if match == nil {
		return "", fmt.Errorf("aitest: no reply registered for prompt %.80q", user)
	}
	return match(system, user)
}

func (f *Fake) Close() {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
}

// Calls returns a copy of the recorded prompts.
func (f *Fake) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

// CountMatching counts recorded prompts containing marker.
func (f *Fake) CountMatching(marker string) int {
	n := 0
	for _, c := range f.Calls() {
		if strings.Contains(c.System, marker) || strings.Contains(c.User, marker) {
			n++
		}
	}
	return n
}

// Closed reports whether Close was called.
func (f *Fake) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}
