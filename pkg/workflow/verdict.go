package workflow

import (
	"strings"
	"unicode"

	"github.com/tidwall/gjson"

	"github.com/xrsl/jobprep/pkg/ai"
)

// Verdict is the reviewer's judgement of a tailored résumé.
type Verdict struct {
	Approved bool
	Feedback string
	// Parsed is false when the reply matched no known shape and was treated
	// as a rejection.
	Parsed bool
}

// ParseVerdict reads {"approved": bool, "feedback": "..."} from a model
// reply, falling back to a leading yes/no. Unrecognized replies reject.
func ParseVerdict(resp string) Verdict {
	if obj := ai.CleanJSON(resp); gjson.Valid(obj) {
		r := gjson.Parse(obj)
		if approved := firstOf(r, "approved", "approve", "valid", "verdict"); approved.Exists() {
			return Verdict{
				Approved: truthy(approved),
				Feedback: strings.TrimSpace(firstOf(r, "feedback", "reason", "reasoning", "comments").String()),
				Parsed:   true,
			}
		}
	}

	text := strings.TrimSpace(ai.CleanMarkdown(resp))
	word, rest := splitFirstWord(text)
	switch strings.ToLower(word) {
	case "yes", "approved", "approve", "true", "pass":
		return Verdict{Approved: true, Feedback: rest, Parsed: true}
	case "no", "rejected", "reject", "false", "fail":
		return Verdict{Approved: false, Feedback: rest, Parsed: true}
	}

	return Verdict{Approved: false, Feedback: truncate(text, 500)}
}

func firstOf(r gjson.Result, paths ...string) gjson.Result {
	for _, p := range paths {
		if v := r.Get(p); v.Exists() {
			return v
		}
	}
	return gjson.Result{}
}

func truthy(v gjson.Result) bool {
	if v.Type == gjson.String {
		switch strings.ToLower(strings.TrimSpace(v.Str)) {
		case "yes", "true", "approved", "approve", "pass":
			return true
		}
		return false
	}
	return v.Bool()
}

func splitFirstWord(s string) (string, string) {
	s = strings.TrimLeftFunc(s, func(r rune) bool { return !unicode.IsLetter(r) })
	end := strings.IndexFunc(s, func(r rune) bool { return !unicode.IsLetter(r) })
	if end == -1 {
		return s, ""
	}
	rest := strings.TrimLeftFunc(s[end:], func(r rune) bool {
		return unicode.IsSpace(r) || unicode.IsPunct(r)
	})
	return s[:end], strings.TrimSpace(rest)
}
