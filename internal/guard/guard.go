package guard

import (
	"fmt"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
)

// Capture error policies.
const (
	OnErrorSkip  = "skip"
	OnErrorAbort = "abort"
)

// Policy defines the limits and scopes for a capture session.
type Policy struct {
	Interval           time.Duration `json:"interval"`
	MaxSessionDuration time.Duration `json:"max_session_duration"`
	MaxIterations      int           `json:"max_iterations"` // 0 means bounded by duration only
	ExcludedWindows    []string      `json:"excluded_windows"`
	OnCaptureError     string        `json:"on_capture_error"`
}

// DefaultPolicy provides the standard eight hour, one minute cadence.
var DefaultPolicy = Policy{
	Interval:           60 * time.Second,
	MaxSessionDuration: 480 * time.Minute,
	OnCaptureError:     OnErrorSkip,
}

// Violation represents a specific breach of policy.
type Violation struct {
	Rule    string
	Message string
	Fatal   bool
}

func (v *Violation) Error() string {
	return v.Rule + ": " + v.Message
}

// Guard enforces the policy.
type Guard struct {
	policy Policy
}

func New(p Policy) *Guard {
	return &Guard{policy: p}
}

// Policy returns the guard's current policy configuration.
func (g *Guard) Policy() Policy {
	return g.policy
}

// MinInterval is the shortest capture interval Validate accepts.
const MinInterval = time.Second

// Validate reports the first setting that would make the loop misbehave.
func (g *Guard) Validate() *Violation {
	if g.policy.Interval <= 0 {
		return &Violation{Rule: "interval", Message: "Capture interval must be positive", Fatal: true}
	}
	// Timestamps and artifact names have second precision.
	if g.policy.Interval < MinInterval {
		return &Violation{Rule: "interval", Message: fmt.Sprintf("Capture interval must be at least %s", MinInterval), Fatal: true}
	}
	if g.policy.MaxSessionDuration <= 0 {
		return &Violation{Rule: "max_session_duration", Message: "Session duration must be positive", Fatal: true}
	}
	switch g.policy.OnCaptureError {
	case "", OnErrorSkip, OnErrorAbort:
	default:
		return &Violation{Rule: "on_capture_error", Message: "Unknown capture error policy: " + g.policy.OnCaptureError, Fatal: true}
	}
	for _, pattern := range g.policy.ExcludedWindows {
		if !doublestar.ValidatePattern(pattern) {
			return &Violation{Rule: "excluded_windows", Message: "Invalid window pattern: " + pattern, Fatal: true}
		}
	}
	return nil
}

// CheckElapsed ends the session once the duration budget is spent.
func (g *Guard) CheckElapsed(elapsed time.Duration) *Violation {
	if elapsed >= g.policy.MaxSessionDuration {
		return &Violation{
			Rule:    "max_session_duration",
			Message: fmt.Sprintf("Session duration of %s reached", g.policy.MaxSessionDuration),
			Fatal:   true,
		}
	}
	return nil
}

// CheckIterations verifies the iteration cap, if any.
func (g *Guard) CheckIterations(iterations int) *Violation {
	if g.policy.MaxIterations > 0 && iterations > g.policy.MaxIterations {
		return &Violation{Rule: "max_iterations", Message: "Iteration limit exceeded", Fatal: true}
	}
	return nil
}

// CheckWindow rejects windows whose title matches an excluded glob.
// Matching is case-insensitive and slashes in titles are flattened so a
// single * spans the whole title.
func (g *Guard) CheckWindow(title string) *Violation {
	flat := strings.ToLower(strings.ReplaceAll(title, "/", " "))
	for _, pattern := range g.policy.ExcludedWindows {
		match, err := doublestar.Match(strings.ToLower(pattern), flat)
		if err == nil && match {
			return &Violation{Rule: "excluded_windows", Message: "Window excluded: " + title}
		}
	}
	return nil
}

// AbortOnError reports whether a capture failure should end the session.
func (g *Guard) AbortOnError() bool {
	return g.policy.OnCaptureError == OnErrorAbort
}
