package handoff

import (
	"fmt"
	"strings"
	"sync"

	"github.com/CHIRAG137/tasteAI-Studio-Gemini-Frontend-sub000/internal/transcript"
)

// Status is the backend-assigned handoff status.
type Status string

const (
	StatusNone     Status = ""
	StatusPending  Status = "pending"
	StatusActive   Status = "active"
	StatusResolved Status = "resolved"
	// StatusReopened is only ever reported in reply to a client reopen. It
	// is treated as pending.
	StatusReopened Status = "reopened"
)

// ParseStatus maps a backend status string. Unknown values keep their text
// so they can be logged, but never match a transition.
func ParseStatus(s string) Status {
	return Status(strings.ToLower(strings.TrimSpace(s)))
}

// Normalize folds reopened into pending.
func (s Status) Normalize() Status {
	if s == StatusReopened {
		return StatusPending
	}
	return s
}

// Session is the client-side view of a handoff. The backend is
// authoritative; this only mirrors what the last poll reported.
type Session struct {
	ID                 string
	Status             Status
	Reopened           bool
	AssignedAgentEmail string
}

// IsConnectedToAgent reports whether an agent is actively chatting.
func (s Session) IsConnectedToAgent() bool {
	return s.Status == StatusActive
}

// Tracker remembers the last status it acted on, so that each transition
// produces exactly one system message no matter how many polls report it.
type Tracker struct {
	mu      sync.Mutex
	session Session
	viewer  transcript.Sender
}

// NewTracker starts tracking handoff id in the pending state. Notices are
// worded for viewer: the end user or the agent.
func NewTracker(id string, viewer transcript.Sender) *Tracker {
	return &Tracker{session: Session{ID: id, Status: StatusPending}, viewer: viewer}
}

// Session returns the current view model.
func (t *Tracker) Session() Session {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.session
}

// Observe feeds a freshly fetched status. It returns the system message
// for the transition, if the status changed since the last observation.
func (t *Tracker) Observe(status Status, agentEmail string) (transcript.Message, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if agentEmail != "" {
		t.session.AssignedAgentEmail = agentEmail
	}

	reopened := status == StatusReopened
	next := status.Normalize()
	prev := t.session.Status
	if next == StatusNone || next == prev {
		return transcript.Message{}, false
	}

	switch next {
	case StatusPending, StatusActive, StatusResolved:
	default:
		return transcript.Message{}, false
	}

	t.session.Status = next
	if reopened || (prev == StatusResolved && next == StatusPending) {
		t.session.Reopened = true
	}

	text := transitionText(prev, next, t.session.AssignedAgentEmail)
	if t.viewer == transcript.SenderAgent {
		text = agentTransitionText(prev, next)
	}
	if text == "" {
		return transcript.Message{}, false
	}
	return transcript.NewSystemMessage(text), true
}

func transitionText(prev, next Status, agentEmail string) string {
	switch next {
	case StatusActive:
		if agentEmail != "" {
			return fmt.Sprintf("You are now connected with %s.", agentEmail)
		}
		return "You are now connected with a human agent."
	case StatusResolved:
		return "The agent marked this conversation as resolved. You can rate the conversation or reopen it."
	case StatusPending:
		if prev == StatusResolved {
			return "The conversation was reopened. Waiting for an agent..."
		}
		if prev == StatusActive {
			return "The agent left the conversation. Waiting for another agent..."
		}
	}
	return ""
}

func agentTransitionText(prev, next Status) string {
	switch next {
	case StatusActive:
		return "You joined the conversation. The customer can see your replies."
	case StatusResolved:
		return "This conversation is resolved."
	case StatusPending:
		if prev == StatusResolved {
			return "The customer reopened this conversation."
		}
		if prev == StatusActive {
			return "This conversation is back in the queue."
		}
	}
	return ""
}
