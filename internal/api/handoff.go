package api

import (
	"context"
	"net/http"

	"github.com/CHIRAG137/tasteAI-Studio-Gemini-Frontend-sub000/internal/transcript"
)

// AgentRef identifies the agent assigned to a handoff.
type AgentRef struct {
	ID    string `json:"_id,omitempty"`
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
}

// HandoffSession is the backend's handoff record.
type HandoffSession struct {
	ID            string                     `json:"_id"`
	BotID         string                     `json:"botId,omitempty"`
	FlowSessionID string                     `json:"flowSessionId,omitempty"`
	Status        string                     `json:"status"`
	Reason        string                     `json:"reason,omitempty"`
	UserName      string                     `json:"userName,omitempty"`
	UserEmail     string                     `json:"userEmail,omitempty"`
	AssignedAgent *AgentRef                  `json:"assignedAgent,omitempty"`
	Messages      []transcript.PolledMessage `json:"messages,omitempty"`
	CreatedAt     transcript.Timestamp       `json:"createdAt"`
}

// AgentEmail returns the assigned agent's email, if any.
func (h HandoffSession) AgentEmail() string {
	if h.AssignedAgent == nil {
		return ""
	}
	return h.AssignedAgent.Email
}

// HandoffRequest asks for a human agent.
type HandoffRequest struct {
	BotID         string `json:"botId"`
	FlowSessionID string `json:"flowSessionId,omitempty"`
	Reason        string `json:"reason,omitempty"`
	UserName      string `json:"userName,omitempty"`
	UserEmail     string `json:"userEmail,omitempty"`
}

// HandoffRequestResponse is returned by RequestHandoff.
type HandoffRequestResponse struct {
	HandoffSessionID string          `json:"handoffSessionId"`
	Status           string          `json:"status"`
	Session          *HandoffSession `json:"handoffSession,omitempty"`
}

// ID returns the new handoff session id regardless of which field the
// backend filled in.
func (r HandoffRequestResponse) ID() string {
	if r.HandoffSessionID != "" {
		return r.HandoffSessionID
	}
	if r.Session != nil {
		return r.Session.ID
	}
	return ""
}

// ClientMessages is the client-side poll payload.
type ClientMessages struct {
	Messages           []transcript.PolledMessage `json:"messages"`
	Status             string                     `json:"status"`
	AssignedAgent      *AgentRef                  `json:"assignedAgent,omitempty"`
	AssignedAgentEmail string                     `json:"assignedAgentEmail,omitempty"`
}

// AgentEmail returns the assigned agent's email, if any.
func (m ClientMessages) AgentEmail() string {
	if m.AssignedAgentEmail != "" {
		return m.AssignedAgentEmail
	}
	if m.AssignedAgent != nil {
		return m.AssignedAgent.Email
	}
	return ""
}

// Rating is a 1-5 star satisfaction rating for a resolved handoff.
type Rating struct {
	Rating   int    `json:"rating"`
	Feedback string `json:"feedback,omitempty"`
}

type statusResponse struct {
	Status string `json:"status"`
}

// RequestHandoff asks the backend to route the conversation to a human.
func (c *Client) RequestHandoff(ctx context.Context, req HandoffRequest) (*HandoffRequestResponse, error) {
	var resp HandoffRequestResponse
	if err := c.do(ctx, "handoff.request", http.MethodPost, "/api/handoff/request", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ClientMessages fetches the messages and status of a handoff, client side.
func (c *Client) ClientMessages(ctx context.Context, handoffID string) (*ClientMessages, error) {
	var resp ClientMessages
	path := "/api/handoff/" + escape(handoffID) + "/client-messages"
	if err := c.do(ctx, "handoff.client_messages", http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SendClientMessage posts a user message into a handoff.
func (c *Client) SendClientMessage(ctx context.Context, handoffID, content string) error {
	path := "/api/handoff/" + escape(handoffID) + "/client-message"
	return c.do(ctx, "handoff.client_message", http.MethodPost, path, map[string]string{"content": content}, nil)
}

// ClientResolve closes a handoff from the user's side.
func (c *Client) ClientResolve(ctx context.Context, handoffID string) (string, error) {
	return c.postStatus(ctx, "handoff.client_resolve", "/api/handoff/"+escape(handoffID)+"/client-resolve")
}

// ClientReopen reopens a resolved handoff.
func (c *Client) ClientReopen(ctx context.Context, handoffID string) (string, error) {
	return c.postStatus(ctx, "handoff.client_reopen", "/api/handoff/"+escape(handoffID)+"/client-reopen")
}

func (c *Client) postStatus(ctx context.Context, op, path string) (string, error) {
	var resp statusResponse
	if err := c.do(ctx, op, http.MethodPost, path, struct{}{}, &resp); err != nil {
		return "", err
	}
	return resp.Status, nil
}

// Rate submits a satisfaction rating.
func (c *Client) Rate(ctx context.Context, handoffID string, rating Rating) error {
	path := "/api/handoff/" + escape(handoffID) + "/rate"
	return c.do(ctx, "handoff.rate", http.MethodPost, path, rating, nil)
}

// GetRating returns the rating of a handoff. A zero Rating means unrated.
func (c *Client) GetRating(ctx context.Context, handoffID string) (*Rating, error) {
	var resp Rating
	path := "/api/handoff/" + escape(handoffID) + "/rating"
	if err := c.do(ctx, "handoff.rating", http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
