package api

import (
	"context"
	"net/http"
)

// AgentProfile is the human agent's account.
type AgentProfile struct {
	ID                 string   `json:"_id,omitempty"`
	Name               string   `json:"name"`
	Email              string   `json:"email"`
	Status             string   `json:"status,omitempty"`
	Skills             []string `json:"skills,omitempty"`
	MaxConcurrentChats int      `json:"maxConcurrentChats,omitempty"`
}

// ProfileUpdate carries the editable profile fields. Nil fields are left
// unchanged.
type ProfileUpdate struct {
	Name               *string  `json:"name,omitempty"`
	Status             *string  `json:"status,omitempty"`
	Skills             []string `json:"skills,omitempty"`
	MaxConcurrentChats *int     `json:"maxConcurrentChats,omitempty"`
}

// AgentStats is the agent dashboard summary.
type AgentStats struct {
	TotalHandled        int     `json:"totalHandled"`
	ActiveChats         int     `json:"activeChats"`
	PendingRequests     int     `json:"pendingRequests"`
	ResolvedToday       int     `json:"resolvedToday"`
	AverageRating       float64 `json:"averageRating"`
	AverageResponseSecs float64 `json:"averageResponseTime"`
}

// AgentBot is a bot the agent is assigned to, with its open handoffs.
type AgentBot struct {
	ID              string           `json:"_id"`
	Name            string           `json:"name"`
	PendingHandoffs []HandoffSession `json:"pendingHandoffs,omitempty"`
	ActiveHandoffs  []HandoffSession `json:"activeHandoffs,omitempty"`
}

// LoginResponse is returned by Login.
type LoginResponse struct {
	Token string       `json:"token"`
	Agent AgentProfile `json:"agent"`
}

// Login authenticates a human agent and stores the returned token on the
// client.
func (c *Client) Login(ctx context.Context, email, password string) (*LoginResponse, error) {
	var resp LoginResponse
	body := map[string]string{"email": email, "password": password}
	if err := c.do(ctx, "agent.login", http.MethodPost, "/api/human-agent/login", body, &resp); err != nil {
		return nil, err
	}
	c.SetToken(resp.Token)
	return &resp, nil
}

func (c *Client) requireToken() error {
	if c.Token() == "" {
		return ErrUnauthenticated
	}
	return nil
}

// Profile returns the logged-in agent's profile.
func (c *Client) Profile(ctx context.Context) (*AgentProfile, error) {
	if err := c.requireToken(); err != nil {
		return nil, err
	}
	var resp AgentProfile
	if err := c.do(ctx, "agent.profile", http.MethodGet, "/api/human-agent/profile", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// UpdateProfile edits the logged-in agent's profile.
func (c *Client) UpdateProfile(ctx context.Context, update ProfileUpdate) (*AgentProfile, error) {
	if err := c.requireToken(); err != nil {
		return nil, err
	}
	var resp AgentProfile
	if err := c.do(ctx, "agent.profile_update", http.MethodPut, "/api/human-agent/profile", update, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Stats returns the agent dashboard counters.
func (c *Client) Stats(ctx context.Context) (*AgentStats, error) {
	if err := c.requireToken(); err != nil {
		return nil, err
	}
	var resp AgentStats
	if err := c.do(ctx, "agent.stats", http.MethodGet, "/api/human-agent/stats", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// AgentBots lists the bots assigned to the agent.
func (c *Client) AgentBots(ctx context.Context) ([]AgentBot, error) {
	if err := c.requireToken(); err != nil {
		return nil, err
	}
	var resp struct {
		Bots []AgentBot `json:"bots"`
	}
	if err := c.do(ctx, "agent.bots", http.MethodGet, "/api/human-agent/bots", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Bots, nil
}

// Handoff fetches a handoff with its messages, agent side.
func (c *Client) Handoff(ctx context.Context, handoffID string) (*HandoffSession, error) {
	if err := c.requireToken(); err != nil {
		return nil, err
	}
	var resp HandoffSession
	if err := c.do(ctx, "handoff.get", http.MethodGet, "/api/handoff/"+escape(handoffID), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// AcceptHandoff assigns a pending handoff to the logged-in agent.
func (c *Client) AcceptHandoff(ctx context.Context, handoffID string) (*HandoffSession, error) {
	if err := c.requireToken(); err != nil {
		return nil, err
	}
	var resp HandoffSession
	path := "/api/handoff/" + escape(handoffID) + "/accept"
	if err := c.do(ctx, "handoff.accept", http.MethodPost, path, struct{}{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// SendAgentMessage posts an agent message into a handoff.
func (c *Client) SendAgentMessage(ctx context.Context, handoffID, content string) error {
	if err := c.requireToken(); err != nil {
		return err
	}
	path := "/api/handoff/" + escape(handoffID) + "/message"
	return c.do(ctx, "handoff.message", http.MethodPost, path, map[string]string{"content": content}, nil)
}

// ResolveHandoff closes a handoff from the agent's side.
func (c *Client) ResolveHandoff(ctx context.Context, handoffID string) (string, error) {
	if err := c.requireToken(); err != nil {
		return "", err
	}
	return c.postStatus(ctx, "handoff.resolve", "/api/handoff/"+escape(handoffID)+"/resolve")
}
