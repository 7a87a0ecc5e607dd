package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"

	"github.com/CHIRAG137/tasteAI-Studio-Gemini-Frontend-sub000/internal/transcript"
)

// FlowMessage is one bot output of a flow step.
type FlowMessage struct {
	Type     string          `json:"type"`
	Content  json.RawMessage `json:"content,omitempty"`
	Options  json.RawMessage `json:"options,omitempty"`
	NodeID   string          `json:"nodeId,omitempty"`
	AudioURL string          `json:"audioUrl,omitempty"`
}

// Input kinds the flow engine may wait for.
const (
	InputText         = "text"
	InputOptions      = "options"
	InputBranch       = "branch"
	InputConfirmation = "confirmation"
)

// AwaitingInput describes what the flow is waiting for. The backend sends
// null, a boolean, a bare type string or an object.
type AwaitingInput struct {
	Active  bool
	Type    string
	NodeID  string
	Options []string
}

func (a *AwaitingInput) UnmarshalJSON(data []byte) error {
	*a = AwaitingInput{}
	data = bytes.TrimSpace(data)

	switch {
	case len(data) == 0, bytes.Equal(data, []byte("null")), bytes.Equal(data, []byte("false")):
		return nil
	case bytes.Equal(data, []byte("true")):
		a.Active = true
		a.Type = InputText
		return nil
	case data[0] == '"':
		var typ string
		if err := json.Unmarshal(data, &typ); err != nil {
			return err
		}
		a.Active = typ != ""
		a.Type = typ
		return nil
	}

	var obj struct {
		Type    string          `json:"type"`
		NodeID  string          `json:"nodeId"`
		Options json.RawMessage `json:"options"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	a.Active = true
	a.Type = obj.Type
	if a.Type == "" {
		a.Type = InputText
	}
	a.NodeID = obj.NodeID
	a.Options = transcript.ParseOptions(obj.Options)
	return nil
}

func (a AwaitingInput) MarshalJSON() ([]byte, error) {
	if !a.Active {
		return []byte("null"), nil
	}
	return json.Marshal(struct {
		Type    string   `json:"type"`
		NodeID  string   `json:"nodeId,omitempty"`
		Options []string `json:"options,omitempty"`
	}{a.Type, a.NodeID, a.Options})
}

// AcceptsText reports whether the flow is waiting for free-text input, as
// opposed to a button choice.
func (a AwaitingInput) AcceptsText() bool {
	if !a.Active {
		return false
	}
	switch a.Type {
	case InputOptions, InputBranch, InputConfirmation, "choice":
		return false
	}
	return true
}

// FlowResponse is returned by flow start and respond.
type FlowResponse struct {
	SessionID     string        `json:"sessionId"`
	Messages      []FlowMessage `json:"messages"`
	AwaitingInput AwaitingInput `json:"awaitingInput"`
	Finished      bool          `json:"finished"`
}

// RespondRequest carries either free text or a branch choice.
type RespondRequest struct {
	Input              *string `json:"input,omitempty"`
	OptionIndexOrLabel any     `json:"optionIndexOrLabel,omitempty"`
}

// StartFlow starts a flow session for botID.
func (c *Client) StartFlow(ctx context.Context, botID string) (*FlowResponse, error) {
	var resp FlowResponse
	if err := c.do(ctx, "flow.start", http.MethodPost, "/api/flow/start/"+escape(botID), struct{}{}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// RespondText answers the current flow node with free text.
func (c *Client) RespondText(ctx context.Context, sessionID, input string) (*FlowResponse, error) {
	return c.respond(ctx, sessionID, RespondRequest{Input: &input})
}

// RespondOption answers the current flow node with an option index (int)
// or label (string).
func (c *Client) RespondOption(ctx context.Context, sessionID string, indexOrLabel any) (*FlowResponse, error) {
	return c.respond(ctx, sessionID, RespondRequest{OptionIndexOrLabel: indexOrLabel})
}

func (c *Client) respond(ctx context.Context, sessionID string, body RespondRequest) (*FlowResponse, error) {
	var resp FlowResponse
	path := "/api/flow/session/" + escape(sessionID) + "/respond"
	if err := c.do(ctx, "flow.respond", http.MethodPost, path, body, &resp); err != nil {
		return nil, err
	}
	if resp.SessionID == "" {
		resp.SessionID = sessionID
	}
	return &resp, nil
}

// AskRequest is a free-form QA question.
type AskRequest struct {
	Question      string `json:"question"`
	BotID         string `json:"botId"`
	FlowSessionID string `json:"flowSessionId,omitempty"`
}

type askResponse struct {
	Result struct {
		Answer string `json:"answer"`
	} `json:"result"`
}

// Ask sends a QA question and returns the answer.
func (c *Client) Ask(ctx context.Context, req AskRequest) (string, error) {
	var resp askResponse
	if err := c.do(ctx, "bots.ask", http.MethodPost, "/api/bots/ask", req, &resp); err != nil {
		return "", err
	}
	return resp.Result.Answer, nil
}

// Summarize asks the backend to summarize text.
func (c *Client) Summarize(ctx context.Context, text string) (string, error) {
	var resp struct {
		Summary string `json:"summary"`
	}
	if err := c.do(ctx, "summarize", http.MethodPost, "/api/summarize", map[string]string{"text": text}, &resp); err != nil {
		return "", err
	}
	return resp.Summary, nil
}
