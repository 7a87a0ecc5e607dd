package api

import (
	"context"
	"net/http"

	"github.com/CHIRAG137/tasteAI-Studio-Gemini-Frontend-sub000/internal/transcript"
)

// BotConfig is the bot document as stored by the backend. The editor
// round-trips it without interpreting most fields.
type BotConfig map[string]any

// Name returns the bot's display name when present.
func (b BotConfig) Name() string {
	name, _ := b["name"].(string)
	return name
}

// HistorySession summarizes one recorded conversation of a bot.
type HistorySession struct {
	SessionID    string               `json:"sessionId"`
	StartedAt    transcript.Timestamp `json:"startedAt"`
	LastActivity transcript.Timestamp `json:"lastActivity"`
	MessageCount int                  `json:"messageCount"`
	HadHandoff   bool                 `json:"hadHandoff,omitempty"`
}

// GetBot fetches a bot's configuration.
func (c *Client) GetBot(ctx context.Context, botID string) (BotConfig, error) {
	var bot BotConfig
	if err := c.do(ctx, "bots.get", http.MethodGet, "/api/bots/"+escape(botID), nil, &bot); err != nil {
		return nil, err
	}
	return bot, nil
}

// UpdateBot replaces a bot's configuration and returns the stored version.
func (c *Client) UpdateBot(ctx context.Context, botID string, bot BotConfig) (BotConfig, error) {
	var updated BotConfig
	if err := c.do(ctx, "bots.update", http.MethodPut, "/api/bots/"+escape(botID), bot, &updated); err != nil {
		return nil, err
	}
	return updated, nil
}

// History lists the recorded sessions of a bot.
func (c *Client) History(ctx context.Context, botID string) ([]HistorySession, error) {
	var resp struct {
		Sessions []HistorySession `json:"sessions"`
	}
	if err := c.do(ctx, "bots.history", http.MethodGet, "/api/bots/"+escape(botID)+"/history", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Sessions, nil
}

// SessionHistory fetches the raw history log of one session.
func (c *Client) SessionHistory(ctx context.Context, botID, sessionID string) ([]transcript.HistoryEntry, error) {
	var resp struct {
		History []transcript.HistoryEntry `json:"history"`
	}
	path := "/api/bots/" + escape(botID) + "/history/" + escape(sessionID)
	if err := c.do(ctx, "bots.session_history", http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.History, nil
}
