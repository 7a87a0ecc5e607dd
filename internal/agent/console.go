// Package agent is the human agent's console: sign in, pick up pending
// handoffs and chat with the end user.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/CHIRAG137/tasteAI-Studio-Gemini-Frontend-sub000/internal/api"
	"github.com/CHIRAG137/tasteAI-Studio-Gemini-Frontend-sub000/internal/archive"
	"github.com/CHIRAG137/tasteAI-Studio-Gemini-Frontend-sub000/internal/cache"
	"github.com/CHIRAG137/tasteAI-Studio-Gemini-Frontend-sub000/internal/chatbot"
	"github.com/CHIRAG137/tasteAI-Studio-Gemini-Frontend-sub000/internal/config"
	"github.com/CHIRAG137/tasteAI-Studio-Gemini-Frontend-sub000/internal/handoff"
	"github.com/CHIRAG137/tasteAI-Studio-Gemini-Frontend-sub000/internal/transcript"
)

var (
	ErrNotSignedIn = errors.New("not signed in")
	ErrNoOpenChat  = errors.New("no handoff is open")
)

// Console holds the agent's session and the currently open handoff.
type Console struct {
	config  config.Config
	client  *api.Client
	archive *archive.Archive
	cache   *cache.Cache
	logger  *slog.Logger
	meter   metric.Meter

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	profile *api.AgentProfile
	store   *transcript.Store
	watcher *handoff.Watcher
	botID   string
}

// NewConsole creates a console. It reuses chatbot.Deps for its collaborators.
func NewConsole(cfg config.Config, deps chatbot.Deps) *Console {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	c := deps.Cache
	if c == nil {
		c = cache.New(10 * time.Minute)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Console{
		config:  cfg,
		client:  deps.Client,
		archive: deps.Archive,
		cache:   c,
		logger:  logger.With("component", "agent"),
		meter:   deps.Meter,
		ctx:     ctx,
		cancel:  cancel,
		store:   transcript.NewStore(),
	}
}

// Store returns the transcript of the open handoff.
func (c *Console) Store() *transcript.Store {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store
}

// Profile returns the signed-in agent, if any.
func (c *Console) Profile() *api.AgentProfile {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.profile
}

// Login signs in and remembers the token in the archive when one is set.
func (c *Console) Login(ctx context.Context, email, password string) (*api.AgentProfile, error) {
	resp, err := c.client.Login(ctx, email, password)
	if err != nil {
		return nil, fmt.Errorf("failed to sign in: %w", err)
	}
	profile := resp.Agent
	if profile.Email == "" {
		profile.Email = email
	}

	c.mu.Lock()
	c.profile = &profile
	c.mu.Unlock()

	if c.archive != nil {
		if err := c.archive.SaveToken(profile.Email, resp.Token); err != nil {
			c.logger.Warn("failed to remember token", "error", err)
		}
	}
	c.logger.Info("agent signed in", "email", profile.Email)
	return &profile, nil
}

// Resume signs in with a remembered token. A token the backend rejects is
// forgotten.
func (c *Console) Resume(ctx context.Context, email string) (*api.AgentProfile, error) {
	if c.archive == nil {
		return nil, ErrNotSignedIn
	}
	token, err := c.archive.LoadToken(email)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotSignedIn, err)
	}
	c.client.SetToken(token)

	profile, err := c.client.Profile(ctx)
	if err != nil {
		if api.IsStatus(err, http.StatusUnauthorized) {
			c.client.SetToken("")
			if delErr := c.archive.DeleteToken(email); delErr != nil {
				c.logger.Warn("failed to forget token", "error", delErr)
			}
			return nil, fmt.Errorf("%w: session expired", ErrNotSignedIn)
		}
		return nil, fmt.Errorf("failed to load profile: %w", err)
	}

	c.mu.Lock()
	c.profile = profile
	c.mu.Unlock()
	return profile, nil
}

// Logout forgets the token.
func (c *Console) Logout() error {
	c.mu.Lock()
	profile := c.profile
	c.profile = nil
	c.mu.Unlock()

	c.CloseChat()
	c.client.SetToken("")
	if c.archive != nil && profile != nil {
		return c.archive.DeleteToken(profile.Email)
	}
	return nil
}

// RefreshProfile reloads the profile from the backend.
func (c *Console) RefreshProfile(ctx context.Context) (*api.AgentProfile, error) {
	profile, err := c.client.Profile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load profile: %w", err)
	}
	c.mu.Lock()
	c.profile = profile
	c.mu.Unlock()
	return profile, nil
}

// UpdateProfile changes editable profile fields.
func (c *Console) UpdateProfile(ctx context.Context, update api.ProfileUpdate) (*api.AgentProfile, error) {
	profile, err := c.client.UpdateProfile(ctx, update)
	if err != nil {
		return nil, fmt.Errorf("failed to update profile: %w", err)
	}
	c.mu.Lock()
	c.profile = profile
	c.mu.Unlock()
	return profile, nil
}

// Stats returns dashboard numbers.
func (c *Console) Stats(ctx context.Context) (*api.AgentStats, error) {
	return c.client.Stats(ctx)
}

// Bots lists assigned bots with their open handoffs.
func (c *Console) Bots(ctx context.Context) ([]api.AgentBot, error) {
	return c.client.AgentBots(ctx)
}

// Pending returns pending handoffs across all assigned bots, oldest first.
func (c *Console) Pending(ctx context.Context) ([]api.HandoffSession, error) {
	bots, err := c.client.AgentBots(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list bots: %w", err)
	}
	var out []api.HandoffSession
	for _, bot := range bots {
		for _, h := range bot.PendingHandoffs {
			if h.BotID == "" {
				h.BotID = bot.ID
			}
			out = append(out, h)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt.Time)
	})
	return out, nil
}

// History maps a bot session's stored history to transcript messages.
func (c *Console) History(ctx context.Context, botID, sessionID string) ([]transcript.Message, error) {
	entries, err := c.client.SessionHistory(ctx, botID, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}
	return transcript.MapHistory(entries), nil
}

// Accept assigns a pending handoff to this agent and opens it.
func (c *Console) Accept(ctx context.Context, handoffID string) error {
	if _, err := c.client.AcceptHandoff(ctx, handoffID); err != nil {
		return fmt.Errorf("failed to accept handoff: %w", err)
	}
	c.logger.Info("handoff accepted", "handoff_id", handoffID)
	return c.Open(ctx, handoffID)
}

// Open loads a handoff into a fresh transcript and starts polling it. The
// bot conversation that led to the handoff is shown first; handoff entries
// of that history are left to the poller, which reports them with server
// ids.
func (c *Console) Open(ctx context.Context, handoffID string) error {
	session, err := c.client.Handoff(ctx, handoffID)
	if err != nil {
		return fmt.Errorf("failed to load handoff: %w", err)
	}

	store := transcript.NewStore()
	if session.BotID != "" && session.FlowSessionID != "" {
		entries, err := c.client.SessionHistory(ctx, session.BotID, session.FlowSessionID)
		if err != nil {
			c.logger.Warn("failed to load bot history", "error", err)
		} else {
			store.Append(transcript.MapHistory(withoutHandoff(entries))...)
		}
	}

	opts := handoff.Options{
		Interval:    c.config.PollInterval,
		MaxInterval: c.config.PollMaxInterval,
		Timeout:     c.config.PollTimeout,
		StallAfter:  c.config.StallAfter,
	}
	watcher := handoff.NewWatcher(handoffID, store, handoff.AgentFetch(c.client), transcript.SenderAgent, opts, c.logger, c.meter)

	// Agent messages are appended locally on send, so the first snapshot
	// must still bring in the earlier ones.
	store.MergePolled(transcript.FromPolled(session.Messages))
	watcher.Observe(handoff.ParseStatus(session.Status))

	c.mu.Lock()
	previous := c.watcher
	c.watcher = watcher
	c.store = store
	c.botID = session.BotID
	c.mu.Unlock()

	if previous != nil {
		previous.Stop()
	}
	watcher.Start(c.ctx)
	return nil
}

func withoutHandoff(entries []transcript.HistoryEntry) []transcript.HistoryEntry {
	out := entries[:0:0]
	for _, e := range entries {
		if e.Mode != transcript.ModeHandoff {
			out = append(out, e)
		}
	}
	return out
}

func (c *Console) open() (*handoff.Watcher, *transcript.Store, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.watcher == nil {
		return nil, nil, ErrNoOpenChat
	}
	return c.watcher, c.store, nil
}

// Session returns the open handoff's view model.
func (c *Console) Session() (handoff.Session, bool) {
	w, _, err := c.open()
	if err != nil {
		return handoff.Session{}, false
	}
	return w.Session(), true
}

// Send posts an agent message into the open handoff.
func (c *Console) Send(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	w, store, err := c.open()
	if err != nil {
		return err
	}
	if w.Session().Status == handoff.StatusResolved {
		return errors.New("handoff is resolved")
	}
	store.Append(transcript.NewMessage(transcript.SenderAgent, text))
	if err := c.client.SendAgentMessage(ctx, w.ID(), text); err != nil {
		store.Append(transcript.NewSystemMessage("Message could not be delivered."))
		return fmt.Errorf("failed to send message: %w", err)
	}
	return nil
}

// Resolve closes the open handoff.
func (c *Console) Resolve(ctx context.Context) error {
	w, _, err := c.open()
	if err != nil {
		return err
	}
	status, err := c.client.ResolveHandoff(ctx, w.ID())
	if err != nil {
		return fmt.Errorf("failed to resolve handoff: %w", err)
	}
	if status == "" {
		status = string(handoff.StatusResolved)
	}
	w.Observe(handoff.ParseStatus(status))
	return nil
}

// Summarize summarizes the open transcript.
func (c *Console) Summarize(ctx context.Context) (string, error) {
	_, store, err := c.open()
	if err != nil {
		return "", err
	}
	return chatbot.Summarize(ctx, c.client, c.cache, store.Messages())
}

// Save archives the open transcript.
func (c *Console) Save() (string, error) {
	if c.archive == nil {
		return "", nil
	}
	w, store, err := c.open()
	if err != nil {
		return "", err
	}
	c.mu.Lock()
	botID := c.botID
	c.mu.Unlock()

	id := "agent-" + w.ID()
	err = c.archive.SaveTranscript(archive.Transcript{
		ID:        id,
		BotID:     botID,
		HandoffID: w.ID(),
		Kind:      archive.KindAgent,
		Messages:  store.Messages(),
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

// CloseChat stops polling the open handoff.
func (c *Console) CloseChat() {
	c.mu.Lock()
	w := c.watcher
	c.watcher = nil
	c.mu.Unlock()
	if w != nil {
		w.Stop()
	}
}

// Close stops all background work.
func (c *Console) Close() {
	c.CloseChat()
	c.cancel()
}
