package chatbot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/CHIRAG137/tasteAI-Studio-Gemini-Frontend-sub000/internal/api"
	"github.com/CHIRAG137/tasteAI-Studio-Gemini-Frontend-sub000/internal/archive"
	"github.com/CHIRAG137/tasteAI-Studio-Gemini-Frontend-sub000/internal/cache"
	"github.com/CHIRAG137/tasteAI-Studio-Gemini-Frontend-sub000/internal/config"
	"github.com/CHIRAG137/tasteAI-Studio-Gemini-Frontend-sub000/internal/handoff"
	"github.com/CHIRAG137/tasteAI-Studio-Gemini-Frontend-sub000/internal/transcript"
)

const (
	fallbackAnswer   = "I'm having trouble answering that. Please try again."
	emptyAnswer      = "I don't have an answer for that yet."
	undeliveredReply = "Your message could not be delivered. Please try again."
)

var (
	ErrNotStarted         = errors.New("conversation not started")
	ErrInputLocked        = errors.New("the bot is not waiting for a text reply")
	ErrNoChoicePending    = errors.New("no choice is pending")
	ErrInvalidChoice      = errors.New("invalid choice")
	ErrNoHandoff          = errors.New("no human handoff in this conversation")
	ErrHandoffNotResolved = errors.New("the handoff must be resolved before rating")
	ErrInvalidRating      = errors.New("rating must be between 1 and 5")
)

// Deps are the collaborators of a ChatBot.
type Deps struct {
	Client  *api.Client
	Archive *archive.Archive // optional
	Cache   *cache.Cache     // optional
	Logger  *slog.Logger
	Meter   metric.Meter
}

// ChatBot drives one end-user conversation with a bot: the scripted flow,
// free-form QA once the flow finished, and handoff to a human agent.
type ChatBot struct {
	config  config.Config
	client  *api.Client
	archive *archive.Archive
	cache   *cache.Cache
	logger  *slog.Logger
	meter   metric.Meter
	store   *transcript.Store

	// ctx outlives individual requests; the handoff watcher runs on it.
	ctx    context.Context
	cancel context.CancelFunc

	mu            sync.Mutex
	flowSessionID string
	awaiting      api.AwaitingInput
	finished      bool
	choiceMsgID   string // message carrying the pending options/confirmation
	inFlight      int
	watcher       *handoff.Watcher
	onEvent       func(handoff.Event)
}

// NewChatBot creates a new ChatBot for cfg.BotID.
func NewChatBot(cfg config.Config, deps Deps) *ChatBot {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	c := deps.Cache
	if c == nil {
		c = cache.New(10 * time.Minute)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &ChatBot{
		config:  cfg,
		client:  deps.Client,
		archive: deps.Archive,
		cache:   c,
		logger:  logger.With("bot_id", cfg.BotID),
		meter:   deps.Meter,
		store:   transcript.NewStore(),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Store returns the transcript.
func (cb *ChatBot) Store() *transcript.Store {
	return cb.store
}

// OnHandoffEvent registers a callback for handoff watcher events. It must
// be set before a handoff is requested.
func (cb *ChatBot) OnHandoffEvent(fn func(handoff.Event)) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.onEvent = fn
}

// SessionID returns the flow session id.
func (cb *ChatBot) SessionID() string {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.flowSessionID
}

// Finished reports whether the scripted flow is over (QA mode).
func (cb *ChatBot) Finished() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.finished
}

// Awaiting returns what the flow is waiting for.
func (cb *ChatBot) Awaiting() api.AwaitingInput {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.awaiting
}

// InFlight reports whether a user-triggered request is pending.
func (cb *ChatBot) InFlight() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.inFlight > 0
}

// Handoff returns the handoff view model, if a handoff was requested.
func (cb *ChatBot) Handoff() (handoff.Session, bool) {
	cb.mu.Lock()
	w := cb.watcher
	cb.mu.Unlock()
	if w == nil {
		return handoff.Session{}, false
	}
	return w.Session(), true
}

// HandoffOpen reports whether a handoff was requested and not resolved.
func (cb *ChatBot) HandoffOpen() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.handoffOpenLocked()
}

// CanSendText reports whether free text can be sent right now: while a
// handoff is open, once the flow finished, or when the flow waits for text.
func (cb *ChatBot) CanSendText() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.canSendTextLocked()
}

func (cb *ChatBot) canSendTextLocked() bool {
	if cb.handoffOpenLocked() {
		return true
	}
	return cb.finished || cb.awaiting.AcceptsText()
}

func (cb *ChatBot) handoffOpenLocked() bool {
	return cb.watcher != nil && cb.watcher.Session().Status != handoff.StatusResolved
}

func (cb *ChatBot) begin() func() {
	cb.mu.Lock()
	cb.inFlight++
	cb.mu.Unlock()
	return func() {
		cb.mu.Lock()
		cb.inFlight--
		cb.mu.Unlock()
	}
}

// Start opens a flow session and appends the bot's first messages.
func (cb *ChatBot) Start(ctx context.Context) error {
	defer cb.begin()()

	resp, err := cb.client.StartFlow(ctx, cb.config.BotID)
	if err != nil {
		cb.logger.Error("failed to start flow", "error", err)
		return fmt.Errorf("failed to start conversation: %w", err)
	}

	cb.mu.Lock()
	cb.flowSessionID = resp.SessionID
	cb.mu.Unlock()

	cb.logger.Info("flow started", "session_id", resp.SessionID)
	return cb.applyFlow(ctx, resp)
}

// applyFlow appends the flow's messages and updates input gating.
func (cb *ChatBot) applyFlow(ctx context.Context, resp *api.FlowResponse) error {
	var msgs []transcript.Message
	wantsHandoff := false
	for _, fm := range resp.Messages {
		if fm.Type == "handoff" {
			wantsHandoff = true
		}
		if msg, ok := flowMessage(fm); ok {
			msgs = append(msgs, msg)
		}
	}

	// Options and confirmations are shown on the last bot prompt.
	choiceID := ""
	if resp.AwaitingInput.Active && !resp.AwaitingInput.AcceptsText() && len(msgs) > 0 {
		last := &msgs[len(msgs)-1]
		switch resp.AwaitingInput.Type {
		case api.InputConfirmation:
			last.ShowConfirmationButtons = true
		default:
			if len(last.BranchOptions) == 0 {
				last.BranchOptions = resp.AwaitingInput.Options
			}
			last.ShowBranchOptions = len(last.BranchOptions) > 0
		}
		choiceID = last.ID
	}

	cb.store.Append(msgs...)

	cb.mu.Lock()
	cb.awaiting = resp.AwaitingInput
	cb.finished = resp.Finished
	if choiceID != "" || !resp.AwaitingInput.Active {
		cb.choiceMsgID = choiceID
	}
	cb.mu.Unlock()

	if wantsHandoff {
		return cb.RequestHandoff(ctx, "requested by flow")
	}
	return nil
}

func flowMessage(fm api.FlowMessage) (transcript.Message, bool) {
	content := transcript.ContentText(fm.Content)
	msg := transcript.NewMessage(transcript.SenderBot, content)

	switch fm.Type {
	case "options", "branch", "choice":
		msg.BranchOptions = transcript.ParseOptions(fm.Options)
		msg.ShowBranchOptions = len(msg.BranchOptions) > 0
	case "confirmation":
		msg.IsConfirmation = true
		msg.ShowConfirmationButtons = true
	case "audio":
		msg.AudioURL = fm.AudioURL
		if msg.Content == "" {
			msg.Content = "[audio]"
		}
	case "handoff":
		if content == "" {
			return transcript.Message{}, false
		}
	}

	if msg.Content == "" && len(msg.BranchOptions) == 0 {
		return transcript.Message{}, false
	}
	return msg, true
}

// SendText sends free text: to the agent during a handoff, as a handoff
// request when it asks for a human, to the flow when it waits for text, or
// to QA once the flow finished.
func (cb *ChatBot) SendText(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	cb.mu.Lock()
	started := cb.flowSessionID != ""
	handoffOpen := cb.handoffOpenLocked()
	watcher := cb.watcher
	canSend := cb.canSendTextLocked()
	finished := cb.finished
	cb.mu.Unlock()

	if handoffOpen {
		cb.store.Append(transcript.NewMessage(transcript.SenderUser, text))
		defer cb.begin()()
		if err := cb.client.SendClientMessage(ctx, watcher.ID(), text); err != nil {
			cb.logger.Error("failed to send handoff message", "error", err)
			cb.store.Append(transcript.NewSystemMessage(undeliveredReply))
			return fmt.Errorf("failed to send message: %w", err)
		}
		return nil
	}

	if !started {
		return ErrNotStarted
	}

	if handoff.DetectIntent(text) {
		cb.store.Append(transcript.NewMessage(transcript.SenderUser, text))
		return cb.RequestHandoff(ctx, text)
	}

	if !canSend {
		return ErrInputLocked
	}

	cb.store.Append(transcript.NewMessage(transcript.SenderUser, text))
	defer cb.begin()()

	if finished {
		return cb.ask(ctx, text)
	}

	resp, err := cb.client.RespondText(ctx, cb.SessionID(), text)
	if err != nil {
		cb.logger.Error("failed to respond to flow", "error", err)
		cb.store.Append(transcript.NewMessage(transcript.SenderBot, fallbackAnswer))
		return fmt.Errorf("failed to send reply: %w", err)
	}
	return cb.applyFlow(ctx, resp)
}

// ask answers a QA question, reusing a cached answer for a repeated one.
func (cb *ChatBot) ask(ctx context.Context, question string) error {
	key := cache.KeyOf("ask", cb.config.BotID, strings.ToLower(question))
	if cached, ok := cb.cache.Get(key); ok {
		cb.logger.Info("cache hit", "key", key[:16])
		cb.store.Append(transcript.NewMessage(transcript.SenderBot, cached))
		return nil
	}

	answer, err := cb.client.Ask(ctx, api.AskRequest{
		Question:      question,
		BotID:         cb.config.BotID,
		FlowSessionID: cb.SessionID(),
	})
	if err != nil {
		cb.logger.Error("failed to get answer", "error", err)
		cb.store.Append(transcript.NewMessage(transcript.SenderBot, fallbackAnswer))
		return fmt.Errorf("failed to get answer: %w", err)
	}
	if strings.TrimSpace(answer) == "" {
		answer = emptyAnswer
	} else {
		cb.cache.Put(key, answer)
	}
	cb.store.Append(transcript.NewMessage(transcript.SenderBot, answer))
	return nil
}

// ChooseOption answers a pending branch question with a 1-based option
// number or an option label.
func (cb *ChatBot) ChooseOption(ctx context.Context, choice string) error {
	choice = strings.TrimSpace(choice)

	cb.mu.Lock()
	awaiting := cb.awaiting
	msgID := cb.choiceMsgID
	sessionID := cb.flowSessionID
	cb.mu.Unlock()

	if !awaiting.Active || awaiting.AcceptsText() || awaiting.Type == api.InputConfirmation {
		return ErrNoChoicePending
	}

	options := awaiting.Options
	if len(options) == 0 && msgID != "" {
		for _, m := range cb.store.Messages() {
			if m.ID == msgID {
				options = m.BranchOptions
			}
		}
	}

	label, indexOrLabel, err := resolveChoice(options, choice)
	if err != nil {
		return err
	}

	cb.store.Append(transcript.NewMessage(transcript.SenderUser, label))
	defer cb.begin()()

	resp, err := cb.client.RespondOption(ctx, sessionID, indexOrLabel)
	if err != nil {
		cb.logger.Error("failed to send choice", "error", err)
		cb.store.Append(transcript.NewMessage(transcript.SenderBot, fallbackAnswer))
		return fmt.Errorf("failed to send choice: %w", err)
	}

	// Only a delivered choice is recorded, so a failed send can be retried.
	if msgID != "" {
		if err := cb.store.SelectBranch(msgID, label); err != nil {
			return fmt.Errorf("failed to record choice: %w", err)
		}
	}
	return cb.applyFlow(ctx, resp)
}

// resolveChoice maps user input onto an option. A number selects by
// 1-based position and is sent as a 0-based index; anything else must match
// a label case-insensitively and is sent as the label.
func resolveChoice(options []string, choice string) (string, any, error) {
	if n, err := strconv.Atoi(choice); err == nil {
		if n < 1 || n > len(options) {
			return "", nil, fmt.Errorf("%w: %d (have %d options)", ErrInvalidChoice, n, len(options))
		}
		return options[n-1], n - 1, nil
	}
	for _, opt := range options {
		if strings.EqualFold(opt, choice) {
			return opt, opt, nil
		}
	}
	if len(options) == 0 && choice != "" {
		return choice, choice, nil
	}
	return "", nil, fmt.Errorf("%w: %q", ErrInvalidChoice, choice)
}

// Confirm answers a pending confirmation.
func (cb *ChatBot) Confirm(ctx context.Context, yes bool) error {
	cb.mu.Lock()
	awaiting := cb.awaiting
	sessionID := cb.flowSessionID
	cb.mu.Unlock()

	if !awaiting.Active || awaiting.Type != api.InputConfirmation {
		return ErrNoChoicePending
	}

	answer, label := "no", "No"
	if yes {
		answer, label = "yes", "Yes"
	}
	cb.store.Append(transcript.NewMessage(transcript.SenderUser, label))
	defer cb.begin()()

	resp, err := cb.client.RespondText(ctx, sessionID, answer)
	if err != nil {
		cb.logger.Error("failed to send confirmation", "error", err)
		cb.store.Append(transcript.NewMessage(transcript.SenderBot, fallbackAnswer))
		return fmt.Errorf("failed to send confirmation: %w", err)
	}
	return cb.applyFlow(ctx, resp)
}

// RequestHandoff asks for a human agent and starts polling for the agent's
// messages.
func (cb *ChatBot) RequestHandoff(ctx context.Context, reason string) error {
	cb.mu.Lock()
	if cb.handoffOpenLocked() {
		cb.mu.Unlock()
		return nil
	}
	sessionID := cb.flowSessionID
	cb.mu.Unlock()

	defer cb.begin()()
	resp, err := cb.client.RequestHandoff(ctx, api.HandoffRequest{
		BotID:         cb.config.BotID,
		FlowSessionID: sessionID,
		Reason:        reason,
	})
	if err != nil {
		cb.logger.Error("failed to request handoff", "error", err)
		cb.store.Append(transcript.NewSystemMessage("We couldn't reach a human agent right now. Please try again."))
		return fmt.Errorf("failed to request handoff: %w", err)
	}
	id := resp.ID()
	if id == "" {
		return errors.New("backend returned no handoff session id")
	}

	cb.store.Append(transcript.NewSystemMessage("Connecting you to a human agent. Please wait..."))

	opts := handoff.Options{
		Interval:    cb.config.PollInterval,
		MaxInterval: cb.config.PollMaxInterval,
		Timeout:     cb.config.PollTimeout,
		StallAfter:  cb.config.StallAfter,
	}
	watcher := handoff.NewWatcher(id, cb.store, handoff.ClientFetch(cb.client), transcript.SenderUser, opts, cb.logger, cb.meter)

	cb.mu.Lock()
	previous := cb.watcher
	cb.watcher = watcher
	watcher.OnEvent = cb.onEvent
	cb.mu.Unlock()

	if previous != nil {
		previous.Stop()
	}
	watcher.Start(cb.ctx)

	cb.logger.Info("handoff requested", "handoff_id", id)
	return nil
}

func (cb *ChatBot) currentWatcher() (*handoff.Watcher, error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.watcher == nil {
		return nil, ErrNoHandoff
	}
	return cb.watcher, nil
}

// ResolveHandoff ends the handoff from the user's side.
func (cb *ChatBot) ResolveHandoff(ctx context.Context) error {
	w, err := cb.currentWatcher()
	if err != nil {
		return err
	}
	defer cb.begin()()
	status, err := cb.client.ClientResolve(ctx, w.ID())
	if err != nil {
		return fmt.Errorf("failed to resolve conversation: %w", err)
	}
	if status == "" {
		status = string(handoff.StatusResolved)
	}
	w.Observe(handoff.ParseStatus(status))
	return nil
}

// ReopenHandoff reopens a resolved handoff.
func (cb *ChatBot) ReopenHandoff(ctx context.Context) error {
	w, err := cb.currentWatcher()
	if err != nil {
		return err
	}
	defer cb.begin()()
	status, err := cb.client.ClientReopen(ctx, w.ID())
	if err != nil {
		return fmt.Errorf("failed to reopen conversation: %w", err)
	}
	if status == "" {
		status = string(handoff.StatusReopened)
	}
	w.Observe(handoff.ParseStatus(status))
	return nil
}

// Rate submits a 1-5 star rating for a resolved handoff.
func (cb *ChatBot) Rate(ctx context.Context, stars int, feedback string) error {
	if stars < 1 || stars > 5 {
		return ErrInvalidRating
	}
	w, err := cb.currentWatcher()
	if err != nil {
		return err
	}
	if w.Session().Status != handoff.StatusResolved {
		return ErrHandoffNotResolved
	}
	defer cb.begin()()
	if err := cb.client.Rate(ctx, w.ID(), api.Rating{Rating: stars, Feedback: feedback}); err != nil {
		return fmt.Errorf("failed to submit rating: %w", err)
	}
	cb.store.Append(transcript.NewSystemMessage(fmt.Sprintf("Thanks for rating this conversation %d/5.", stars)))
	return nil
}

// Rating fetches the submitted rating, if any.
func (cb *ChatBot) Rating(ctx context.Context) (*api.Rating, error) {
	w, err := cb.currentWatcher()
	if err != nil {
		return nil, err
	}
	return cb.client.GetRating(ctx, w.ID())
}

// Summarize returns a summary of the transcript so far.
func (cb *ChatBot) Summarize(ctx context.Context) (string, error) {
	return Summarize(ctx, cb.client, cb.cache, cb.store.Messages())
}

// Summarize summarizes msgs through the backend, caching by content.
func Summarize(ctx context.Context, client *api.Client, c *cache.Cache, msgs []transcript.Message) (string, error) {
	if len(msgs) == 0 {
		return "", errors.New("nothing to summarize")
	}
	key := cache.GenerateCacheKey(msgs)
	if cached, ok := c.Get(key); ok {
		return cached, nil
	}

	var b strings.Builder
	for _, msg := range msgs {
		fmt.Fprintf(&b, "%s: %s\n", msg.Role(), msg.Content)
	}
	summary, err := client.Summarize(ctx, b.String())
	if err != nil {
		return "", fmt.Errorf("failed to summarize: %w", err)
	}
	c.Put(key, summary)
	return summary, nil
}

// Save archives the transcript. It is a no-op without an archive.
func (cb *ChatBot) Save() (string, error) {
	if cb.archive == nil {
		return "", nil
	}
	cb.mu.Lock()
	sessionID := cb.flowSessionID
	handoffID := ""
	if cb.watcher != nil {
		handoffID = cb.watcher.ID()
	}
	cb.mu.Unlock()

	id := "chat-" + sessionID
	if sessionID == "" {
		id = transcript.NewLocalID("chat", time.Now())
	}
	err := cb.archive.SaveTranscript(archive.Transcript{
		ID:        id,
		BotID:     cb.config.BotID,
		SessionID: sessionID,
		HandoffID: handoffID,
		Kind:      archive.KindChat,
		Messages:  cb.store.Messages(),
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

// Close stops background polling.
func (cb *ChatBot) Close() {
	cb.mu.Lock()
	w := cb.watcher
	cb.mu.Unlock()
	if w != nil {
		w.Stop()
	}
	cb.cancel()
}
