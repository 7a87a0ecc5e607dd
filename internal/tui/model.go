// Package tui renders an end-user conversation as a full-screen terminal
// app. New messages follow the bottom while the reader is near it; a reader
// who scrolled up gets a "new messages" marker instead.
package tui

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/CHIRAG137/tasteAI-Studio-Gemini-Frontend-sub000/internal/api"
	"github.com/CHIRAG137/tasteAI-Studio-Gemini-Frontend-sub000/internal/chatbot"
	"github.com/CHIRAG137/tasteAI-Studio-Gemini-Frontend-sub000/internal/handoff"
	"github.com/CHIRAG137/tasteAI-Studio-Gemini-Frontend-sub000/internal/scroll"
)

// pxPerLine converts terminal lines to the pixel units the scroll
// thresholds are configured in.
const pxPerLine = 20

// Options tune scrolling.
type Options struct {
	NearBottomThreshold int // pixels
	AutoScrollSettle    time.Duration
}

type storeChangedMsg struct{}

type startedMsg struct{ err error }

type handoffEventMsg handoff.Event

type inputDoneMsg struct {
	output string
	quit   bool
	err    error
}

// Model is the bubbletea model.
type Model struct {
	ctx     context.Context
	bot     *chatbot.ChatBot
	changed <-chan struct{}
	events  <-chan handoff.Event
	scroll  *scroll.Controller
	styles  styles

	viewport viewport.Model
	input    textinput.Model

	status   string
	stalled  bool
	rendered int
	width    int
	ready    bool
}

// NewModel creates a model for bot. The conversation is started by Init.
func NewModel(ctx context.Context, bot *chatbot.ChatBot, opts Options) Model {
	input := textinput.New()
	input.Prompt = "› "
	input.CharLimit = 2000
	input.Focus()

	events := make(chan handoff.Event, 16)
	bot.OnHandoffEvent(func(ev handoff.Event) {
		select {
		case events <- ev:
		default:
		}
	})

	return Model{
		ctx:      ctx,
		bot:      bot,
		changed:  bot.Store().Subscribe(),
		events:   events,
		scroll:   scroll.New(opts.NearBottomThreshold, opts.AutoScrollSettle),
		styles:   newStyles(),
		viewport: viewport.New(0, 0),
		input:    input,
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	bot, ctx := m.bot, m.ctx
	return tea.Batch(
		textinput.Blink,
		waitForChange(m.changed),
		waitForEvent(m.events),
		func() tea.Msg { return startedMsg{err: bot.Start(ctx)} },
	)
}

// waitForChange blocks until the store signals a change.
func waitForChange(changed <-chan struct{}) tea.Cmd {
	return func() tea.Msg {
		if _, ok := <-changed; !ok {
			return nil
		}
		return storeChangedMsg{}
	}
}

func waitForEvent(events <-chan handoff.Event) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-events
		if !ok {
			return nil
		}
		return handoffEventMsg(ev)
	}
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.viewport.Width = msg.Width
		m.viewport.Height = max(3, msg.Height-3)
		m.input.Width = max(10, msg.Width-4)
		m.refresh()
		if !m.ready {
			m.ready = true
			m.viewport.GotoBottom()
		}
		return m, nil

	case storeChangedMsg:
		m.refresh()
		return m, waitForChange(m.changed)

	case handoffEventMsg:
		switch msg.Kind {
		case handoff.EventStalled:
			m.stalled = true
		case handoff.EventRecovered:
			m.stalled = false
		}
		return m, waitForEvent(m.events)

	case startedMsg:
		if msg.err != nil {
			m.status = "Could not start the conversation: " + msg.err.Error()
		}
		m.follow()
		return m, nil

	case inputDoneMsg:
		m.status = strings.TrimSpace(msg.output)
		if msg.err != nil {
			m.status = errorText(msg.err)
		}
		if msg.quit {
			return m, tea.Quit
		}
		m.follow()
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			return m, tea.Quit
		case "enter":
			return m.submit()
		case "ctrl+l", "end":
			m.jumpToLatest()
			return m, nil
		case "pgup", "pgdown", "up", "down":
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			m.onScroll()
			return m, cmd
		}
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd

	case tea.MouseMsg:
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		m.onScroll()
		return m, cmd
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func errorText(err error) string {
	if errors.Is(err, chatbot.ErrInputLocked) {
		return "Input is disabled until the bot asks for a reply."
	}
	return "Error: " + err.Error()
}

func (m Model) submit() (tea.Model, tea.Cmd) {
	line := strings.TrimSpace(m.input.Value())
	m.input.SetValue("")
	if line == "" {
		return m, nil
	}
	m.status = ""

	bot, ctx := m.bot, m.ctx
	if strings.HasPrefix(line, "/") {
		return m, func() tea.Msg {
			var out bytes.Buffer
			quit, err := bot.Command(ctx, &out, line)
			return inputDoneMsg{output: out.String(), quit: quit, err: err}
		}
	}
	return m, func() tea.Msg {
		return inputDoneMsg{err: bot.HandleInput(ctx, line)}
	}
}

// refresh re-renders the transcript and applies the follow decision when
// it grew.
func (m *Model) refresh() {
	msgs := m.bot.Store().Messages()
	parts := make([]string, 0, len(msgs))
	for _, msg := range msgs {
		parts = append(parts, m.styles.renderMessage(msg, m.viewport.Width))
	}
	m.viewport.SetContent(strings.Join(parts, "\n"))

	grew := len(msgs) > m.rendered
	m.rendered = len(msgs)
	if grew && m.ready {
		m.follow()
	}
}

func (m *Model) follow() {
	if m.scroll.OnGrowth(m.bot.InFlight()) == scroll.AutoScroll {
		m.scroll.BeginAutoScroll()
		m.viewport.GotoBottom()
	}
}

func (m *Model) jumpToLatest() {
	m.scroll.JumpToLatest()
	m.viewport.GotoBottom()
}

func (m *Model) onScroll() {
	m.scroll.OnScroll(scroll.Metrics{
		ScrollHeight: m.viewport.TotalLineCount() * pxPerLine,
		ScrollTop:    m.viewport.YOffset * pxPerLine,
		ClientHeight: m.viewport.Height * pxPerLine,
	})
}

// View implements tea.Model.
func (m Model) View() string {
	if !m.ready {
		return "Connecting..."
	}

	var status string
	switch {
	case m.scroll.JumpVisible():
		status = m.styles.jump.Render("↓ New messages (ctrl+l)")
	case m.status != "":
		status = m.styles.status.Render(m.status)
	default:
		status = m.styles.status.Render(m.hint())
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		m.viewport.View(),
		status,
		m.input.View(),
	)
}

// hint describes what the input accepts right now.
func (m Model) hint() string {
	if m.bot.InFlight() {
		return "…"
	}
	if m.bot.HandoffOpen() {
		if m.stalled {
			return "Support unreachable, retrying"
		}
		if session, ok := m.bot.Handoff(); ok && session.IsConnectedToAgent() {
			return "Chatting with " + orDefault(session.AssignedAgentEmail, "an agent")
		}
		return "Waiting for an agent"
	}
	awaiting := m.bot.Awaiting()
	switch {
	case awaiting.Active && awaiting.Type == api.InputConfirmation:
		return "Answer yes or no"
	case awaiting.Active && !awaiting.AcceptsText():
		return "Type a number to choose"
	case !m.bot.CanSendText():
		return "Waiting for the bot"
	}
	return "/help for commands"
}

func orDefault(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}

// Run runs the program until the user quits.
func Run(ctx context.Context, bot *chatbot.ChatBot, opts Options) error {
	defer bot.Close()
	p := tea.NewProgram(NewModel(ctx, bot, opts), tea.WithAltScreen(), tea.WithMouseCellMotion(), tea.WithContext(ctx))
	_, err := p.Run()
	return err
}
