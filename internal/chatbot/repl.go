package chatbot

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/CHIRAG137/tasteAI-Studio-Gemini-Frontend-sub000/internal/api"
	"github.com/CHIRAG137/tasteAI-Studio-Gemini-Frontend-sub000/internal/transcript"
)

// FormatMessage renders one transcript entry for a terminal.
func FormatMessage(msg transcript.Message) string {
	var b strings.Builder
	switch {
	case msg.IsSystemMessage:
		fmt.Fprintf(&b, "* %s", msg.Content)
	case msg.Sender == transcript.SenderBot:
		fmt.Fprintf(&b, "Bot: %s", msg.Content)
	case msg.Sender == transcript.SenderAgent:
		fmt.Fprintf(&b, "Agent: %s", msg.Content)
	default:
		fmt.Fprintf(&b, "You: %s", msg.Content)
	}
	if msg.AudioURL != "" {
		fmt.Fprintf(&b, "\n  (audio: %s)", msg.AudioURL)
	}
	if msg.ShowBranchOptions {
		for i, opt := range msg.BranchOptions {
			fmt.Fprintf(&b, "\n  %d. %s", i+1, opt)
		}
	}
	if msg.SelectedBranch != "" {
		fmt.Fprintf(&b, "\n  -> %s", msg.SelectedBranch)
	}
	if msg.ShowConfirmationButtons {
		b.WriteString("\n  [yes / no]")
	}
	if msg.ConfirmationResponse != "" {
		fmt.Fprintf(&b, "\n  -> %s", msg.ConfirmationResponse)
	}
	return b.String()
}

// Printer writes store entries to out as they are appended. Entries from
// the local sender are skipped since the user typed them.
type Printer struct {
	store *transcript.Store
	local transcript.Sender

	mu      sync.Mutex
	out     io.Writer
	printed int
}

// NewPrinter creates a printer; call Flush or Follow to write.
func NewPrinter(store *transcript.Store, local transcript.Sender, out io.Writer) *Printer {
	return &Printer{store: store, local: local, out: out}
}

// Flush prints everything appended since the last flush.
func (p *Printer) Flush() {
	p.mu.Lock()
	defer p.mu.Unlock()
	msgs := p.store.Messages()
	for _, msg := range msgs[p.printed:] {
		if msg.Sender == p.local && !msg.IsSystemMessage {
			continue
		}
		fmt.Fprintln(p.out, FormatMessage(msg))
	}
	p.printed = len(msgs)
}

// Write writes through the printer's lock.
func (p *Printer) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.out.Write(b)
}

// Printf writes through the printer's lock.
func (p *Printer) Printf(format string, args ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.out, format, args...)
}

// Follow flushes on every store change until ctx is done.
func (p *Printer) Follow(ctx context.Context) {
	changed := p.store.Subscribe()
	for {
		select {
		case <-ctx.Done():
			return
		case <-changed:
			p.Flush()
		}
	}
}

// Run runs the interactive loop, reading lines from in.
func (cb *ChatBot) Run(ctx context.Context, in io.Reader, out io.Writer) error {
	defer cb.Close()

	printer := NewPrinter(cb.store, transcript.SenderUser, out)
	printer.Printf("=== TasteChat ===\nBot: %s\nType /help for commands, /quit to exit\n\n", cb.config.BotID)

	if err := cb.Start(ctx); err != nil {
		return err
	}
	printer.Flush()

	followCtx, stopFollow := context.WithCancel(ctx)
	followDone := make(chan struct{})
	go func() {
		defer close(followDone)
		printer.Follow(followCtx)
	}()
	defer func() {
		stopFollow()
		<-followDone
	}()

	scanner := bufio.NewScanner(in)
	for {
		if !scanner.Scan() {
			break
		}

		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}

		if strings.HasPrefix(input, "/") {
			shouldQuit, err := cb.Command(ctx, printer, input)
			if err != nil {
				printer.Printf("Error: %v\n", err)
				cb.logger.Error("command error", "error", err)
			}
			if shouldQuit {
				break
			}
			continue
		}

		if err := cb.HandleInput(ctx, input); err != nil {
			if errors.Is(err, ErrInputLocked) {
				printer.Printf("Input is disabled until the bot asks for a reply.\n")
				continue
			}
			printer.Printf("Error: %v\n", err)
			cb.logger.Error("failed to send message", "error", err)
		}
		printer.Flush()
	}

	printer.Flush()
	if id, err := cb.Save(); err != nil {
		cb.logger.Error("failed to archive transcript on exit", "error", err)
		return err
	} else if id != "" {
		printer.Printf("Transcript saved as %s\n", id)
	}

	printer.Printf("Goodbye!\n")
	return nil
}

// HandleInput routes a plain line. While the flow waits for a choice, the
// line is taken as the choice.
func (cb *ChatBot) HandleInput(ctx context.Context, input string) error {
	awaiting := cb.Awaiting()
	if !cb.HandoffOpen() {
		switch {
		case awaiting.Active && awaiting.Type == api.InputConfirmation:
			yes, ok := parseYesNo(input)
			if !ok {
				return fmt.Errorf("please answer yes or no")
			}
			return cb.Confirm(ctx, yes)
		case awaiting.Active && !awaiting.AcceptsText():
			return cb.ChooseOption(ctx, input)
		}
	}
	return cb.SendText(ctx, input)
}

func parseYesNo(s string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "y", "yes", "ok", "sure", "confirm":
		return true, true
	case "n", "no", "cancel":
		return false, true
	}
	return false, false
}

// Command runs a slash command, writing any output to w. It reports
// whether the user asked to quit.
func (cb *ChatBot) Command(ctx context.Context, w io.Writer, cmd string) (bool, error) {
	parts := strings.Fields(cmd)
	if len(parts) == 0 {
		return false, nil
	}
	arg := strings.TrimSpace(strings.TrimPrefix(cmd, parts[0]))

	switch parts[0] {
	case "/quit", "/exit":
		return true, nil

	case "/help":
		fmt.Fprintf(w, "%s", chatHelp)
		return false, nil

	case "/choose":
		if arg == "" {
			return false, fmt.Errorf("usage: /choose <number|label>")
		}
		return false, cb.ChooseOption(ctx, arg)

	case "/yes", "/no":
		return false, cb.Confirm(ctx, parts[0] == "/yes")

	case "/human":
		reason := arg
		if reason == "" {
			reason = "user asked for a human"
		}
		return false, cb.RequestHandoff(ctx, reason)

	case "/resolve":
		return false, cb.ResolveHandoff(ctx)

	case "/reopen":
		return false, cb.ReopenHandoff(ctx)

	case "/rate":
		if len(parts) < 2 {
			return false, fmt.Errorf("usage: /rate <1-5> [feedback]")
		}
		stars, err := strconv.Atoi(parts[1])
		if err != nil {
			return false, ErrInvalidRating
		}
		feedback := strings.TrimSpace(strings.TrimPrefix(arg, parts[1]))
		return false, cb.Rate(ctx, stars, feedback)

	case "/rating":
		rating, err := cb.Rating(ctx)
		if err != nil {
			return false, err
		}
		if rating == nil || rating.Rating == 0 {
			fmt.Fprintf(w, "No rating yet.\n")
			return false, nil
		}
		fmt.Fprintf(w, "Rating: %d/5 %s\n", rating.Rating, rating.Feedback)
		return false, nil

	case "/summary":
		summary, err := cb.Summarize(ctx)
		if err != nil {
			return false, err
		}
		fmt.Fprintf(w, "\nSummary:\n%s\n\n", summary)
		return false, nil

	case "/status":
		fmt.Fprintf(w, "Session: %s\n", cb.SessionID())
		switch {
		case cb.Finished():
			fmt.Fprintf(w, "Mode: questions and answers\n")
		default:
			fmt.Fprintf(w, "Mode: guided flow (waiting for %s)\n", describeAwaiting(cb.Awaiting()))
		}
		if session, ok := cb.Handoff(); ok {
			fmt.Fprintf(w, "Handoff: %s (%s)", session.ID, session.Status)
			if session.AssignedAgentEmail != "" {
				fmt.Fprintf(w, " with %s", session.AssignedAgentEmail)
			}
			fmt.Fprintf(w, "\n")
		}
		return false, nil

	case "/save":
		id, err := cb.Save()
		if err != nil {
			return false, err
		}
		if id == "" {
			fmt.Fprintf(w, "No archive configured (use --archive).\n")
			return false, nil
		}
		fmt.Fprintf(w, "Transcript saved as %s\n", id)
		return false, nil

	default:
		return false, fmt.Errorf("unknown command: %s (try /help)", parts[0])
	}
}

func describeAwaiting(a api.AwaitingInput) string {
	if !a.Active {
		return "nothing"
	}
	return a.Type
}

const chatHelp = `
Commands:
  /choose <n|label>     pick one of the offered options
  /yes, /no             answer a confirmation
  /human [reason]       talk to a human agent
  /resolve              mark the conversation with the agent as resolved
  /reopen               reopen a resolved conversation
  /rate <1-5> [text]    rate the agent conversation
  /rating               show your rating
  /summary              summarize the conversation
  /status               show session state
  /save                 archive the transcript
  /quit                 exit

`
