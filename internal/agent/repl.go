package agent

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/CHIRAG137/tasteAI-Studio-Gemini-Frontend-sub000/internal/api"
	"github.com/CHIRAG137/tasteAI-Studio-Gemini-Frontend-sub000/internal/chatbot"
	"github.com/CHIRAG137/tasteAI-Studio-Gemini-Frontend-sub000/internal/transcript"
)

// Run runs the agent console loop. Plain lines are sent to the open
// handoff; everything else is a slash command.
func (c *Console) Run(ctx context.Context, in io.Reader, out io.Writer) error {
	defer c.Close()

	fmt.Fprintln(out, "=== TasteChat agent console ===")
	fmt.Fprintln(out, "Type /help for commands, /quit to exit")
	fmt.Fprintln(out)

	if c.config.AgentEmail != "" {
		if profile, err := c.Resume(ctx, c.config.AgentEmail); err == nil {
			fmt.Fprintf(out, "Signed in as %s (%s)\n", profile.Name, profile.Email)
		}
	}

	r := &replState{console: c, out: out}
	defer r.stopFollow()

	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}

		if strings.HasPrefix(input, "/") {
			shouldQuit, err := r.handleCommand(ctx, input)
			if err != nil {
				r.printf("Error: %v\n", err)
				c.logger.Error("command error", "error", err)
			}
			if shouldQuit {
				break
			}
			continue
		}

		if err := c.Send(ctx, input); err != nil {
			r.printf("Error: %v\n", err)
			c.logger.Error("failed to send message", "error", err)
		}
	}

	r.stopFollow()
	if id, err := c.Save(); err == nil && id != "" {
		fmt.Fprintf(out, "Transcript saved as %s\n", id)
	}
	fmt.Fprintln(out, "Goodbye!")
	return nil
}

// replState tracks the printer that follows the open handoff.
type replState struct {
	console *Console
	out     io.Writer

	printer *chatbot.Printer
	cancel  context.CancelFunc
	done    chan struct{}
}

func (r *replState) printf(format string, args ...any) {
	if r.printer != nil {
		r.printer.Printf(format, args...)
		return
	}
	fmt.Fprintf(r.out, format, args...)
}

func (r *replState) follow(ctx context.Context, store *transcript.Store) {
	r.stopFollow()
	r.printer = chatbot.NewPrinter(store, transcript.SenderAgent, r.out)
	r.printer.Flush()

	ctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.done = make(chan struct{})
	go func(p *chatbot.Printer, done chan struct{}) {
		defer close(done)
		p.Follow(ctx)
	}(r.printer, r.done)
}

func (r *replState) stopFollow() {
	if r.cancel != nil {
		r.cancel()
		<-r.done
		r.cancel, r.done = nil, nil
	}
}

func (r *replState) handleCommand(ctx context.Context, cmd string) (bool, error) {
	c := r.console
	parts := strings.Fields(cmd)
	if len(parts) == 0 {
		return false, nil
	}
	arg := strings.TrimSpace(strings.TrimPrefix(cmd, parts[0]))

	switch parts[0] {
	case "/quit", "/exit":
		return true, nil

	case "/help":
		r.printf("%s", agentHelp)
		return false, nil

	case "/login":
		if len(parts) < 3 {
			return false, fmt.Errorf("usage: /login <email> <password>")
		}
		profile, err := c.Login(ctx, parts[1], parts[2])
		if err != nil {
			return false, err
		}
		r.printf("Signed in as %s (%s)\n", profile.Name, profile.Email)
		return false, nil

	case "/logout":
		r.stopFollow()
		r.printer = nil
		return false, c.Logout()

	case "/profile":
		profile, err := c.RefreshProfile(ctx)
		if err != nil {
			return false, err
		}
		r.printf("%s <%s>\n  status: %s\n  skills: %s\n  max chats: %d\n",
			profile.Name, profile.Email, profile.Status, strings.Join(profile.Skills, ", "), profile.MaxConcurrentChats)
		return false, nil

	case "/set-status", "/set-name":
		if arg == "" {
			return false, fmt.Errorf("usage: %s <value>", parts[0])
		}
		var update api.ProfileUpdate
		if parts[0] == "/set-status" {
			update.Status = &arg
		} else {
			update.Name = &arg
		}
		profile, err := c.UpdateProfile(ctx, update)
		if err != nil {
			return false, err
		}
		r.printf("Profile updated: %s (%s)\n", profile.Name, profile.Status)
		return false, nil

	case "/stats":
		stats, err := c.Stats(ctx)
		if err != nil {
			return false, err
		}
		r.printf("Handled: %d  Active: %d  Pending: %d  Resolved today: %d\nAverage rating: %.1f  Average response: %.0fs\n",
			stats.TotalHandled, stats.ActiveChats, stats.PendingRequests, stats.ResolvedToday,
			stats.AverageRating, stats.AverageResponseSecs)
		return false, nil

	case "/bots":
		bots, err := c.Bots(ctx)
		if err != nil {
			return false, err
		}
		for i, bot := range bots {
			r.printf("%d. %s (%s) pending: %d active: %d\n", i+1, bot.Name, bot.ID, len(bot.PendingHandoffs), len(bot.ActiveHandoffs))
		}
		return false, nil

	case "/pending":
		pending, err := c.Pending(ctx)
		if err != nil {
			return false, err
		}
		if len(pending) == 0 {
			r.printf("No pending handoffs.\n")
			return false, nil
		}
		for i, h := range pending {
			who := h.UserName
			if who == "" {
				who = "anonymous"
			}
			r.printf("%d. %s  %s  %s\n", i+1, h.ID, who, h.Reason)
		}
		return false, nil

	case "/accept", "/open":
		if arg == "" {
			return false, fmt.Errorf("usage: %s <handoff-id>", parts[0])
		}
		var err error
		if parts[0] == "/accept" {
			err = c.Accept(ctx, arg)
		} else {
			err = c.Open(ctx, arg)
		}
		if err != nil {
			return false, err
		}
		r.follow(ctx, c.Store())
		return false, nil

	case "/history":
		if len(parts) < 3 {
			return false, fmt.Errorf("usage: /history <bot-id> <session-id>")
		}
		msgs, err := c.History(ctx, parts[1], parts[2])
		if err != nil {
			return false, err
		}
		for _, msg := range msgs {
			r.printf("%s\n", chatbot.FormatMessage(msg))
		}
		return false, nil

	case "/resolve":
		return false, c.Resolve(ctx)

	case "/summary":
		summary, err := c.Summarize(ctx)
		if err != nil {
			return false, err
		}
		r.printf("\nSummary:\n%s\n\n", summary)
		return false, nil

	case "/save":
		id, err := c.Save()
		if err != nil {
			return false, err
		}
		if id == "" {
			r.printf("No archive configured (use --archive).\n")
			return false, nil
		}
		r.printf("Transcript saved as %s\n", id)
		return false, nil

	case "/close":
		r.stopFollow()
		c.CloseChat()
		return false, nil

	default:
		return false, fmt.Errorf("unknown command: %s (try /help)", parts[0])
	}
}

const agentHelp = `
Commands:
  /login <email> <password>   sign in
  /logout                     sign out and forget the token
  /profile                    show your profile
  /set-status <status>        change your availability
  /set-name <name>            change your display name
  /stats                      dashboard numbers
  /bots                       assigned bots
  /pending                    pending handoffs, oldest first
  /accept <id>                accept and open a handoff
  /open <id>                  open a handoff you already own
  /history <bot> <session>    show a bot session's history
  /resolve                    resolve the open handoff
  /summary                    summarize the open handoff
  /save                       archive the open transcript
  /close                      stop following the open handoff
  /quit                       exit

`
