package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/CHIRAG137/tasteAI-Studio-Gemini-Frontend-sub000/internal/agent"
	"github.com/CHIRAG137/tasteAI-Studio-Gemini-Frontend-sub000/internal/api"
	"github.com/CHIRAG137/tasteAI-Studio-Gemini-Frontend-sub000/internal/archive"
	"github.com/CHIRAG137/tasteAI-Studio-Gemini-Frontend-sub000/internal/chatbot"
	"github.com/CHIRAG137/tasteAI-Studio-Gemini-Frontend-sub000/internal/embed"
	"github.com/CHIRAG137/tasteAI-Studio-Gemini-Frontend-sub000/internal/relay"
	"github.com/CHIRAG137/tasteAI-Studio-Gemini-Frontend-sub000/internal/transcript"
	"github.com/CHIRAG137/tasteAI-Studio-Gemini-Frontend-sub000/internal/tui"
)

const timeLayout = "2006-01-02 15:04"

func requireBot(a *app) error {
	if a.cfg.BotID == "" {
		return errors.New("--bot is required")
	}
	return nil
}

func runChat(ctx context.Context, a *app, _ []string) error {
	if err := requireBot(a); err != nil {
		return err
	}
	bot := chatbot.NewChatBot(a.cfg, a.deps())
	defer bot.Close()
	return bot.Run(ctx, os.Stdin, os.Stdout)
}

func runTUI(ctx context.Context, a *app, _ []string) error {
	if err := requireBot(a); err != nil {
		return err
	}
	bot := chatbot.NewChatBot(a.cfg, a.deps())
	defer bot.Close()
	err := tui.Run(ctx, bot, tui.Options{
		NearBottomThreshold: a.cfg.NearBottomThreshold,
		AutoScrollSettle:    a.cfg.AutoScrollSettle,
	})
	if _, saveErr := bot.Save(); saveErr != nil {
		a.logger.Warn("failed to archive transcript", "error", saveErr)
	}
	return err
}

func runAgent(ctx context.Context, a *app, _ []string) error {
	console := agent.NewConsole(a.cfg, a.deps())
	defer console.Close()
	return console.Run(ctx, os.Stdin, os.Stdout)
}

// runHistory lists a bot's sessions, or replays one when a session id is
// given.
func runHistory(ctx context.Context, a *app, args []string) error {
	flagSet := pflag.NewFlagSet("history", pflag.ContinueOnError)
	save := flagSet.Bool("save", false, "archive the replayed session")
	if err := flagSet.Parse(args); err != nil {
		return err
	}

	botID := a.cfg.BotID
	rest := flagSet.Args()
	if len(rest) > 0 {
		botID, rest = rest[0], rest[1:]
	}
	if botID == "" {
		return errors.New("usage: history <bot> [session]")
	}

	if len(rest) == 0 {
		sessions, err := a.client.History(ctx, botID)
		if err != nil {
			return err
		}
		if len(sessions) == 0 {
			fmt.Println("No sessions recorded.")
			return nil
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "SESSION\tSTARTED\tLAST ACTIVITY\tMESSAGES\tHANDOFF")
		for _, s := range sessions {
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%v\n", s.SessionID,
				s.StartedAt.Local().Format(timeLayout),
				s.LastActivity.Local().Format(timeLayout),
				s.MessageCount, s.HadHandoff)
		}
		return w.Flush()
	}

	sessionID := rest[0]
	entries, err := a.client.SessionHistory(ctx, botID, sessionID)
	if err != nil {
		return err
	}
	msgs := transcript.MapHistory(entries)
	for _, msg := range msgs {
		fmt.Println(chatbot.FormatMessage(msg))
	}

	if *save {
		if a.archive == nil {
			return errors.New("--save needs --archive")
		}
		id := "replay-" + sessionID
		err := a.archive.SaveTranscript(archive.Transcript{
			ID:        id,
			BotID:     botID,
			SessionID: sessionID,
			Kind:      archive.KindReplay,
			SavedAt:   time.Now(),
			Messages:  msgs,
		})
		if err != nil {
			return err
		}
		fmt.Printf("Saved as %s.\n", id)
	}
	return nil
}

// runBot reads or replaces a bot's configuration as YAML.
func runBot(ctx context.Context, a *app, args []string) error {
	if len(args) < 2 {
		return errors.New("usage: bot get <bot> | bot put <bot> <file>")
	}
	switch args[0] {
	case "get":
		bot, err := a.client.GetBot(ctx, args[1])
		if err != nil {
			return err
		}
		enc := yaml.NewEncoder(os.Stdout)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(map[string]any(bot))
	case "put":
		if len(args) < 3 {
			return errors.New("usage: bot put <bot> <file>")
		}
		data, err := os.ReadFile(args[2])
		if err != nil {
			return fmt.Errorf("failed to read bot file: %w", err)
		}
		var bot api.BotConfig
		if err := yaml.Unmarshal(data, &bot); err != nil {
			return fmt.Errorf("failed to parse bot file: %w", err)
		}
		updated, err := a.client.UpdateBot(ctx, args[1], bot)
		if err != nil {
			return err
		}
		fmt.Printf("Updated %s.\n", orDefault(updated.Name(), args[1]))
		return nil
	default:
		return fmt.Errorf("unknown bot command %q", args[0])
	}
}

func runEmbed(a *app, args []string) error {
	flagSet := pflag.NewFlagSet("embed", pflag.ContinueOnError)
	opts := embed.Options{BotID: a.cfg.BotID}
	flagSet.StringVar(&opts.BaseURL, "base-url", "", "public URL of the studio frontend")
	flagSet.StringVar(&opts.RelayURL, "relay-url", "", "websocket relay URL (ws:// or wss://)")
	flagSet.StringVar(&opts.Width, "width", "", "iframe width")
	flagSet.StringVar(&opts.Height, "height", "", "iframe height")
	flagSet.StringVar(&opts.Theme, "theme", "", "widget theme")
	if err := flagSet.Parse(args); err != nil {
		return err
	}
	if opts.BaseURL == "" {
		return errors.New("--base-url is required")
	}

	s, err := embed.Generate(opts)
	if err != nil {
		return err
	}
	fmt.Printf("Script:\n%s\n\nIFrame:\n%s\n\nLink:\n%s\n", s.Script, s.IFrame, s.Link)
	return nil
}

func runRelay(ctx context.Context, a *app, args []string) error {
	flagSet := pflag.NewFlagSet("relay", pflag.ContinueOnError)
	addr := flagSet.String("addr", a.cfg.RelayAddr, "listen address")
	origins := flagSet.StringSlice("origin", a.cfg.AllowedOrigins, "allowed widget origins")
	if err := flagSet.Parse(args); err != nil {
		return err
	}
	cfg := a.cfg
	cfg.AllowedOrigins = *origins

	rs := relay.NewServer(a.client, cfg, a.logger, a.meter)
	srv := &http.Server{
		Addr:              *addr,
		Handler:           rs.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("relay listening", "addr", *addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("relay server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Warn("relay shutdown", "error", err)
	}
	rs.Wait()
	a.logger.Info("relay stopped")
	return nil
}

func runArchive(a *app, args []string) error {
	if a.archive == nil {
		return errors.New("archive commands need --archive")
	}
	if len(args) == 0 {
		return errors.New("usage: archive list | archive show <id>")
	}
	switch args[0] {
	case "list":
		list, err := a.archive.ListTranscripts()
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tKIND\tBOT\tSAVED\tMESSAGES")
		for _, s := range list {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\n", s.ID, s.Kind, s.BotID, s.SavedAt.Local().Format(timeLayout), s.MessageCount)
		}
		return w.Flush()
	case "show":
		if len(args) < 2 {
			return errors.New("usage: archive show <id>")
		}
		t, err := a.archive.LoadTranscript(args[1])
		if err != nil {
			return err
		}
		fmt.Printf("%s (%s, bot %s, saved %s)\n", t.ID, t.Kind, t.BotID, t.SavedAt.Local().Format(timeLayout))
		for _, msg := range t.Messages {
			fmt.Println(chatbot.FormatMessage(msg))
		}
		return nil
	default:
		return fmt.Errorf("unknown archive command %q", strings.TrimSpace(args[0]))
	}
}

func orDefault(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
