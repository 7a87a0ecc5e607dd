// tastechat is a terminal client for TasteAI Studio bots: chat with a bot
// as an end user, work handoffs as a human agent, inspect bot history and
// configuration, and run the websocket relay for embedded widgets.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/CHIRAG137/tasteAI-Studio-Gemini-Frontend-sub000/internal/api"
	"github.com/CHIRAG137/tasteAI-Studio-Gemini-Frontend-sub000/internal/archive"
	"github.com/CHIRAG137/tasteAI-Studio-Gemini-Frontend-sub000/internal/cache"
	"github.com/CHIRAG137/tasteAI-Studio-Gemini-Frontend-sub000/internal/chatbot"
	"github.com/CHIRAG137/tasteAI-Studio-Gemini-Frontend-sub000/internal/config"
	"github.com/CHIRAG137/tasteAI-Studio-Gemini-Frontend-sub000/internal/telemetry"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// app holds what every command needs.
type app struct {
	cfg     config.Config
	logger  *slog.Logger
	tracer  trace.Tracer
	meter   metric.Meter
	client  *api.Client
	archive *archive.Archive
	cache   *cache.Cache
	close   func()
}

func (a *app) deps() chatbot.Deps {
	return chatbot.Deps{
		Client:  a.client,
		Archive: a.archive,
		Cache:   a.cache,
		Logger:  a.logger,
		Meter:   a.meter,
	}
}

func run(args []string) error {
	var configPath string
	cfg := config.Default()

	flagSet := pflag.NewFlagSet("tastechat", pflag.ContinueOnError)
	flagSet.SetInterspersed(false)
	flagSet.StringVarP(&configPath, "config", "c", "", "YAML config file")
	flagSet.StringVar(&cfg.BackendURL, "backend-url", cfg.BackendURL, "backend base URL (env BACKEND_URL)")
	flagSet.StringVarP(&cfg.BotID, "bot", "b", "", "bot id")
	flagSet.BoolVar(&cfg.Debug, "debug", false, "enable debug logging")
	flagSet.StringVar(&cfg.ArchivePath, "archive", "", "SQLite archive path (disabled when empty)")
	flagSet.StringVar(&cfg.LogDir, "log-dir", cfg.LogDir, "directory for log, trace and metric files")
	flagSet.DurationVar(&cfg.PollInterval, "poll-interval", cfg.PollInterval, "handoff polling interval")
	flagSet.StringVar(&cfg.AgentEmail, "agent-email", "", "agent email used to resume a saved login")
	flagSet.BoolP("help", "h", false, "show help")

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			printHelp(flagSet)
			return nil
		}
		return err
	}
	if help, _ := flagSet.GetBool("help"); help || flagSet.NArg() == 0 {
		printHelp(flagSet)
		return nil
	}

	loaded, err := config.Load(configPath)
	if err != nil {
		return err
	}
	cfg = mergeFlags(flagSet, loaded, cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.close()

	command, rest := flagSet.Arg(0), flagSet.Args()[1:]
	a.logger.Info("command started", "command", command, "backend_url", cfg.BackendURL)

	switch command {
	case "chat":
		return runChat(ctx, a, rest)
	case "tui":
		return runTUI(ctx, a, rest)
	case "agent":
		return runAgent(ctx, a, rest)
	case "history":
		return runHistory(ctx, a, rest)
	case "bot":
		return runBot(ctx, a, rest)
	case "embed":
		return runEmbed(a, rest)
	case "relay":
		return runRelay(ctx, a, rest)
	case "archive":
		return runArchive(a, rest)
	default:
		return fmt.Errorf("unknown command %q (see --help)", command)
	}
}

// mergeFlags layers explicitly set flags over a loaded config file.
func mergeFlags(flagSet *pflag.FlagSet, loaded, flags config.Config) config.Config {
	if flagSet.Changed("backend-url") {
		loaded.BackendURL = flags.BackendURL
	}
	if flagSet.Changed("bot") {
		loaded.BotID = flags.BotID
	}
	if flagSet.Changed("debug") {
		loaded.Debug = flags.Debug
	}
	if flagSet.Changed("archive") {
		loaded.ArchivePath = flags.ArchivePath
	}
	if flagSet.Changed("log-dir") {
		loaded.LogDir = flags.LogDir
	}
	if flagSet.Changed("poll-interval") {
		loaded.PollInterval = flags.PollInterval
	}
	if flagSet.Changed("agent-email") {
		loaded.AgentEmail = flags.AgentEmail
	}
	return loaded
}

func newApp(ctx context.Context, cfg config.Config) (*app, error) {
	logger, err := telemetry.InitLogger(cfg.LogDir, cfg.Debug)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	if cfg.Debug {
		logger.Info("Debug mode enabled")
	}

	tracer, meter, shutdown, err := telemetry.InitTelemetry(ctx, cfg.LogDir)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	a := &app{
		cfg:    cfg,
		logger: logger,
		tracer: tracer,
		meter:  meter,
		cache:  cache.New(10 * time.Minute),
	}
	a.client = api.NewClient(cfg.BackendURL,
		api.WithLogger(logger),
		api.WithTelemetry(tracer, meter),
	)

	if cfg.ArchivePath != "" {
		a.archive, err = archive.Open(cfg.ArchivePath, logger)
		if err != nil {
			shutdown()
			return nil, fmt.Errorf("failed to initialize archive: %w", err)
		}
	}

	a.close = func() {
		if a.archive != nil {
			a.archive.Close()
		}
		shutdown()
	}
	return a, nil
}

func printHelp(flagSet *pflag.FlagSet) {
	fmt.Fprintf(os.Stderr, `tastechat - terminal client for TasteAI Studio bots

Usage: tastechat [flags] <command> [args]

Commands:
  chat                       chat with --bot as an end user
  tui                        full-screen chat with --bot
  agent                      human agent console
  history <bot> [session]    list a bot's sessions or replay one
  bot get <bot>              print a bot's configuration as YAML
  bot put <bot> <file>       update a bot from a YAML file
  embed                      print embed snippets for --bot
  relay                      serve the websocket relay for widgets
  archive list|show <id>     browse archived transcripts

Flags:
`)
	flagSet.PrintDefaults()
}
