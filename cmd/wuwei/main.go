// WuWei is a conversational wellness companion.
//
// It exposes a token-authenticated HTTP and WebSocket API backed by a
// tool-calling agent: users chat with the assistant, and the assistant
// reads and writes their todos, daily practices, journal entries, and
// mantras on their behalf. Configuration is loaded from a single YAML
// file discovered automatically (see [config.DefaultSearchPaths]).
//
// Usage:
//
//	wuwei serve              Start the API server
//	wuwei init [dir]         Initialize a working directory with defaults
//	wuwei ask <message>      Send a single message (for testing)
//	wuwei version            Print version and build information
//	wuwei -o json version    Output version information as JSON
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/wuweiapp/wuwei/internal/agent"
	"github.com/wuweiapp/wuwei/internal/buildinfo"
	"github.com/wuweiapp/wuwei/internal/chat"
	"github.com/wuweiapp/wuwei/internal/config"
	"github.com/wuweiapp/wuwei/internal/journal"
	"github.com/wuweiapp/wuwei/internal/llm"
	"github.com/wuweiapp/wuwei/internal/mantras"
	"github.com/wuweiapp/wuwei/internal/todos"
	"github.com/wuweiapp/wuwei/internal/tools"
	"github.com/wuweiapp/wuwei/internal/users"
	"github.com/wuweiapp/wuwei/internal/web"

	_ "modernc.org/sqlite" // SQLite driver for database/sql
)

// main is intentionally minimal. It constructs the OS-level environment
// (context, stdio, argv) and delegates immediately to [run]. This keeps
// os.Exit, os.Stdout, and os.Args out of the application logic so that
// the full startup-to-shutdown lifecycle can be driven from tests.
func main() {
	ctx := context.Background()

	if err := run(ctx, os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

// run is the real entry point for the wuwei command. All OS-level
// dependencies are injected as parameters:
//
//   - ctx controls the lifetime of the process. Cancelling it triggers
//     graceful shutdown of the server and background goroutines.
//   - stdout and stderr receive all program output. Structured logs go
//     to stdout; fatal error messages go to stderr.
//   - args is os.Args[1:] — the command-line arguments after the program
//     name. We parse these manually rather than using the flag package
//     to avoid global state that interferes with parallel tests.
//
// run returns nil on clean shutdown and a non-nil error for any failure.
// The caller (main) is responsible for printing the error and exiting.
func run(ctx context.Context, stdout io.Writer, stderr io.Writer, args []string) error {
	// Parse arguments by hand. The flag package relies on package-level
	// globals (flag.CommandLine), which makes it impossible to call run()
	// concurrently from tests. Our argument surface is small enough that
	// manual parsing is clearer than bringing in a CLI framework.
	var configPath string
	var outputFmt string // "text" (default) or "json"
	var command string
	var cmdArgs []string

	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "-config" && i+1 < len(args):
			configPath = args[i+1]
			i++ // skip the value
		case strings.HasPrefix(args[i], "-config="):
			configPath = strings.TrimPrefix(args[i], "-config=")
		case (args[i] == "-o" || args[i] == "--output") && i+1 < len(args):
			outputFmt = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-o="):
			outputFmt = strings.TrimPrefix(args[i], "-o=")
		case strings.HasPrefix(args[i], "--output="):
			outputFmt = strings.TrimPrefix(args[i], "--output=")
		case args[i] == "-h" || args[i] == "-help" || args[i] == "--help":
			return printUsage(stdout)
		case !strings.HasPrefix(args[i], "-") && command == "":
			command = args[i]
		default:
			if command != "" {
				// Collect remaining args as subcommand arguments.
				cmdArgs = append(cmdArgs, args[i])
			} else {
				return fmt.Errorf("unknown flag: %s", args[i])
			}
		}
	}

	// Default to human-readable text output.
	if outputFmt == "" {
		outputFmt = "text"
	}
	if outputFmt != "text" && outputFmt != "json" {
		return fmt.Errorf("unknown output format: %q (expected text or json)", outputFmt)
	}

	switch command {
	case "serve":
		return runServe(ctx, stdout, configPath)
	case "init":
		dir := "."
		if len(cmdArgs) > 0 {
			dir = cmdArgs[0]
		}
		return runInit(stdout, dir)
	case "ask":
		if len(cmdArgs) == 0 {
			return fmt.Errorf("usage: wuwei ask <message>")
		}
		return runAsk(ctx, stdout, configPath, cmdArgs)
	case "version":
		return runVersion(stdout, outputFmt)
	case "":
		return printUsage(stdout)
	default:
		return fmt.Errorf("unknown command: %s", command)
	}
}

// runVersion prints build metadata in the requested output format.
func runVersion(w io.Writer, outputFmt string) error {
	info := buildinfo.Info()
	if outputFmt == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	}
	fmt.Fprintln(w, buildinfo.String())
	// Print fields in a stable order for human readability.
	for _, k := range []string{"version", "git_commit", "build_time", "go_version", "os", "arch"} {
		if v, ok := info[k]; ok {
			fmt.Fprintf(w, "  %-12s %s\n", k+":", v)
		}
	}
	return nil
}

// printUsage writes the top-level help text to w. It is called when
// wuwei is invoked with no arguments, or with -h / --help.
func printUsage(w io.Writer) error {
	fmt.Fprintln(w, "WuWei - Conversational Wellness Companion")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage: wuwei [flags] <command> [args]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  serve          Start the API server")
	fmt.Fprintln(w, "  init [dir]     Initialize working directory with defaults (default: .)")
	fmt.Fprintln(w, "  ask <message>  Send a single message (for testing)")
	fmt.Fprintln(w, "  version        Show version information")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Flags:")
	fmt.Fprintln(w, "  -config <path>    Path to config file (default: auto-discover)")
	fmt.Fprintln(w, "  -o, --output fmt  Output format: text (default) or json")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Config search order:")
	fmt.Fprintln(w, "  ./config.yaml, ~/.config/wuwei/config.yaml, /etc/wuwei/config.yaml")
	return nil
}

// runInit initializes a WuWei working directory with default files. It
// creates the data directory and writes a commented config template.
// Existing files are never overwritten.
func runInit(w io.Writer, dir string) error {
	fmt.Fprintf(w, "Initializing WuWei workspace in %s\n", dir)

	dataDir := filepath.Join(dir, "data")
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", dataDir, err)
	}

	configPath := filepath.Join(dir, "config.yaml")
	if err := writeIfMissing(configPath, []byte(config.DefaultYAML)); err != nil {
		return err
	}
	fmt.Fprintf(w, "  ✓ %s\n", configPath)

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Edit config.yaml (or set ANTHROPIC_API_KEY) and run: wuwei serve")
	return nil
}

// writeIfMissing writes content to path only if the file does not already
// exist. This ensures init never overwrites user customizations.
func writeIfMissing(path string, content []byte) error {
	if _, err := os.Stat(path); err == nil {
		return nil // already exists, skip
	}
	return os.WriteFile(path, content, 0o644)
}

// runAsk handles the "wuwei ask <message>" subcommand. It boots the full
// agent over an in-memory database, runs a single exchange under a local
// account, and prints the response. Useful for quick smoke tests and
// debugging without starting the server.
func runAsk(ctx context.Context, stdout io.Writer, configPath string, args []string) error {
	logger := newLogger(stdout, slog.LevelWarn, "text")

	message := strings.Join(args, " ")

	cfg, _, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	// Nothing to persist for a one-shot exchange.
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(1)

	stores, err := openStores(db, logger)
	if err != nil {
		return err
	}

	registry, err := buildRegistry(stores, logger)
	if err != nil {
		return err
	}

	client := llm.NewAnthropicClient(cfg.Anthropic.APIKey, logger)
	loop := agent.NewLoop(client, registry, cfg.Agent.Model, cfg.Agent.MaxTokens, logger)

	u, err := stores.Users.GetOrCreateByEmail("cli@local")
	if err != nil {
		return fmt.Errorf("create local account: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, cfg.Agent.Timeout())
	defer cancel()

	reply, err := loop.Run(ctx, tools.Identity{UserID: u.ID}, nil, message)
	if err != nil {
		return fmt.Errorf("ask: %w", err)
	}

	fmt.Fprintln(stdout, reply)
	return nil
}

// runServe handles the "wuwei serve" subcommand. It is the primary
// operating mode: loads config, opens the database, wires the stores
// and tools into the agent loop, starts the API server, and blocks
// until a shutdown signal arrives.
//
// The shutdown sequence is:
//  1. SIGINT or SIGTERM cancels the context
//  2. The HTTP server drains in-flight requests
//  3. The database connection is closed via defer
func runServe(ctx context.Context, stdout io.Writer, configPath string) error {
	logger := newLogger(stdout, slog.LevelInfo, "text")
	logger.Info("starting WuWei", "version", buildinfo.Version, "commit", buildinfo.GitCommit, "built", buildinfo.BuildTime)

	cfg, cfgPath, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	// Reconfigure the logger now that we know the desired level and
	// format. The initial Info-level text logger covers only the startup
	// banner.
	{
		level := slog.LevelInfo
		if cfg.LogLevel != "" {
			level, err = config.ParseLogLevel(cfg.LogLevel)
			if err != nil {
				return err
			}
		}
		logger = newLogger(stdout, level, cfg.LogFormat)
	}

	logger.Info("config loaded",
		"path", cfgPath,
		"port", cfg.Listen.Port,
		"model", cfg.Agent.Model,
	)

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("create data directory %s: %w", cfg.DataDir, err)
	}

	// All persistent state lives in one SQLite database. The single
	// connection serializes writers, which SQLite requires anyway.
	dbPath := filepath.Join(cfg.DataDir, "wuwei.db")
	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return fmt.Errorf("open database %s: %w", dbPath, err)
	}
	defer db.Close()
	db.SetMaxOpenConns(1)
	logger.Info("database opened", "path", dbPath)

	stores, err := openStores(db, logger)
	if err != nil {
		return err
	}

	registry, err := buildRegistry(stores, logger)
	if err != nil {
		return err
	}
	logger.Info("tools registered", "names", registry.Names())

	if cfg.Anthropic.APIKey == "" {
		logger.Warn("no server-wide Anthropic API key configured; accounts must store their own")
	}
	client := llm.NewAnthropicClient(cfg.Anthropic.APIKey, logger)
	loop := agent.NewLoop(client, registry, cfg.Agent.Model, cfg.Agent.MaxTokens, logger)

	server := web.NewServer(cfg.Listen.Address, cfg.Listen.Port, loop, stores, cfg.Agent.Timeout(), logger)

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	go func() {
		<-ctx.Done()
		logger.Info("shutdown signal received")
		_ = server.Shutdown(context.Background())
	}()

	// Start blocks until the server is shut down (via context
	// cancellation or fatal error).
	if err := server.Start(ctx); err != nil {
		if ctx.Err() == nil {
			return fmt.Errorf("server failed: %w", err)
		}
	}

	logger.Info("WuWei stopped")
	return nil
}

// openStores constructs every per-concern store over the shared
// database handle, running migrations as a side effect.
func openStores(db *sql.DB, logger *slog.Logger) (web.Stores, error) {
	userStore, err := users.NewStore(db, logger)
	if err != nil {
		return web.Stores{}, fmt.Errorf("users store: %w", err)
	}
	chatStore, err := chat.NewStore(db, logger)
	if err != nil {
		return web.Stores{}, fmt.Errorf("chat store: %w", err)
	}
	todoStore, err := todos.NewStore(db, logger)
	if err != nil {
		return web.Stores{}, fmt.Errorf("todos store: %w", err)
	}
	mantraStore, err := mantras.NewStore(db, logger)
	if err != nil {
		return web.Stores{}, fmt.Errorf("mantras store: %w", err)
	}
	journalStore, err := journal.NewStore(db, logger)
	if err != nil {
		return web.Stores{}, fmt.Errorf("journal store: %w", err)
	}

	return web.Stores{
		Users:   userStore,
		Chat:    chatStore,
		Todos:   todoStore,
		Mantras: mantraStore,
		Journal: journalStore,
	}, nil
}

// buildRegistry registers every tool the assistant can call.
func buildRegistry(stores web.Stores, logger *slog.Logger) (*tools.Registry, error) {
	registry := tools.NewRegistry(logger)

	if err := todos.NewTools(stores.Todos).RegisterTools(registry); err != nil {
		return nil, fmt.Errorf("register todo tools: %w", err)
	}
	if err := journal.NewTools(stores.Journal).RegisterTools(registry); err != nil {
		return nil, fmt.Errorf("register journal tools: %w", err)
	}
	if err := mantras.NewTools(stores.Mantras).RegisterTools(registry); err != nil {
		return nil, fmt.Errorf("register mantra tools: %w", err)
	}

	return registry, nil
}

// newLogger creates a structured logger that writes to w at the given
// level and format. Format must be "text" or "json"; any other value
// defaults to text. All log output in WuWei goes through slog; this
// helper standardizes the handler configuration across subcommands.
func newLogger(w io.Writer, level slog.Level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: config.ReplaceLogLevelNames,
	}
	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}

// loadConfig locates and parses the YAML configuration file. If explicit
// is non-empty, that exact path is used (and must exist). Otherwise,
// [config.FindConfig] searches the default locations. Returns the parsed
// config, the path that was loaded, and any error.
func loadConfig(explicit string) (*config.Config, string, error) {
	cfgPath, err := config.FindConfig(explicit)
	if err != nil {
		return nil, "", err
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, cfgPath, fmt.Errorf("load config %s: %w", cfgPath, err)
	}

	return cfg, cfgPath, nil
}
