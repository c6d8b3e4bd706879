// ABOUTME: Interactive CLI client for the fold chat server
// ABOUTME: Wires transport, store, reconciler, and coordinator; readline-style input loop

package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/google/uuid"

	"github.com/2389/fold-client/internal/api"
	"github.com/2389/fold-client/internal/config"
	"github.com/2389/fold-client/internal/conversation"
	"github.com/2389/fold-client/internal/transport"
)

var (
	userStyle   = color.New(color.FgCyan, color.Bold)
	replyStyle  = color.New(color.FgGreen)
	noticeStyle = color.New(color.FgYellow)
	errorStyle  = color.New(color.FgRed)
	dimStyle    = color.New(color.Faint)
)

// defaultConfigPath resolves the XDG config location for the client.
func defaultConfigPath() string {
	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		configDir = filepath.Join(homeDir, ".config")
	}
	return filepath.Join(configDir, "fold", "config.yaml")
}

func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelWarn
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.New(handler)
}

func main() {
	configPath := flag.String("config", defaultConfigPath(), "Path to config file")
	serverURL := flag.String("server", "", "Override server HTTP URL")
	wsURL := flag.String("ws", "", "Override server websocket URL")
	userID := flag.String("user", "", "Override user id")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	if *serverURL != "" {
		cfg.Server.HTTPURL = *serverURL
	}
	if *wsURL != "" {
		cfg.Server.WSURL = *wsURL
	}
	if *userID != "" {
		cfg.User.ID = *userID
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid config: %v\n", err)
		os.Exit(1)
	}

	logger := setupLogger(cfg.Logging)
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	app := newApp(cfg, logger)
	app.start(ctx)
	defer app.stop()

	fmt.Printf("fold-chat connected to %s as %s\n", cfg.Server.WSURL, cfg.User.ID)
	fmt.Println("Type a message and press Enter. /help for commands. Ctrl+C to quit.")
	fmt.Println()

	if err := app.run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("\nGoodbye!")
}

// app holds the assembled engine and the interactive state.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	clientID string

	store       *conversation.Store
	changes     *conversation.Broadcaster
	reconciler  *conversation.Reconciler
	coordinator *conversation.Coordinator
	transport   *transport.Manager
	api         *api.Client
}

func newApp(cfg *config.Config, logger *slog.Logger) *app {
	clientID := uuid.NewString()

	store := conversation.NewStore(logger)
	changes := conversation.NewBroadcaster(logger)
	reconciler := conversation.NewReconciler(store, changes, logger)

	mgr := transport.NewManager(transport.Options{
		URL:         cfg.Server.WSURL,
		BackoffBase: cfg.Connection.BackoffBase,
		BackoffCap:  cfg.Connection.BackoffCap,
		Logger:      logger,
	})

	apiClient := api.New(api.Options{
		BaseURL: cfg.Server.HTTPURL,
		UserID:  cfg.User.ID,
		Token:   cfg.Server.Token,
		Logger:  logger,
	})

	coordinator := conversation.NewCoordinator(conversation.Options{
		Store:            store,
		Reconciler:       reconciler,
		Transport:        mgr,
		API:              apiClient,
		Changes:          changes,
		Logger:           logger,
		UserID:           cfg.User.ID,
		ClientID:         clientID,
		OperationTimeout: cfg.Operations.Timeout,
	})

	return &app{
		cfg:         cfg,
		logger:      logger,
		clientID:    clientID,
		store:       store,
		changes:     changes,
		reconciler:  reconciler,
		coordinator: coordinator,
		transport:   mgr,
		api:         apiClient,
	}
}

// start wires inbound envelopes into the reconciler and begins connecting.
func (a *app) start(ctx context.Context) {
	a.transport.On(transport.EventMessage, a.reconciler.Apply)
	a.transport.On(transport.EventNotification, a.reconciler.Apply)
	a.transport.On(transport.EventError, a.reconciler.Apply)

	a.transport.OnStateChange(func(s transport.State) {
		switch s {
		case transport.StateConnected, transport.StateReconnecting:
			a.changes.Publish(conversation.Change{
				Kind:   conversation.ChangeConnection,
				Detail: s.String(),
			})
		}
	})

	go a.watchChanges(ctx)

	a.transport.Connect(ctx, a.clientID)
}

func (a *app) stop() {
	a.transport.Close()
	a.changes.Close()
}

// watchChanges prints store changes as they land: incoming responses,
// version replacements, and operation failures.
func (a *app) watchChanges(ctx context.Context) {
	sub, _ := a.changes.Subscribe(ctx)
	for change := range sub {
		switch change.Kind {
		case conversation.ChangeMessage, conversation.ChangeVersion:
			content, role, ok := a.lookupChange(change)
			if !ok {
				continue
			}
			switch role {
			case "assistant":
				replyStyle.Printf("\n%s\n", content)
			case "system":
				noticeStyle.Printf("\n[%s]\n", content)
			default:
				continue
			}
			fmt.Print("> ")
		case conversation.ChangeConnection:
			noticeStyle.Printf("\n[%s]\n", change.Detail)
			fmt.Print("> ")
		case conversation.ChangeOperationFailed:
			errorStyle.Printf("\n[operation failed] %s\n", change.Detail)
			fmt.Print("> ")
		}
	}
}

// lookupChange resolves a change to printable content. Version changes carry
// the parent exchange id; the active version is what gets shown.
func (a *app) lookupChange(change conversation.Change) (content, role string, ok bool) {
	if change.MessageID != "" {
		msg, found := a.store.Message(change.MessageID)
		if !found {
			return "", "", false
		}
		return msg.Content, msg.Role, true
	}
	if change.ParentID != "" {
		set, found := a.store.VersionSet(change.ParentID)
		if !found {
			return "", "", false
		}
		if active, has := set.Active(); has {
			return active.Content, "assistant", true
		}
	}
	return "", "", false
}

// run is the interactive loop.
func (a *app) run(ctx context.Context) error {
	scanner := bufio.NewScanner(os.Stdin)

	for {
		fmt.Print("> ")

		inputCh := make(chan string, 1)
		errCh := make(chan error, 1)

		go func() {
			if scanner.Scan() {
				inputCh <- scanner.Text()
			} else if err := scanner.Err(); err != nil {
				errCh <- err
			} else {
				errCh <- io.EOF
			}
		}()

		var input string
		select {
		case <-ctx.Done():
			return nil
		case err := <-errCh:
			if err == io.EOF {
				return nil
			}
			return fmt.Errorf("reading input: %w", err)
		case input = <-inputCh:
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}

		if input == "/quit" || input == "/exit" || input == "/q" {
			return nil
		}

		if strings.HasPrefix(input, "/") {
			a.handleCommand(ctx, input)
			fmt.Println()
			continue
		}

		userStyle.Printf("you: %s\n", input)
		if _, err := a.coordinator.Send(input); err != nil {
			errorStyle.Printf("[error] %v\n", err)
		}
	}
}
