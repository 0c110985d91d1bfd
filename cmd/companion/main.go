package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"carecompanion/internal/capability"
	"carecompanion/internal/companion"
	"carecompanion/internal/config"
	"carecompanion/internal/core"
	"carecompanion/internal/logger"
	"carecompanion/internal/nodes"
	"carecompanion/internal/storage"
	"carecompanion/pkg"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config.yaml")
	subjectID := flag.String("subject", "", "subject id (overrides config)")
	flag.Parse()

	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "loading config: %v\n", err)
		os.Exit(1)
	}
	if *subjectID != "" {
		cfg.SubjectID = *subjectID
	}

	log, err := logger.New(logger.Options{
		Level:    cfg.Log.Level,
		Format:   cfg.Log.Format,
		Output:   cfg.Log.Output,
		FilePath: cfg.Log.FilePath,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuring logger: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()

	svc, cleanup, err := buildService(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("startup failed")
	}
	defer cleanup()

	if err := repl(ctx, svc, cfg.SubjectID); err != nil {
		log.Fatal().Err(err).Msg("session ended with error")
	}
}

func buildService(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*companion.Service, func(), error) {
	cleanup := func() {}

	var store storage.DurableStore
	switch cfg.Storage.Backend {
	case "memory":
		store = storage.NewMemoryStore()
	case "sqlite":
		sqliteStore, err := storage.NewSQLiteStore(cfg.Storage.SQLitePath)
		if err != nil {
			return nil, cleanup, fmt.Errorf("opening durable store: %w", err)
		}
		cleanup = func() { sqliteStore.Close() }
		store = sqliteStore
	default:
		return nil, cleanup, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}

	var sessions storage.SessionStore
	switch cfg.Session.Backend {
	case "redis":
		redisSessions, err := storage.NewRedisSessionStore(ctx, cfg.Session.RedisURL, cfg.Session.IdleTTL.Std())
		if err != nil {
			return nil, cleanup, fmt.Errorf("connecting session store: %w", err)
		}
		sessions = redisSessions
	case "memory", "":
		memSessions := storage.NewMemorySessionStore()
		memSessions.StartSweeper(ctx, cfg.Session.SweepInterval.Std())
		sessions = memSessions
	default:
		return nil, cleanup, fmt.Errorf("unknown session backend %q", cfg.Session.Backend)
	}

	llm, err := capability.New(ctx, cfg.CapabilityConfig())
	if err != nil {
		return nil, cleanup, fmt.Errorf("building capability: %w", err)
	}

	engine, err := core.NewEngine(log,
		nodes.NewRecall(store, llm, log),
		nodes.NewSupervisor(sessions, store, llm, log),
		nodes.NewTask(store, llm, log),
		nodes.NewHealth(store, llm, log),
		nodes.NewComfort(store, llm, log),
	)
	if err != nil {
		return nil, cleanup, err
	}

	return companion.NewService(engine, store, sessions, log), cleanup, nil
}

func repl(ctx context.Context, svc *companion.Service, subjectID string) error {
	fmt.Printf("Care companion ready for subject %q. Type 'quit' to exit.\n", subjectID)

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}
		if input == "quit" || input == "exit" {
			return nil
		}

		state, err := svc.RunTurn(ctx, subjectID, input, nil)
		if err != nil {
			fmt.Println("I couldn't process that, please try again.")
			continue
		}
		printTurn(state)
	}
}

func printTurn(state pkg.TurnState) {
	if len(state.ConversationLog) > 0 {
		fmt.Println(state.ConversationLog[len(state.ConversationLog)-1])
	}
	if state.IsEmergency {
		fmt.Println("[!] caretaker has been alerted")
	}
	if len(state.Tasks) > 0 && state.Route == pkg.RouteTask {
		fmt.Println("Your activities:")
		for _, task := range state.Tasks {
			fmt.Printf("  - %s\n", task)
		}
	}
	if c := state.Comfort; c != nil {
		for _, photo := range c.Photos {
			fmt.Printf("  [photo] %s\n", photo.Path)
		}
		if c.Audio != nil {
			fmt.Printf("  [audio] %s\n", c.Audio.Path)
		}
		if c.CallSuggestion != nil {
			fmt.Printf("  [call] %s (%s)\n", c.CallSuggestion.Name, c.CallSuggestion.PhoneNumber)
		}
	}
}
