// Command factory-chat is an interactive terminal client for the
// factory assistant. It keeps conversation history and a rolling
// summary in the memory store, so a session resumed with the same
// conversation id picks up where it left off.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	factorymcp "github.com/plantops/factory-mcp"
	"github.com/plantops/factory-mcp/agent"
	"github.com/plantops/factory-mcp/llm"
	"github.com/plantops/factory-mcp/llm/anthropic"
	"github.com/plantops/factory-mcp/llm/openai"
	"github.com/plantops/factory-mcp/memory"
	memorypg "github.com/plantops/factory-mcp/memory/postgres"
	memorysqlite "github.com/plantops/factory-mcp/memory/sqlite"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	convID := flag.String("conversation", "", "conversation id to resume (default: a new one)")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	slog.SetDefault(logger)

	if err := run(*configPath, *convID, logger); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(configPath, convID string, logger *slog.Logger) error {
	ctx := context.Background()

	cfg, err := factorymcp.Load(configPath)
	if err != nil {
		return err
	}

	store, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	provider, err := buildProvider(cfg)
	if err != nil {
		return err
	}

	tools, err := agent.NewMCPCaller(ctx, cfg.MCPURL, factorymcp.Version)
	if err != nil {
		return err
	}
	defer tools.Close()

	if convID == "" {
		convID = uuid.New().String()
	}
	if err := store.CreateConversation(ctx, convID, "factory chat"); err != nil {
		return err
	}

	a := agent.New(store, provider, tools, agent.Config{
		Model:  cfg.Model,
		Logger: logger,
	})

	fmt.Printf("conversation %s — /history, /summary, /clear, /quit\n", convID)

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		switch line {
		case "/quit", "/exit":
			return nil

		case "/history":
			msgs, err := store.LoadMessages(ctx, convID, 50)
			if err != nil {
				return err
			}
			for _, m := range msgs {
				fmt.Printf("[%s] %s: %s\n", m.TS, m.Role, m.Content)
			}

		case "/summary":
			summary, err := store.GetSummary(ctx, convID)
			if err != nil {
				return err
			}
			if summary == "" {
				fmt.Println("(no summary yet)")
			} else {
				fmt.Println(summary)
			}

		case "/clear":
			if err := store.ClearConversation(ctx, convID); err != nil {
				return err
			}
			fmt.Println("conversation cleared")

		default:
			reply, err := a.Chat(ctx, convID, line)
			if err != nil {
				fmt.Fprintln(os.Stderr, "chat failed:", err)
				continue
			}
			fmt.Println(reply)
		}
	}
}

func openStore(ctx context.Context, cfg factorymcp.Config) (memory.Store, error) {
	switch cfg.MemoryBackend {
	case "postgres":
		pool, err := pgxpool.New(ctx, cfg.PostgresURL)
		if err != nil {
			return nil, fmt.Errorf("connecting to postgres: %w", err)
		}
		if _, err := pool.Exec(ctx, memorypg.Migration); err != nil {
			pool.Close()
			return nil, fmt.Errorf("migrating memory tables: %w", err)
		}
		return memorypg.New(pool), nil

	case "memory":
		return memory.NewMemoryStore(), nil

	default:
		return memorysqlite.Open(cfg.MemoryDBPath)
	}
}

func buildProvider(cfg factorymcp.Config) (llm.Provider, error) {
	switch cfg.Provider {
	case "anthropic":
		return anthropic.New(anthropic.Config{APIKey: cfg.AnthropicAPIKey}), nil
	default:
		return openai.New(openai.Config{
			APIKey:  cfg.OpenAIAPIKey,
			BaseURL: cfg.OpenAIBaseURL,
		}), nil
	}
}
