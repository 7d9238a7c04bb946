// Command lightragd runs the multi-tenant knowledge-retrieval service.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/meshfirm/lightrag/pkg/auth"
	"github.com/meshfirm/lightrag/pkg/config"
	"github.com/meshfirm/lightrag/pkg/llm"
	"github.com/meshfirm/lightrag/pkg/rag"
	"github.com/meshfirm/lightrag/pkg/server"
	"github.com/meshfirm/lightrag/pkg/storage"
)

var (
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "lightragd",
		Short: "Multi-tenant knowledge-retrieval service",
		Long: `lightragd multiplexes a knowledge-retrieval engine across many
tenants: each tenant gets an isolated working directory, graph namespace,
and vector/KV stores over one shared process and one shared graph
database.`,
	}

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("lightragd v%s (%s) built %s\n", version, commit, buildTime)
		},
	})

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the retrieval service",
		RunE:  runServe,
	}
	serveCmd.Flags().String("config", "", "Config file path (default: auto-discover)")
	serveCmd.Flags().String("address", "", "Bind address (overrides config)")
	serveCmd.Flags().Int("http-port", 0, "HTTP port (overrides config)")
	serveCmd.Flags().String("data-dir", "", "Data directory (overrides config)")
	serveCmd.Flags().Int("max-instances", -1, "Instance cache capacity, 0 = unbounded (overrides config)")
	serveCmd.Flags().Duration("max-idle", 0, "Idle eviction threshold (overrides config)")
	rootCmd.AddCommand(serveCmd)

	tokenCmd := &cobra.Command{
		Use:   "token <tenant-id>",
		Short: "Issue a tenant bearer token",
		Args:  cobra.ExactArgs(1),
		RunE:  runToken,
	}
	tokenCmd.Flags().String("secret", os.Getenv("LIGHTRAG_JWT_SECRET"), "JWT signing secret")
	tokenCmd.Flags().Duration("ttl", 24*time.Hour, "Token lifetime")
	rootCmd.AddCommand(tokenCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		path = config.FindConfigFile()
	}
	cfg, err := config.LoadFromFile(path)
	if err != nil {
		return nil, err
	}

	if address, _ := cmd.Flags().GetString("address"); address != "" {
		cfg.Server.Address = address
	}
	if port, _ := cmd.Flags().GetInt("http-port"); port > 0 {
		cfg.Server.Port = port
	}
	if dataDir, _ := cmd.Flags().GetString("data-dir"); dataDir != "" {
		cfg.Storage.DataDir = dataDir
	}
	if maxInstances, _ := cmd.Flags().GetInt("max-instances"); maxInstances >= 0 {
		cfg.Tenancy.MaxInstances = maxInstances
	}
	if maxIdle, _ := cmd.Flags().GetDuration("max-idle"); maxIdle > 0 {
		cfg.Tenancy.MaxIdle = maxIdle
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	log.Printf("⚙️  %s", cfg)

	engine, err := storage.NewBadgerEngineWithOptions(storage.BadgerOptions{
		DataDir:    filepath.Join(cfg.Storage.DataDir, "graph"),
		SyncWrites: cfg.Storage.SyncWrites,
	})
	if err != nil {
		return fmt.Errorf("opening graph storage: %w", err)
	}
	defer func() {
		if err := engine.Close(); err != nil {
			log.Printf("⚠️  closing graph storage: %v", err)
		}
	}()

	embedding, model, err := buildLLM(cfg)
	if err != nil {
		return err
	}

	manager, err := rag.NewManager(rag.Config{
		BasePath:  cfg.TenantBasePath(),
		Graph:     engine,
		Embedding: embedding,
		Model:     model,
	}, rag.ManagerOptions{
		MaxIdle:         cfg.Tenancy.MaxIdle,
		CleanupInterval: cfg.Tenancy.CleanupInterval,
		MaxInstances:    cfg.Tenancy.MaxInstances,
	})
	if err != nil {
		return err
	}
	defer manager.Shutdown()

	srv := server.New(manager, auth.NewVerifier(cfg.Auth.JWTSecret), &server.Config{
		Address:        cfg.Server.Address,
		Port:           cfg.Server.Port,
		MaxRequestSize: 16 * 1024 * 1024,
		ReadTimeout:    60 * time.Second,
		WriteTimeout:   120 * time.Second,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Printf("🛑 received %s, shutting down", sig)
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Stop(ctx); err != nil {
			log.Printf("⚠️  server shutdown: %v", err)
		}
		return nil
	case err := <-errCh:
		return err
	}
}

// buildLLM wires the configured provider, falling back to a local hash
// embedding and context-only answers when none is set.
func buildLLM(cfg *config.Config) (llm.EmbeddingFunc, llm.ModelFunc, error) {
	switch cfg.LLM.Provider {
	case "openai":
		provider, err := llm.NewOpenAIProvider(cfg.LLM.APIKey, llm.OpenAIOptions{
			BaseURL:        cfg.LLM.BaseURL,
			ChatModel:      cfg.LLM.ChatModel,
			EmbeddingModel: cfg.LLM.EmbeddingModel,
		})
		if err != nil {
			return nil, nil, err
		}
		return provider.Embed, provider.Generate, nil
	default:
		log.Printf("⚠️  no LLM provider configured, using local hash embeddings and context-only answers")
		return llm.HashEmbedding(256), nil, nil
	}
}

func runToken(cmd *cobra.Command, args []string) error {
	secret, _ := cmd.Flags().GetString("secret")
	if secret == "" {
		return fmt.Errorf("a signing secret is required (--secret or LIGHTRAG_JWT_SECRET)")
	}
	ttl, _ := cmd.Flags().GetDuration("ttl")

	token, err := auth.NewVerifier(secret).IssueToken(args[0], ttl)
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}
