package cli

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dirchat/dirchat/internal/api/handlers"
	"github.com/dirchat/dirchat/internal/chunker"
	"github.com/dirchat/dirchat/internal/config"
	"github.com/dirchat/dirchat/internal/database"
	"github.com/dirchat/dirchat/internal/index"
	"github.com/dirchat/dirchat/internal/ingest"
	"github.com/dirchat/dirchat/internal/jobs"
	"github.com/dirchat/dirchat/internal/openai"
	"github.com/dirchat/dirchat/internal/repository"
	"github.com/dirchat/dirchat/internal/server"
	"github.com/dirchat/dirchat/internal/service"
	"github.com/dirchat/dirchat/internal/session"
	"github.com/dirchat/dirchat/internal/telemetry"
	"github.com/dirchat/dirchat/internal/tokenizer"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/jackc/pgx/v5/stdlib"
	gopenai "github.com/sashabaranov/go-openai"
	"github.com/spf13/cobra"
)

// reapInterval is how often idle sessions are swept.
const reapInterval = time.Minute

// ServeCmd returns the serve command for the document QA server.
func ServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the document QA server",
		Long:  "Start the dirchat API server: upload documents to a session, process them, and ask questions",
		RunE:  runServe,
	}

	cmd.Flags().StringP("port", "p", "8080", "Port to listen on")
	cmd.Flags().Bool("no-migrate", false, "Skip automatic database migrations on startup")

	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if shutdownTelemetry := initTelemetry(); shutdownTelemetry != nil {
		defer shutdownTelemetry()
	}

	portFlag, _ := cmd.Flags().GetString("port")
	if portFlag != "" && portFlag != "8080" {
		cfg.Port = portFlag
	}

	counter := tokenizer.NewTiktokenCounter("")
	if err := counter.Ready(); err != nil {
		log.Printf("token counting degraded to approximation: %v", err)
	}

	ingestor := ingest.NewAdapter()
	splitter := chunker.NewSplitter(counter, cfg.ChunkMaxTokens, cfg.ChunkOverlapTokens)

	clients := func(apiKey string) (index.Embedder, service.LLM) {
		client := openai.NewClientWithConfig(openai.Config{
			APIKey:         apiKey,
			EmbeddingModel: gopenai.EmbeddingModel(cfg.EmbedModel),
			ChatModel:      cfg.ChatModel,
			Temperature:    cfg.Temperature,
		})
		return client, client
	}

	// Chunks live in process memory unless a database is configured, in
	// which case processed corpora survive a restart.
	var builders session.BuilderFactory
	var cleanup func(ctx context.Context, sessionID string) error
	if cfg.HasDatabase() {
		pool, err := database.NewPool(ctx, database.Config{URL: cfg.DatabaseURL})
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer pool.Close()
		log.Println("connected to database")

		noMigrate, _ := cmd.Flags().GetBool("no-migrate")
		if !noMigrate {
			if err := runMigrations(cfg.DatabaseURL); err != nil {
				return fmt.Errorf("failed to run migrations: %w", err)
			}
		}

		store := repository.NewChunkStore(pool)
		builders = func(embedder index.Embedder, sessionID string) service.IndexBuilder {
			return repository.NewStoreBuilder(embedder, store, sessionID)
		}
		cleanup = store.DeleteSession
	}

	manager := session.NewManager(session.ManagerConfig{
		APIKey:            cfg.OpenAIAPIKey,
		TopK:              cfg.RetrievalTopK,
		Mode:              index.ModeMMR,
		MemoryTokenBudget: cfg.MemoryTokenBudget,
		IdleTTL:           time.Duration(cfg.SessionTTLMinutes) * time.Minute,
		Cleanup:           cleanup,
	}, ingestor, splitter, counter, clients, builders)

	reaper := jobs.NewWorker(jobs.NewSessionReaper(manager), reapInterval)
	go reaper.Start(ctx)
	log.Println("session reaper started")

	router := server.NewRouter(server.RouterConfig{
		SessionHandler: handlers.NewSessionHandler(manager),
	})

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		log.Printf("starting server on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("shutting down...")

	reaper.Stop()

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Println("server exited")
	return nil
}

// initTelemetry wires Sentry tracing when SENTRY_DSN is set. Serving
// continues without tracing if initialization fails.
func initTelemetry() func() {
	dsn := os.Getenv("SENTRY_DSN")
	if dsn == "" {
		return nil
	}

	environment := os.Getenv("ENVIRONMENT")
	if environment == "" {
		environment = "development"
	}

	sampleRate := 0.1
	if environment == "development" {
		sampleRate = 1.0
	}

	shutdown, err := telemetry.Init(telemetry.Config{
		DSN:              dsn,
		Environment:      environment,
		TracesSampleRate: sampleRate,
	})
	if err != nil {
		log.Printf("telemetry init failed (continuing without tracing): %v", err)
		return nil
	}
	return shutdown
}

func runMigrations(databaseURL string) error {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database for migrations: %w", err)
	}
	defer db.Close()

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	m, err := migrate.NewWithDatabaseInstance(
		"file://migrations",
		"postgres",
		driver,
	)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}

	err = m.Up()
	if err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	version, dirty, err := m.Version()
	if err != nil && err != migrate.ErrNilVersion {
		return fmt.Errorf("failed to get migration version: %w", err)
	}

	if err == migrate.ErrNilVersion {
		log.Println("migrations: database is up to date (no migrations applied)")
	} else if dirty {
		return fmt.Errorf("migration version %d is dirty - manual intervention required", version)
	} else {
		log.Printf("migrations: at version %d", version)
	}

	return nil
}
