package cli

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dirchat/dirchat/internal/api/handlers"
	"github.com/dirchat/dirchat/internal/config"
	"github.com/dirchat/dirchat/internal/graphqa"
	"github.com/dirchat/dirchat/internal/openai"
	"github.com/dirchat/dirchat/internal/server"
	"github.com/spf13/cobra"
)

// GraphServeCmd returns the serve command for the graph QA server.
func GraphServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the graph QA server",
		Long:  "Start the dirchat graph QA server: answer natural-language questions against a Neo4j graph",
		RunE:  runGraphServe,
	}

	cmd.Flags().StringP("port", "p", "8081", "Port to listen on")

	return cmd
}

func runGraphServe(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if shutdownTelemetry := initTelemetry(); shutdownTelemetry != nil {
		defer shutdownTelemetry()
	}

	if !cfg.HasNeo4j() {
		return fmt.Errorf("NEO4J_URL is required")
	}
	if !cfg.HasOpenAI() {
		return fmt.Errorf("OPENAI_API_KEY is required")
	}

	port, _ := cmd.Flags().GetString("port")

	runner, err := graphqa.NewNeo4jRunner(ctx, cfg.Neo4jURL, cfg.Neo4jUsername, cfg.Neo4jPassword)
	if err != nil {
		return err
	}
	defer runner.Close(ctx)
	log.Println("connected to neo4j")

	llm := openai.NewClientWithConfig(openai.Config{
		APIKey:      cfg.OpenAIAPIKey,
		ChatModel:   cfg.ChatModel,
		Temperature: cfg.Temperature,
	})

	router := server.NewGraphRouter(server.GraphRouterConfig{
		GraphHandler: handlers.NewGraphHandler(graphqa.NewService(runner, llm)),
	})

	srv := &http.Server{
		Addr:    ":" + port,
		Handler: router,
	}

	go func() {
		log.Printf("starting graph QA server on port %s", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Println("server exited")
	return nil
}
