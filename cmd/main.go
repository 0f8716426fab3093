package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"design-proxy/internal/app"
	"design-proxy/internal/billing"
	"design-proxy/internal/config"
	"design-proxy/internal/costs"
	"design-proxy/internal/credentials"
	"design-proxy/internal/figma"
	"design-proxy/internal/llm"
	"design-proxy/internal/storage"
	"design-proxy/pkg/ratelimit"
)

func main() {
	// Create a context that will be canceled on program termination
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Set up signal handling for graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Println("Shutting down...")
		cancel()
	}()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Could not load configuration: %v", err)
	}

	storagePath := cfg.StoragePath
	if storagePath == "" {
		storagePath = storage.DefaultPath()
	}
	backend := storage.NewFileStore(storagePath)

	governor, err := costs.NewGovernor(backend, cfg.Pricing)
	if err != nil {
		log.Fatalf("Could not initialize cost governor: %v", err)
	}
	credentialStore := credentials.NewStore(backend)

	figmaClient := figma.NewClient(ratelimit.New(cfg.APIRate.MaxRequests, cfg.APIRate.Window()))
	if cfg.FigmaBaseURL != "" {
		figmaClient.BaseURL = cfg.FigmaBaseURL
	}

	llmService := llm.NewService(ratelimit.New(cfg.ExportRate.MaxRequests, cfg.ExportRate.Window()), governor)
	if cfg.OpenAIBaseURL != "" {
		llmService.BaseURL = cfg.OpenAIBaseURL
	}

	// Initialize Stripe usage export if an API key is provided
	if cfg.StripeAPIKey != "" {
		exporter, err := billing.NewExporter(cfg.StripeAPIKey, cfg.StripePromptItem, cfg.StripeCompletionItem)
		if err != nil {
			log.Printf("Failed to initialize Stripe usage export: %v", err)
		} else {
			llmService.SetExporter(exporter)
			log.Println("Stripe usage export enabled")
		}
	}

	a := app.NewApp(cfg, figmaClient, llmService, credentialStore, governor)

	// Start HTTP server with graceful shutdown
	server := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: a.Router,
	}

	// Start the server in a goroutine
	go func() {
		log.Printf("Starting server on :%s...", cfg.ServerPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Could not start server: %v", err)
		}
	}()

	// Wait for shutdown signal
	<-ctx.Done()

	// Create a deadline for server shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	// Attempt graceful shutdown
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Error during server shutdown: %v", err)
	} else {
		log.Println("Server gracefully stopped")
	}
}
