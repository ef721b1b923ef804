package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"pnj.com/jewelry-designer/internal/api"
	"pnj.com/jewelry-designer/internal/blob"
	"pnj.com/jewelry-designer/internal/config"
	"pnj.com/jewelry-designer/internal/core"
	"pnj.com/jewelry-designer/internal/render"
	"pnj.com/jewelry-designer/internal/store"
)

func main() {
	// Command line flag for catalog ingestion
	ingestDir := flag.String("ingest", "", "Ingest product catalog JSON files from this directory and exit")
	flag.Parse()

	// Load configuration
	config.LoadConfig()

	// Setup logging
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	if config.AppConfig.LogLevel == "DEBUG" {
		log.Println("Service starting in DEBUG mode")
	}

	ctx := context.Background()

	// Initialize database store
	dbStore, err := store.Open(config.AppConfig.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer dbStore.Close()

	// Handle catalog ingestion if flag is set
	if *ingestDir != "" {
		log.Printf("Starting product ingestion from %s...", *ingestDir)
		numIngested, err := dbStore.IngestProductsFromDir(ctx, *ingestDir)
		if err != nil {
			dbStore.Close()
			log.Fatalf("Product ingestion failed: %v", err)
		}
		log.Printf("Product ingestion complete. Ingested %d products. Exiting.", numIngested)
		dbStore.Close()
		os.Exit(0) // Exit after ingestion
	}

	// Optional object storage for image bytes
	var objects core.ObjectStore
	if config.AppConfig.S3.Enabled() {
		s3, err := blob.NewS3Store(config.AppConfig.S3)
		if err != nil {
			log.Fatalf("Failed to initialize object storage: %v", err)
		}
		objects = s3
		log.Printf("Storing image bytes in bucket %s at %s", config.AppConfig.S3.Bucket, config.AppConfig.S3.Endpoint)
	}

	// Initialize LLM service
	llmService, err := core.NewLLMService(ctx)
	if err != nil {
		log.Fatalf("Failed to initialize LLM service: %v", err)
	}
	defer llmService.Close()

	var renderer core.DesignRenderer
	if config.AppConfig.RenderImages {
		r, err := render.NewRenderer(ctx, config.AppConfig.GeminiAPIKey, config.AppConfig.ImageModel)
		if err != nil {
			log.Fatalf("Failed to initialize image renderer: %v", err)
		}
		renderer = r
	} else {
		log.Println("Design rendering disabled; designs will be returned without images.")
	}

	imageService, err := core.NewImageService(dbStore, objects)
	if err != nil {
		log.Fatalf("Failed to initialize image service: %v", err)
	}
	recommendationService, err := core.NewRecommendationService(ctx, dbStore)
	if err != nil {
		log.Fatalf("Failed to initialize recommendation service: %v", err)
	}

	registry, err := core.NewToolRegistry(core.ToolDeps{
		Designer:    llmService,
		Renderer:    renderer,
		Images:      imageService,
		Recommender: recommendationService,
	})
	if err != nil {
		log.Fatalf("Failed to build tool registry: %v", err)
	}

	orchestrator := core.NewOrchestrator(llmService, registry)
	orchestrator.ModelTimeout = time.Duration(config.AppConfig.ModelTimeoutSeconds) * time.Second
	orchestrator.ToolTimeout = time.Duration(config.AppConfig.ToolTimeoutSeconds) * time.Second

	userService := core.NewUserService(dbStore)
	conversationService := core.NewConversationService(dbStore, imageService)
	chatService := core.NewChatService(dbStore, conversationService, imageService, orchestrator, llmService)

	// Initialize API Handler and Router
	apiHandler := api.NewAPIHandler(userService, conversationService, imageService, chatService)
	router := api.NewRouter(apiHandler, config.AppConfig.AllowedOrigins)

	// Start HTTP server
	serverAddr := fmt.Sprintf(":%s", config.AppConfig.HTTPPort)

	srv := &http.Server{
		Addr:        serverAddr,
		Handler:     router,
		ReadTimeout: 30 * time.Second, // Uploads can be up to 10MB
		// A chat turn may take several model calls and a rendering pass
		WriteTimeout: 10 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	// Graceful shutdown handling
	go func() {
		log.Printf("Starting server on %s. Press Ctrl+C to quit.", serverAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Could not listen on %s: %v\n", serverAddr, err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit // Block until a signal is received
	log.Println("Shutting down server...")

	// Give active connections time to finish.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	// llmService.Close() and dbStore.Close() will be called by their defers.
	log.Println("Server exiting gracefully")
}
