package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/mondo989/MemeSync/internal/api"
	"github.com/mondo989/MemeSync/internal/config"
	"github.com/mondo989/MemeSync/internal/jobstore"
	"github.com/mondo989/MemeSync/internal/orchestrator"
	"github.com/mondo989/MemeSync/internal/queue"
	"github.com/mondo989/MemeSync/internal/retrieval"
	"github.com/mondo989/MemeSync/internal/services"
	"github.com/mondo989/MemeSync/internal/timeline"
	"github.com/mondo989/MemeSync/internal/worker"
	"github.com/mondo989/MemeSync/internal/workspace"
)

func main() {
	log.Println("Starting MemeSync API...")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Connect to Redis queue
	q, err := queue.New(cfg.RedisURL)
	if err != nil {
		log.Fatalf("Failed to connect to queue: %v", err)
	}
	defer q.Close()
	log.Println("Connected to Redis queue")

	// Prepare the scratch workspace
	ws, err := workspace.New(cfg.WorkDir)
	if err != nil {
		log.Fatalf("Failed to prepare workspace: %v", err)
	}
	log.Printf("Workspace ready under %s", cfg.WorkDir)

	// Job store with the wall-clock watchdog and TTL janitor
	store := jobstore.New(
		time.Duration(cfg.JobTimeoutMinutes)*time.Minute,
		time.Duration(cfg.JobTTLMinutes)*time.Minute,
	)
	store.SetEvictHook(func(id uuid.UUID) { ws.Purge(id.String()) })

	janitorCtx, janitorCancel := context.WithCancel(context.Background())
	defer janitorCancel()
	store.StartJanitor(janitorCtx)

	// Pipeline services
	transcriber := services.NewOpenAIService(cfg.OpenAIKey)
	extractor := services.NewKeywordService(cfg.GeminiKey, cfg.GeminiModel)
	if cfg.GeminiKey == "" {
		log.Println("No GEMINI_API_KEY set — keyword extraction falls back to the heuristic")
	}
	matcher := services.NewMemeService(cfg.OpenverseURL)
	downloader := services.NewDownloadService()
	renderer := services.NewBrowserRenderer(cfg.BrowserHeadless)
	defer renderer.Close()
	composer := services.NewFFmpegService()

	// TTS provider — ElevenLabs preferred, Cartesia as legacy fallback
	var tts services.TTSService
	switch {
	case cfg.ElevenLabsKey != "":
		tts = services.NewElevenLabsService(cfg.ElevenLabsKey, cfg.ElevenLabsVoiceID)
		log.Printf("TTS provider: ElevenLabs (voice: %s)", cfg.ElevenLabsVoiceID)
	case cfg.CartesiaKey != "":
		tts = services.NewCartesiaService(cfg.CartesiaKey, cfg.CartesiaURL, cfg.CartesiaVoiceID)
		log.Printf("TTS provider: Cartesia (voice: %s)", cfg.CartesiaVoiceID)
	default:
		log.Println("No TTS provider configured — synthesized-script jobs will fail")
	}

	fetcher := retrieval.NewFetcher(cfg.RetrievalMaxRetries,
		retrieval.NewYtDlp(cfg.YtDlpPath),
		retrieval.NewLibrary(),
	)
	expander := timeline.New(cfg.MaxSlotSeconds, cfg.MinSlotSeconds, matcher)

	orch := orchestrator.New(store, q, ws, expander,
		fetcher, transcriber, extractor, matcher, downloader, renderer, composer, tts)

	// Create API handler
	handler := api.NewHandler(orch)
	router := api.NewRouter(handler, api.RouterConfig{
		BackendAPIKey:      cfg.BackendAPIKey,
		CorsAllowedOrigins: cfg.CorsAllowedOrigins,
	})

	if cfg.BackendAPIKey != "" {
		log.Println("API key authentication enabled")
	} else {
		log.Println("WARNING: No BACKEND_API_KEY set — API is unprotected (dev mode)")
	}

	// Start HTTP server
	server := &http.Server{
		Addr:    ":" + cfg.APIPort,
		Handler: router,
	}

	// Start worker if enabled
	var workerCtx context.Context
	var workerCancel context.CancelFunc
	if cfg.WorkerEnabled {
		log.Println("Worker enabled, starting background processing...")
		w := worker.New(q, orch)
		workerCtx, workerCancel = context.WithCancel(context.Background())
		go w.Start(workerCtx, cfg.MaxConcurrentJobs)
	}

	// Start server in goroutine
	go func() {
		log.Printf("API server listening on :%s", cfg.APIPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	// Shutdown worker
	if workerCancel != nil {
		workerCancel()
	}

	// Shutdown HTTP server
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exited")
}
