package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/driftline/narravid/internal/api"
	"github.com/driftline/narravid/internal/assets"
	"github.com/driftline/narravid/internal/config"
	"github.com/driftline/narravid/internal/scheduler"
	"github.com/driftline/narravid/internal/services"
	"github.com/driftline/narravid/internal/store"
	"github.com/driftline/narravid/internal/worker"
)

func main() {
	log.Println("Starting Narravid API...")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize the job store
	st, err := store.New(cfg.StorePath)
	if err != nil {
		log.Fatalf("Failed to initialize job store: %v", err)
	}
	log.Printf("Job store at %s", cfg.StorePath)

	// Initialize services
	ffmpegSvc := services.NewFFmpegService()
	ttsSvc := services.NewSpeechService(cfg.TTS.ServerURL)
	log.Printf("TTS server: %s", cfg.TTS.ServerURL)

	// Whisper gives word-level timings for captions; without a key the
	// pipeline produces captionless videos.
	var whisperSvc services.Transcriber
	if cfg.OpenAIKey != "" {
		whisperSvc = services.NewWhisperService(cfg.OpenAIKey)
		log.Println("Whisper transcription enabled")
	} else {
		log.Println("WARNING: No OPENAI_API_KEY set, videos will have no captions")
	}

	selector := assets.NewSelector(
		cfg.Video.HorizontalDir,
		cfg.Video.VerticalDir,
		cfg.Video.MaxLengthPerVideo,
		cfg.Video.AllowedExtensions,
		ffmpegSvc,
	)
	assembler := services.NewAssembler(ffmpegSvc)

	// Create worker and scheduler
	w := worker.New(cfg, st, ttsSvc, whisperSvc, ffmpegSvc, selector, assembler)

	schedCtx, schedCancel := context.WithCancel(context.Background())
	jobTimeout := time.Duration(cfg.API.JobTimeoutSec) * time.Second
	sched := scheduler.New(schedCtx, st, w, cfg.API.MaxJobs, jobTimeout)

	// Rebuild state from disk: orphaned jobs are failed, queued jobs
	// resume dispatching.
	if err := sched.Recover(); err != nil {
		log.Fatalf("Failed to recover scheduler state: %v", err)
	}

	// Create API handler
	handler := api.NewHandler(cfg, st, sched, ffmpegSvc)
	router := api.NewRouter(handler, api.RouterConfig{
		BackendAPIKey:      cfg.BackendAPIKey,
		CorsAllowedOrigins: cfg.CorsAllowedOrigins,
	})

	if cfg.BackendAPIKey != "" {
		log.Println("API key authentication enabled")
	} else {
		log.Println("WARNING: No BACKEND_API_KEY set, API is unprotected (dev mode)")
	}

	// Start HTTP server
	server := &http.Server{
		Addr:    ":" + cfg.API.Port,
		Handler: router,
	}

	go func() {
		log.Printf("API server listening on :%s", cfg.API.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	schedCancel()
	sched.Wait()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exited")
}
