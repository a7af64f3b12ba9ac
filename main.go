package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/generative-ai-go/genai"
	"github.com/srgchrksv/docpodcaster/config"
	"github.com/srgchrksv/docpodcaster/handlers"
	"github.com/srgchrksv/docpodcaster/routes"
	"github.com/srgchrksv/docpodcaster/services"
	"github.com/srgchrksv/docpodcaster/storage"
	"google.golang.org/api/option"
)

func main() {
	cfg := config.Load()

	// Setup structured logging
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Create a new genai client
	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.GeminiAPIKey))
	if err != nil {
		slog.Error("failed to create gemini client", "error", err)
		os.Exit(1)
	}
	defer client.Close()
	model := services.NewScriptModel(client, cfg.GeminiModel)

	tts, err := services.NewSpeechClient(ctx, cfg.GoogleCredentialsJSON, cfg.GoogleCredentialsFile)
	if err != nil {
		slog.Error("failed to create text-to-speech client", "error", err)
		os.Exit(1)
	}
	defer tts.Close()

	// Without Supabase the audio is kept in memory and served by this process.
	var (
		objects services.ObjectStore
		local   *storage.Storage
	)
	if cfg.HasSupabase() {
		objects, err = storage.NewSupabaseStore(cfg.SupabaseURL, cfg.SupabaseKey, cfg.SupabaseBucket)
		if err != nil {
			slog.Error("failed to create supabase client", "error", err)
			os.Exit(1)
		}
	} else {
		local = storage.NewStorage(localAudioURL(cfg.HTTPAddr))
		objects = local
		slog.Warn("SUPABASE_URL not set, keeping audio in memory")
	}

	var cache storage.MetadataStore
	if cfg.HasMongo() {
		mongoCache, err := storage.NewMongoCache(ctx, cfg.MongoURI, cfg.MongoDatabase, cfg.MongoCollection)
		if err != nil {
			slog.Error("failed to connect to mongodb", "error", err)
			os.Exit(1)
		}
		defer func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = mongoCache.Close(closeCtx)
		}()
		cache = mongoCache
	} else if local != nil {
		cache = local
	} else {
		cache = storage.NewStorage("")
	}

	svc := services.NewServices(cfg, model, tts, objects, logger)

	h := handlers.NewHandler(svc.Podcaster, cache, cfg.AllowedOrigins, logger)
	if local != nil {
		h.ServeObjects(local)
	}

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	routes.RegisterRoutes(r, cfg, h, logger)

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		slog.Info("podcast server starting", "http", cfg.HTTPAddr, "model", cfg.GeminiModel,
			"supabase", cfg.HasSupabase(), "mongo", cfg.HasMongo())
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("http shutdown error", "error", err)
	}
	slog.Info("shutdown complete")
}

func localAudioURL(addr string) string {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return "http://localhost:8000/api/podcast/audio/"
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "localhost"
	}
	return "http://" + net.JoinHostPort(host, port) + "/api/podcast/audio/"
}
