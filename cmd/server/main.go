package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"gwi.com/streak-chat/internal/api"
	"gwi.com/streak-chat/internal/config"
	"gwi.com/streak-chat/internal/core"
	"gwi.com/streak-chat/internal/logging"
	"gwi.com/streak-chat/internal/store"
)

func main() {
	seedFile := flag.String("seed-style-packs", "", "Upsert style packs from a Markdown table file and exit")
	flag.Parse()

	// Load configuration
	if err := config.LoadConfig(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	cfg := config.AppConfig

	logging.Setup("streak-chat", cfg.LogLevel, cfg.LogFormat)
	log.Debug().Msg("Service starting in DEBUG mode")

	// Initialize database store
	dbStore, err := store.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer dbStore.Close()
	log.Info().Str("driver", dbStore.Driver()).Msg("Database ready")

	if *seedFile != "" {
		n, err := dbStore.SeedStylePacksFromFile(context.Background(), *seedFile)
		if err != nil {
			dbStore.Close()
			log.Fatal().Err(err).Str("file", *seedFile).Msg("Style pack seeding failed")
		}
		log.Info().Int("count", n).Str("file", *seedFile).Msg("Style pack seeding complete. Exiting.")
		return
	}

	// Initialize LLM service
	llmService, err := core.NewLLMService(context.Background(), core.LLMConfig{
		APIKey:          cfg.GeminiAPIKey,
		Model:           cfg.GeminiModel,
		Temperature:     cfg.Temperature,
		MaxOutputTokens: cfg.MaxOutputTokens,
	})
	if err != nil {
		dbStore.Close()
		log.Fatal().Err(err).Msg("Failed to initialize LLM service")
	}
	defer llmService.Close()

	rewardService := core.NewRewardService(dbStore, cfg.Location())
	chatService := core.NewChatService(dbStore, llmService, rewardService, core.ChatOptions{
		HistoryLimit:   cfg.HistoryLimit,
		AccrualTimeout: cfg.AccrualTimeout,
		BannedWords:    cfg.BannedWords,
	})
	accountService := core.NewAccountService(dbStore, cfg.JWTSecret, cfg.TokenTTL)
	stylePackService := core.NewStylePackService(dbStore)

	// Initialize API Handler and Router
	apiHandler := api.NewAPIHandler(chatService, accountService, stylePackService)
	router := api.NewRouter(apiHandler, api.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst))

	serverAddr := fmt.Sprintf(":%s", cfg.HTTPPort)
	srv := &http.Server{
		Addr:         serverAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second, // completion calls can take time
		IdleTimeout:  120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info().Str("addr", serverAddr).Msg("Starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-quit:
		log.Info().Str("signal", sig.String()).Msg("Shutting down server...")
	case err := <-serverErr:
		log.Error().Err(err).Str("addr", serverAddr).Msg("Server failed")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	// Let in-flight reward accruals land before the database closes.
	chatService.Wait()
	log.Info().Msg("Server exiting gracefully")
}
