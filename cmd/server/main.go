package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"chat-gateway/auth"
	"chat-gateway/gateway"
	"chat-gateway/internal"
	"chat-gateway/moderation"
	"chat-gateway/repositories"
	"chat-gateway/runtime"
	"chat-gateway/runtime/workers"
	"chat-gateway/services"

	"github.com/Netflix/go-env"
	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

// run initializes all components, manages the server lifecycle, and
// centralizes error reporting so every defer executes before exit.
func run() error {
	// 1. Configuration & logger
	_ = godotenv.Load()
	var config internal.Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	log := internal.GetLoggerFromString(config.LogLevel)

	// 2. Database (BadgerDB)
	db, err := badger.Open(badger.DefaultOptions(config.BadgerFilepath).
		WithLoggingLevel(badger.WARNING))
	if err != nil {
		return fmt.Errorf("database opening failed: %w", err)
	}
	defer func() {
		log.Info("Closing BadgerDB...")
		_ = db.Close()
	}()

	// 3. Repositories
	userRepository, err := repositories.NewUserRepository(db)
	if err != nil {
		return err
	}
	defer func() { _ = userRepository.Close() }()
	messageRepository := repositories.NewMessageRepository(db, log)

	// 4. Presence & moderation
	registry := runtime.NewRegistry()

	censored, err := moderation.LoadCensoredWords()
	if err != nil {
		return fmt.Errorf("censored words: %w", err)
	}
	log.Info(fmt.Sprintf("%d censored words loaded [%s]",
		len(censored.Words), strings.Join(censored.Languages, ",")))

	charReplacement, err := internal.CharacterRune(config.CharReplacement)
	if err != nil {
		return err
	}
	moderator, err := moderation.NewModerator(censored.Words, charReplacement)
	if err != nil {
		return fmt.Errorf("moderator build failed: %w", err)
	}

	// 5. Services
	secret := []byte(config.JWTSecret)
	chatService := services.NewChatService(log, registry, messageRepository,
		userRepository, &moderator, config.History(), config.MaxContentLength)
	authService := services.NewAuthService(userRepository, secret, config.AuthTokenDuration)
	verifier := auth.NewVerifier(secret, userRepository, log)

	// 6. Context & signals
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 7. Background workers under supervision
	supervisor := workers.NewSupervisor(log)
	supervisor.Add(workers.NewBadgerGCWorker(db, config.GCInterval, log))
	supervisor.Add(workers.NewReporterWorker(log, registry, config.ReportInterval))
	go supervisor.Run(ctx)

	// 8. HTTP & WebSocket surface
	sessionCfg := gateway.SessionConfig{
		BufferSize:      config.ConnectionBufferSize,
		DeliveryTimeout: config.DeliveryTimeout,
		WriteTimeout:    config.WriteTimeout,
		PongTimeout:     config.PongTimeout,
	}
	handler := gateway.NewHandler(ctx, log, verifier, chatService, sessionCfg)
	api := gateway.NewAPI(log, authService)
	mux := gateway.Routes(handler, api)

	address := fmt.Sprintf("%s:%d", config.Host, config.Port)
	server := gateway.CreateServer(address, mux)

	serverErr := make(chan error, 1)
	go func() {
		log.Info("Gateway listening", "address", address)
		serverErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serverErr:
		return fmt.Errorf("server stopped: %w", err)
	case <-ctx.Done():
	}

	// 9. Graceful shutdown. The canceled signal context is already
	// closing every session; wait for their teardowns before the
	// deferred Badger close runs underneath them.
	log.Info("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn("HTTP shutdown incomplete", "error", err)
	}
	if err := handler.Drain(shutdownCtx); err != nil {
		log.Warn("Sessions still open at shutdown deadline", "error", err)
	}
	supervisor.Stop()

	return nil
}
