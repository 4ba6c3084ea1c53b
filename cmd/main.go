package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"parley/api"
	"parley/internal"
	"parley/moderation"
	"parley/presence"
	"parley/repositories"
	"parley/runtime"
	"parley/runtime/workers"
	"parley/services"
	"parley/transport"

	"github.com/Netflix/go-env"
	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

// run initializes all components, manages the server lifecycle, and centralizes error reporting.
// This pattern is preferred over calling os.Exit or panic directly because:
// 1. It ensures all 'defer' statements (like database cleanup) are executed before the program exits.
// 2. It improves testability by decoupling the initialization logic from the main entry point.
// 3. It provides a structured way to handle graceful shutdowns for the HTTP server and background workers.
func run() error {
	// 1. Configuration & Logger
	_ = godotenv.Load() // A missing .env file is fine in production
	var config internal.Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	log := logs.GetLoggerFromString(config.LogLevel)

	censoredChar, err := internal.CharacterRune(config.CharReplacement)
	if err != nil {
		return err
	}

	// 2. Database (BadgerDB)
	db, err := badger.Open(badger.DefaultOptions(config.BadgerFilepath).
		WithLoggingLevel(badger.INFO))
	if err != nil {
		return fmt.Errorf("database opening failed: %w", err)
	}
	//  Defer will be executed before run() returned anything to main()
	defer func() {
		log.Info("Closing BadgerDB...")
		_ = db.Close()
	}()

	// 3. Repositories & Moderation
	sessionRepository := repositories.NewSessionRepository(db, log)
	punishmentRepository := repositories.NewPunishmentRepository(db, log)
	userRepository := repositories.NewUserRepository(db)
	messageRepository := repositories.NewMessageRepository(db, log, config.LimitMessages)

	censored, err := moderation.LoadCensoredWords()
	if err != nil {
		return fmt.Errorf("loading censored words: %w", err)
	}
	log.Info("Censored dictionaries loaded",
		"languages", censored.Languages, "words", len(censored.Words))

	moderator, err := moderation.NewModerator(censored.Words, censoredChar)
	if err != nil {
		return fmt.Errorf("building moderator: %w", err)
	}

	// 4. Presence, Transport & Connection Supervision
	registry := presence.NewRegistry()
	hub := transport.NewHub(log)
	connectionSupervisor := runtime.NewConnectionSupervisor(log, registry, hub,
		sessionRepository, punishmentRepository, messageRepository,
		&moderator, config.GracePeriod)
	hub.SetHandler(connectionSupervisor)

	broker := moderation.NewBroker(log, sessionRepository, punishmentRepository,
		registry, hub)

	// 5. Background workers
	sweep := workers.NewPunishmentSweepWorker(log, punishmentRepository, hub,
		config.SweepInterval)
	telemetry := workers.NewTelemetryWorker(log, config.MetricInterval)

	sup := workers.NewSupervisor(log, config.RestartInterval)
	sup.Add(sweep, telemetry)

	// 6. Context & Signals
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go sup.Run(ctx)

	// 7. HTTP server (REST + websocket endpoint)
	authService := services.NewAuthService(userRepository, sessionRepository,
		config.AuthTokenDuration)
	router := api.NewRouter(log, authService, sessionRepository, broker, hub)

	address := fmt.Sprintf("%s:%d", config.Host, config.Port)
	server := &http.Server{Addr: address, Handler: router.Engine}

	// Use an error channel to capture ListenAndServe() issues
	errChan := make(chan error, 1)
	go func() {
		log.Info("Starting HTTP server", "address", address, "at", time.Now().UTC())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	// 8. Wait for Stop or Error
	select {
	case <-ctx.Done():
		log.Info("Shutting down gracefully...")
	case err := <-errChan:
		return err
	}

	// 9. Final Cleanup
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = server.Shutdown(shutdownCtx)
	sup.Stop()
	log.Info("Program stopped cleanly")

	return nil
}
