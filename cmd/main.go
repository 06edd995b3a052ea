package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Netflix/go-env"
	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"

	"relaychat/auth"
	"relaychat/errors"
	"relaychat/infrastructure/httpapi"
	"relaychat/infrastructure/ws"
	"relaychat/internal"
	"relaychat/observability"
	"relaychat/repositories"
	"relaychat/resilience"
	"relaychat/runtime"
	"relaychat/runtime/workers"
	"relaychat/services"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

// run initializes all components, manages the server lifecycle, and
// centralizes error reporting so every defer (database close, limiter
// shutdown) executes before the process exits.
func run() error {
	// 1. Configuration & Logger
	_ = godotenv.Load()
	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	log := logs.GetLoggerFromString(config.LogLevel)

	// 2. Database (BadgerDB)
	db, err := badger.Open(badger.DefaultOptions(config.BadgerFilepath).
		WithLoggingLevel(badger.INFO))
	if err != nil {
		return fmt.Errorf("database opening failed: %w", err)
	}
	defer func() {
		log.Info("Closing BadgerDB...")
		_ = db.Close()
	}()

	// 3. Repositories
	users := repositories.NewUserRepository(db)
	sessions := repositories.NewSessionRepository(db)
	channels := repositories.NewChannelRepository(db)
	messages := repositories.NewMessageRepository(db, log)
	cache := repositories.NewCache(db)

	// 4. Resilience
	monitor := observability.NewMonitor()
	onOpen := func(name string) {
		monitor.IncrBreakerTrips()
		log.Warn("Circuit breaker opened", "name", name)
	}
	// Negative store answers (unknown channel, duplicate nickname) are not
	// dependency failures and must never trip a breaker.
	isFailure := func(err error) bool { return !errors.IsStoreOutcome(err) }
	storeBreaker := resilience.NewBreaker(resilience.BreakerSettings{
		Name:             "store",
		FailureThreshold: config.BreakerFailures,
		SuccessThreshold: config.BreakerSuccesses,
		OpenTimeout:      config.BreakerOpenTimeout,
		CallTimeout:      config.BreakerCallTimeout,
		IsFailure:        isFailure,
	}, log).OnOpen(onOpen)
	cacheBreaker := resilience.NewBreaker(resilience.BreakerSettings{
		Name:             "cache",
		FailureThreshold: config.BreakerFailures,
		SuccessThreshold: config.BreakerSuccesses,
		OpenTimeout:      config.BreakerOpenTimeout,
		CallTimeout:      config.BreakerCallTimeout,
		IsFailure:        isFailure,
	}, log).OnOpen(onOpen)

	limiter := resilience.NewLimiter(resilience.DefaultLimiterConfig(), cache, cacheBreaker, log)
	defer limiter.Stop()

	// 5. Services
	registry := runtime.NewRegistry()
	order := services.NewRoomOrder()
	rooms := services.NewRoomService(registry, channels, messages, storeBreaker, order, monitor, log)
	messageService := services.NewMessageService(registry, users, messages, storeBreaker, limiter, order, monitor, log)
	voice := services.NewVoiceService(registry, channels, storeBreaker, log)
	presence := services.NewPresenceService(registry, rooms, voice, users, storeBreaker, monitor, log)
	authenticator := auth.NewAuthenticator(sessions, users, storeBreaker, limiter, log)
	issuer := auth.NewTokenIssuer(config.JWTSecret, config.TokenDuration)

	// 6. Context & Signals
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 7. Background workers
	heartbeat := workers.NewHeartbeatWorker(registry, presence, monitor, workers.HeartbeatSettings{
		RequestInterval: config.HeartbeatRequest,
		SweepInterval:   config.HeartbeatSweep,
		IdleTimeout:     config.HeartbeatIdle,
	}, log)
	telemetry := workers.NewTelemetryWorker(registry, monitor, config.TelemetryInterval, log)
	sup := workers.NewSupervisor(log, config.RestartInterval)
	sup.Add(heartbeat, telemetry)
	go sup.Run(ctx)

	// 8. HTTP & websocket endpoints
	wsServer := ws.NewServer(
		authenticator, presence, rooms, messageService, voice,
		registry, limiter, monitor,
		ws.Config{
			HandshakeTimeout: config.HandshakeTimeout,
			BufferSize:       config.ConnectionBufferSize,
			DeliveryTimeout:  config.DeliveryTimeout,
		}, log)
	api := httpapi.NewAPI(users, sessions, storeBreaker, issuer, presence, monitor, log)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", wsServer.Handle)
	api.Register(mux)

	if config.DebugPort != nil {
		internal.StartDebugServer(db, *config.DebugPort, "/inspect", internal.DefaultMapper, monitor.Snapshot)
		log.Info("Debug inspector started", slog.Int("port", *config.DebugPort))
	}

	address := fmt.Sprintf("%s:%d", config.Host, config.Port)
	server := &http.Server{Addr: address, Handler: mux}

	errChan := make(chan error, 1)
	go func() {
		log.Info("Starting server", "address", address, "at", time.Now().UTC())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("server error: %w", err)
		}
	}()

	// 9. Wait for Stop or Error
	select {
	case <-ctx.Done():
		log.Info("Shutting down gracefully...")
	case err := <-errChan:
		return err
	}

	// 10. Final Cleanup
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = server.Shutdown(shutdownCtx)
	sup.Stop()
	log.Info("Program stopped cleanly")

	return nil
}
