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

	"chat-relay/api"
	"chat-relay/auth"
	"chat-relay/domain"
	"chat-relay/internal"
	"chat-relay/moderation"
	"chat-relay/observability"
	"chat-relay/projection"
	"chat-relay/repositories"
	"chat-relay/runtime"
	"chat-relay/runtime/workers"
	"chat-relay/search"
	"chat-relay/services"
	"chat-relay/ws"

	"github.com/Netflix/go-env"
	"github.com/blugelabs/bluge"
	"github.com/dgraph-io/badger/v4"
	"github.com/fxamacker/cbor/v2"
	"github.com/joho/godotenv"
)

// messageInspectRow decodes a stored message for the debug inspector.
// Rows under other prefixes fall back to a raw byte-size detail.
func messageInspectRow(key string, val []byte) internal.InspectRow {
	var record struct {
		Room    string `cbor:"room"`
		Author  string `cbor:"author"`
		Content string `cbor:"content"`
		At      int64  `cbor:"at"`
	}
	if err := cbor.Unmarshal(val, &record); err != nil || record.Room == "" {
		return internal.InspectRow{
			Key:    key,
			Detail: fmt.Sprintf("%d bytes", len(val)),
		}
	}
	return internal.InspectRow{
		Key:       key,
		Room:      record.Room,
		Timestamp: time.Unix(0, record.At).UTC().Format("15:04:05"),
		Author:    record.Author,
		Detail:    record.Content,
	}
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

// run initializes everything and owns the shutdown sequence, so defers
// fire in reverse dependency order before main exits.
func run() error {
	// 1. Configuration & logger. A missing .env is fine in production.
	_ = godotenv.Load()
	var config internal.Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	log := internal.NewLogger(config.LogLevel)

	censorRune, err := internal.CharacterRune(config.CharReplacement)
	if err != nil {
		return err
	}

	// 2. Stores.
	db, err := badger.Open(badger.DefaultOptions(config.BadgerFilepath).
		WithLoggingLevel(badger.WARNING))
	if err != nil {
		return fmt.Errorf("database opening failed: %w", err)
	}
	defer func() {
		log.Info("Closing BadgerDB...")
		_ = db.Close()
	}()

	indexWriter, err := bluge.OpenWriter(bluge.DefaultConfig(config.BlugeFilepath))
	if err != nil {
		return fmt.Errorf("search index opening failed: %w", err)
	}
	defer func() {
		log.Info("Closing search index...")
		_ = indexWriter.Close()
	}()

	messageRepository := repositories.NewMessageRepository(db, log)
	roomRepository := repositories.NewRoomRepository(db)
	userRepository := repositories.NewUserRepository(db)

	// 3. Moderation & search.
	words, err := moderation.LoadWords()
	if err != nil {
		return fmt.Errorf("loading censored words: %w", err)
	}
	moderator, err := moderation.NewModerator(words.Words, censorRune)
	if err != nil {
		return fmt.Errorf("building moderator: %w", err)
	}
	index := search.NewIndex(indexWriter, log)

	// 4. Live layer.
	stats := observability.NewStats()
	registry := runtime.NewRegistry()
	broadcaster := runtime.NewBroadcaster(log, registry, stats)
	timeline := projection.NewTimeline(config.ActivityWindow)
	broadcaster.Tap(timeline)
	coordinator := runtime.NewCoordinator(log, registry, broadcaster,
		roomRepository, messageRepository, moderator, index, stats,
		config.MaxContentLength)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// A subscriber that cannot keep up gets its socket torn down; the read
	// pump then runs the normal disconnect path.
	broadcaster.OnEvict(func(connID domain.ConnectionID) {
		if sink, ok := registry.Sink(connID); ok {
			if closer, isCloser := sink.(interface{ Close() error }); isCloser {
				_ = closer.Close()
			}
		}
		coordinator.Disconnect(ctx, connID)
	})

	// 5. Background workers.
	sup := workers.NewSupervisor(log, config.RestartInterval)
	sup.Add(
		workers.NewStatsWorker(log, stats, config.MetricInterval),
		workers.NewBadgerGCWorker(log, db, config.GCInterval),
	)
	go sup.Run(ctx)
	defer sup.Stop()

	// 6. Services & HTTP surface.
	tokens := auth.NewTokenManager(config.JWTSecret, config.AuthTokenDuration)
	authService := services.NewAuthService(userRepository, tokens)
	roomService := services.NewRoomService(roomRepository, userRepository, index)
	historyService := services.NewHistoryService(roomRepository, messageRepository,
		config.DefaultPageLimit, config.MaxPageLimit)

	liveHandler := ws.NewHandler(coordinator, tokens, log, ws.Options{
		BufferSize:     config.ConnectionBufferSize,
		SendRate:       config.SendRatePerSecond,
		SendBurst:      config.SendBurst,
		AllowedOrigins: config.Origins(),
	})

	inspect := internal.InspectHandler(db, "msg:", messageInspectRow, func() map[string]any {
		snapshot := stats.Snapshot()
		return map[string]any{
			"connections":       snapshot.Connections,
			"subscriptions":     snapshot.Subscriptions,
			"messagesPersisted": snapshot.MessagesPersisted,
			"broadcasts":        snapshot.Broadcasts,
			"deliveryFailures":  snapshot.DeliveryFailures,
		}
	})

	router := api.NewRouter(api.Deps{
		Auth:     api.NewAuthHandler(authService, log),
		Rooms:    api.NewRoomHandler(roomService, log),
		Messages: api.NewMessageHandler(historyService, index, log),
		Live:     liveHandler,
		Tokens:   tokens,
		Stats:    stats,
		Timeline: timeline,
		Inspect:  inspect,
	})

	address := fmt.Sprintf("%s:%d", config.Host, config.Port)
	server := &http.Server{
		Addr:              address,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		log.Info("Starting HTTP server", "address", address, "at", time.Now().UTC())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("http server error: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("Shutting down gracefully...")
	case err := <-errChan:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn("HTTP shutdown incomplete", "error", err)
	}
	log.Info("Program stopped cleanly")

	return nil
}
