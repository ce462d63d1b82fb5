/*
Package main is the entry point for the groupmatch server.

It loads configuration, initializes logging, opens the keyed store, wires the user
directory, room registry, matchmaker and websocket hub together, serves HTTP and
shuts everything down on SIGINT or SIGTERM.
*/
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

	"github.com/jackc/pgx/v5/pgxpool"

	"groupmatch/internal/app/chat"
	"groupmatch/internal/app/db"
	"groupmatch/internal/app/matchmaking"
	"groupmatch/internal/app/room"
	"groupmatch/internal/app/store"
	"groupmatch/internal/app/user"
	"groupmatch/internal/configs"
	"groupmatch/internal/handler"
	"groupmatch/internal/pkg/invariant"
	"groupmatch/internal/pkg/logx"
)

func main() {
	cfg, err := configs.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logx.InitGlobalLogger(cfg.IsDevelopment(), cfg.LogLevel)
	invariant.SetStrict(cfg.IsDevelopment())

	logx.Logger().Info().
		Str("environment", cfg.Environment).
		Int("port", cfg.Port).
		Strs("allowed_origins", cfg.AllowedOrigins).
		Str("store", cfg.StoreDriver).
		Bool("kick_requires_host", cfg.KickRequiresHost).
		Msg("Configuration loaded successfully")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var pool *pgxpool.Pool
	if cfg.StoreDriver == configs.StorePostgres {
		pool, err = db.NewPool(ctx, cfg.DatabaseDSN)
		if err != nil {
			logx.Fatal(err, "Failed to initialize database")
		}
		defer pool.Close()
	}

	users := user.NewDirectory(store.New[user.User](pool, "users"), store.New[string](pool, "sessions"))
	rooms := room.NewRegistry(store.New[room.Room](pool, "rooms"), store.New[string](pool, "room_members"))

	// Sessions do not survive a restart, so neither does anything keyed by them.
	if err := users.Reset(ctx); err != nil {
		logx.Fatal(err, "Failed to reset user directory")
	}
	if err := rooms.Reset(ctx); err != nil {
		logx.Fatal(err, "Failed to reset room registry")
	}

	hub := chat.NewHub(cfg.MaxMessageSize)
	manager := matchmaking.NewManager(users, rooms, hub)
	router := chat.NewRouter(hub, manager)
	policy := chat.NewMembershipPolicy(rooms, cfg.KickRequiresHost)
	gateway := chat.NewGateway(manager, router, policy, chat.GatewayConfig{
		ChatLimit:    cfg.ChatLimit,
		ChatWindow:   cfg.ChatWindow,
		JoinLimit:    cfg.JoinLimit,
		JoinWindow:   cfg.JoinWindow,
		EventTimeout: cfg.EventTimeout,
	})
	hub.OnDisconnect(gateway.Disconnected)

	go hub.Run()

	deps := &handler.AppDeps{
		Config:  cfg,
		Hub:     hub,
		Gateway: gateway,
		Manager: manager,
		Rooms:   rooms,
	}

	serverAddr := fmt.Sprintf(":%d", cfg.Port)
	server := &http.Server{
		Addr:         serverAddr,
		Handler:      handler.Router(deps),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logx.Info(fmt.Sprintf("groupmatch server starting on http://localhost%s", serverAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logx.Fatal(err, "Server failed to start")
		}
	}()

	<-ctx.Done()
	logx.Info("Received shutdown signal. Starting graceful shutdown...")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logx.Error(err, "Server forced to shutdown")
	}

	hub.Stop()
	gateway.Stop()

	logx.Info("Server gracefully stopped.")
}
