package main

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/atendechat/relay/internal/server"
)

// Exit codes give a meaningful status to the service manager.
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "relay terminated: %v\n", err)
	}
	os.Exit(code)
}

// run wires the relay together and blocks until shutdown. Keeping the logic
// out of main ensures deferred cleanup executes before the process exits.
func run() (int, error) {
	// A .env file is a development convenience; its absence is fine.
	_ = godotenv.Load()

	cfg, err := server.LoadConfig()
	if err != nil {
		return exitConfig, err
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.Level()}))
	slog.SetDefault(logger)

	hub := server.NewHub(cfg.RateLimit, logger, server.NewLogSink(logger))
	go hub.Run()

	httpServer := server.CreateServer(cfg.Port, server.SetupRoutes(hub, cfg))

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("relay listening", "addr", httpServer.Addr)
		serverErr <- httpServer.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return exitRuntime, err
		}
	case sig := <-stop:
		logger.Info("shutting down", "signal", sig.String())
	}

	if err := server.ShutdownServer(httpServer, cfg.ShutdownTimeout); err != nil {
		logger.Error("http shutdown", "error", err)
	}
	if err := hub.Shutdown(cfg.ShutdownTimeout); err != nil {
		return exitRuntime, fmt.Errorf("hub shutdown: %w", err)
	}

	logger.Info("relay stopped")
	return exitOK, nil
}
