package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"

	"github.com/Tyrowin/relaychat/internal/server"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// A missing .env file is fine; the environment may already be set.
	_ = godotenv.Load()

	configPath := flag.String("config", os.Getenv("CHAT_CONFIG_FILE"), "path to a YAML configuration file")
	flag.Parse()

	config, err := server.LoadConfig(*configPath)
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	log := logs.GetLoggerFromString(config.LogLevel)

	hub := server.NewHub(config, log)
	httpServer := server.CreateServer(config.Addr, server.SetupRoutes(hub))

	listener, err := server.Listen(httpServer)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errChan := make(chan error, 1)
	go func() {
		if err := server.StartServer(httpServer, listener, log); err != nil {
			errChan <- fmt.Errorf("http server error: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("Shutting down gracefully...")
	case err := <-errChan:
		return err
	}

	if err := server.ShutdownServer(httpServer, config.ShutdownTimeout, log); err != nil {
		log.Warn("HTTP server did not stop cleanly", "error", err)
	}
	if err := hub.Shutdown(config.ShutdownTimeout); err != nil {
		log.Warn("Sessions did not stop in time", "error", err)
	}
	log.Info("Program stopped cleanly")
	return nil
}
