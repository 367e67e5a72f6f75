package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"

	"github.com/Tyrowin/relaychat/internal/client"
	"github.com/Tyrowin/relaychat/internal/protocol"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load()

	config, err := client.ConfigFromEnv()
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	flag.StringVar(&config.URL, "url", config.URL, "relay WebSocket URL")
	flag.StringVar(&config.Name, "name", config.Name, "display name")
	flag.Parse()

	input := bufio.NewScanner(os.Stdin)
	if config.Name == "" {
		fmt.Print("Name: ")
		if input.Scan() {
			config.Name = strings.TrimSpace(input.Text())
		}
	}
	config.LogLevel = strings.ToUpper(config.LogLevel)
	log := logs.GetLoggerFromString(config.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c, err := client.Dial(ctx, config, log)
	if err != nil {
		return err
	}

	received := make(chan error, 1)
	go func() {
		received <- c.Receive(func(line protocol.Line) {
			client.Render(os.Stdout, line)
		})
	}()

	lines := make(chan string)
	go func() {
		defer close(lines)
		for input.Scan() {
			lines <- input.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return c.Close()
		case err := <-received:
			return err
		case line, ok := <-lines:
			if !ok {
				return c.Close()
			}
			if line == "" {
				continue
			}
			if err := c.Send(line); err != nil {
				return fmt.Errorf("send: %w", err)
			}
		}
	}
}
