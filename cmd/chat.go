package cmd

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"groqchat/internal/chat"
	providerfactory "groqchat/internal/provider/factory"
)

const defaultServerURL = "http://localhost:8080"

const chatUsage = `Usage:
  groqchat chat [--server <url>] [--model <id>] [--temperature <0-2>] [--top-p <0-1>] [--no-color]

Flags:
  --server       string   Relay base URL (default http://localhost:8080)
  --model        string   Model id (default: first model the relay lists)
  --temperature  float    Sampling temperature
  --top-p        float    Nucleus sampling probability
  --no-color              Disable ANSI colors`

func runChat(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("chat", flag.ContinueOnError)
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, chatUsage)
	}

	var (
		serverURL   string
		opts        chat.Options
		temperature float64
		topP        float64
	)
	fs.StringVar(&serverURL, "server", defaultServerURL, "relay base URL")
	fs.StringVar(&opts.Model, "model", "", "model id")
	fs.Float64Var(&temperature, "temperature", 0, "sampling temperature")
	fs.Float64Var(&topP, "top-p", 0, "nucleus sampling probability")
	fs.BoolVar(&opts.NoColor, "no-color", false, "disable colors")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return fmt.Errorf("parse chat flags: %w", err)
	}

	// Only flags given explicitly override the relay's defaults.
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "temperature":
			opts.Temperature = &temperature
		case "top-p":
			opts.TopP = &topP
		}
	})

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	client := chat.NewClient(serverURL, providerfactory.NewHTTPClient())
	return chat.NewTerminal(client, os.Stdout, opts, logger).Run(ctx, os.Stdin)
}
