package cmd

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"groqchat/internal/chat"
	providerfactory "groqchat/internal/provider/factory"
)

const modelsUsage = `Usage:
  groqchat models [--server <url>]

Flags:
  --server string   Relay base URL (default http://localhost:8080)`

func listModels(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("models", flag.ContinueOnError)
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, modelsUsage)
	}

	var serverURL string
	fs.StringVar(&serverURL, "server", defaultServerURL, "relay base URL")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return fmt.Errorf("parse models flags: %w", err)
	}

	return printModels(ctx, chat.NewClient(serverURL, providerfactory.NewHTTPClient()), os.Stdout)
}

func printModels(ctx context.Context, client *chat.Client, out io.Writer) error {
	ids, err := client.Models(ctx)
	if err != nil {
		return fmt.Errorf("list models: %w", err)
	}
	for _, id := range ids {
		fmt.Fprintln(out, id)
	}
	return nil
}
