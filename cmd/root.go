package cmd

import (
	"context"
	"fmt"
	"strings"
)

const usage = `groqchat relays chat completions from an OpenAI-compatible API to a browser UI.

Usage:
  groqchat <command> [flags]

Commands:
  serve    Start the HTTP server and web UI
  chat     Chat with a running server from the terminal
  models   List the models offered by a running server

Flags:
  -h, --help  Show this help message`

// Execute runs the CLI dispatcher with the provided arguments.
func Execute(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return printUsage()
	}

	switch args[0] {
	case "serve":
		return serve(ctx, args[1:])
	case "chat":
		return runChat(ctx, args[1:])
	case "models":
		return listModels(ctx, args[1:])
	case "help", "-h", "--help":
		return printUsage()
	default:
		return fmt.Errorf("unknown command %q\n\n%s", args[0], usage)
	}
}

func printUsage() error {
	fmt.Println(strings.TrimSpace(usage))
	return nil
}
