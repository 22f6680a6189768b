package cmd

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"groqchat/internal/config"
	providerfactory "groqchat/internal/provider/factory"
	"groqchat/internal/relay"
	"groqchat/internal/server"
)

const serveUsage = `Usage:
  groqchat serve [--config <path>] [--port <port>]

Flags:
  --config string   Path to YAML configuration file (optional; env vars and .env also apply)
  --port   int      Override server port from configuration`

func serve(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, serveUsage)
	}

	var cfgPath string
	var overridePort int
	fs.StringVar(&cfgPath, "config", "", "path to configuration file")
	fs.IntVar(&overridePort, "port", 0, "override server port")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return fmt.Errorf("parse serve flags: %w", err)
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}

	if overridePort != 0 {
		if overridePort < 0 || overridePort > 65535 {
			return fmt.Errorf("port override %d must be a valid TCP port", overridePort)
		}
		cfg.Server.Port = overridePort
	}

	slog.SetDefault(cfg.Log.NewLogger(os.Stderr))

	upstream, err := providerfactory.NewUpstream(cfg)
	if err != nil {
		return err
	}

	rl, err := relay.New(upstream, cfg.Upstream.TitleModel)
	if err != nil {
		return err
	}

	srv, err := server.New(cfg, rl)
	if err != nil {
		return err
	}

	return srv.Run(ctx)
}
