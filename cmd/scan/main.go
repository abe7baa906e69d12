package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"
)

func main() {
	cmd := &cli.Command{
		Name:  "scan",
		Usage: "QR attendance scanning station",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "server",
				Usage:   "attendance API base URL",
				Value:   "http://localhost:8081",
				Sources: cli.EnvVars("QRATTEND_SERVER"),
			},
			&cli.StringFlag{
				Name:    "session",
				Usage:   "saved sign-in file (default: user config dir)",
				Sources: cli.EnvVars("QRATTEND_SESSION"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Value:   "warn",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Commands: []*cli.Command{
			loginCommand(),
			logoutCommand(),
			whoamiCommand(),
			watchCommand(),
			imageCommand(),
			todayCommand(),
			qrCommand(),
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := cmd.Run(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
