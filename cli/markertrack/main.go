// Package main is the markertrack command itself.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.viam.com/markertrack/cli"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	app := cli.NewApp(os.Stdout, os.Stderr)
	if err := app.RunContext(ctx, os.Args); err != nil {
		cancel()
		//nolint:gocritic
		log.Fatal(err)
	}
}
