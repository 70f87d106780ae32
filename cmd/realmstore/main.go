// Package main implements the realmstore binary.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/arkilian/realmstore/internal/cli"
)

func main() {
	// A missing .env is fine; the environment and flags still apply.
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := cli.NewRootCommand().ExecuteContext(ctx); err != nil {
		// commands report wrapped errors themselves
		var exitErr *cli.ExitError
		if errors.As(err, &exitErr) && exitErr.Err == nil {
			fmt.Fprintln(os.Stderr, exitErr.Message)
		}
		stop()
		os.Exit(cli.GetExitCode(err))
	}
}
