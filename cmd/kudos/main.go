// cmd/kudos/main.go
//
// This is the entry point for the kudos CLI.
// Running `kudos` with no subcommand starts the booking loop in the
// current directory; slot folders and .kudos/ are created there.

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/kingrea/kudos/internal/tui"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		tui.Error(os.Stderr, "Error: %v", err)
		stop()
		os.Exit(1)
	}
}

// resolveProjectDir returns --dir, or the working directory when unset.
func resolveProjectDir(dir string) (string, error) {
	if dir != "" {
		return dir, nil
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("get working directory: %w", err)
	}
	return cwd, nil
}
