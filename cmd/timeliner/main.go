// Package main starts the timeliner server and its maintenance commands.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/learning-layers/Timeliner/internal/cmd/timeliner"
	"github.com/learning-layers/Timeliner/internal/platform/config"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := timeliner.NewRootCommand().ExecuteContext(ctx); err != nil {
		config.Exitf("%v", err)
	}
}
