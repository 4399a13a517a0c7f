package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/bilal/netvelocimeter/internal/cli"
)

func main() {
	// Context for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := cli.Execute(ctx)
	stop()
	os.Exit(code)
}
