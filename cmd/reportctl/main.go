package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/duckmesh/reportdesk/internal/cli/reportctl"
)

func main() {
	options := reportctl.OptionsFromEnv(os.LookupEnv, os.Stderr)
	options.Stdout = os.Stdout
	options.Stderr = os.Stderr

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := reportctl.Run(ctx, os.Args[1:], options)
	stop()
	os.Exit(code)
}
