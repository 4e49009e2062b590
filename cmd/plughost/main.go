package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joncooperworks/plughost/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := cli.Run(ctx, cli.Options{Args: os.Args[1:]})
	stop()
	os.Exit(code)
}
