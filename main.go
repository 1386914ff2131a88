package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/devicehub/devicehub/cli"
	"github.com/devicehub/devicehub/cli/cmd"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := cli.Execute(ctx, os.Args[1:], cmd.RuntimeOptions{})
	stop()
	os.Exit(code)
}
