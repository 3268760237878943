package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/okian/statsmail/internal/cli"
)

func main() {
	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)

	err := cli.NewRootCommand().ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Stderr.WriteString("statsmail: " + err.Error() + "\n")
		os.Exit(1)
	}
}
