package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/mattn/go-sqlite3"

	"github.com/de-tools/recon-atlas/pkg/runtime/terminal"
	"github.com/de-tools/recon-atlas/pkg/services/session"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cli := terminal.NewCLI(terminal.Options{Output: os.Stdout})
	if err := cli.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if session.IsConflict(err) {
			stop()
			os.Exit(2)
		}
		stop()
		os.Exit(1)
	}
}
