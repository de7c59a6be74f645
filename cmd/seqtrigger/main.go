package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/livinlefevreloca/seqtrigger/internal/cli"
)

func main() {
	// Signals are honored between runs; the run in flight finishes
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := cli.NewRootCommand().ExecuteContext(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "seqtrigger: %v\n", err)
	}

	stop()
	os.Exit(cli.GetExitCode(err))
}
