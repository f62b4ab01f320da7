package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/adamancini/hatch/internal/cmd"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := cmd.ExecuteContext(ctx, version, commit, date)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "hatch:", err)
		os.Exit(1)
	}
}
