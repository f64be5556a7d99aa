package main

import (
	"context"
	"fmt"
	"os"

	"github.com/unkn0wn-root/stash/internal/cli"
	"github.com/unkn0wn-root/stash/internal/config"
)

func main() {
	os.Exit(realMain(context.Background(), os.Args))
}

// realMain returns 0 on success, 1 on a setup error and 2 when the
// command itself fails.
func realMain(ctx context.Context, args []string) int {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	app := cli.NewApp(cfg, os.Stdout)
	if err := app.Run(ctx, args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}
	return 0
}
