// Command sitcomctl operates the achievement ledger: it serves the HTTP API,
// records grants and approvals, queries the indices and archives snapshots.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
)

var exitFunc = os.Exit

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := execute(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	exitFunc(code)
}

func execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	c := &cli{}
	defer func() {
		if err := c.close(); err != nil {
			fmt.Fprintln(stderr, "close:", err)
		}
	}()
	cmd := c.rootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(stderr, "error:", err)
		return 1
	}
	return 0
}
