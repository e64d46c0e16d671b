package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/platinummonkey/crmgate/pkg/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	rootCmd := cli.NewRootCommand()
	err := rootCmd.Execute(ctx, cli.DefaultEnv(), os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	stop()
	os.Exit(cli.ExitCode(err))
}
