package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/scrapemaster/sentinel/internal/cli"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "sentinel",
		Short: "Request threat detection and adaptive rate limiting",
		Long:  "Sentinel analyzes inbound platform traffic for attack signatures, enforces adaptive rate limits and correlates events into attack patterns.",
	}

	rootCmd.AddCommand(
		cli.NewServeCommand(),
		cli.NewUnblockCommand(),
		cli.NewCheckRulesCommand(),
		cli.NewVersionCommand(),
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
