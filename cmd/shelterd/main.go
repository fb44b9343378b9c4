// Command shelterd runs the shelterhub API server and its maintenance tasks.
package main

import (
	"context"
	"encoding/json"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

// opener builds the shared app for a subcommand.
type opener func(cmd *cobra.Command, withMetrics bool) (*app, error)

func newRootCmd() *cobra.Command {
	var envFiles []string
	root := &cobra.Command{
		Use:   "shelterd",
		Short: "Cat shelter management server",
		Long: `shelterd serves the shelterhub HTTP API and runs maintenance tasks.

Configuration comes from SHELTERHUB_* environment variables, optionally
loaded from .env files. Variables already set in the environment win.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringSliceVar(&envFiles, "env-file", []string{".env"}, "dotenv files to load before reading the environment")

	open := func(cmd *cobra.Command, withMetrics bool) (*app, error) {
		return newApp(cmd.Context(), envFiles, withMetrics)
	}
	root.AddCommand(
		newServeCmd(open),
		newSeedCmd(open),
		newBackupCmd(open),
		newUserCmd(open),
	)
	return root
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
