// Package cmd provides the CLI commands of the flight change API.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/lowc1012/flight-change-api/internal/config"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "flight-change-api",
	Short: "Mock flight change API behind an API key and rate limit gate",
	Long: `flight-change-api serves six mock flight change endpoints under /api.

Every request under /api must carry the X-Api-Key header and is rate
limited per client address with a sliding window kept in Redis.

Configuration is read from the environment, an optional .env file in the
working directory and an optional YAML file passed with --config.
REDIS_URL and API_KEY are required.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return config.LoadDotEnv()
	},
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "YAML config file")
}
