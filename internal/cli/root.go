package cli

import (
	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "vepower",
	Short: "Decay-weighted voting power accounting",
	Long:  "vepower tracks time-locked balances as continuously decaying voting weight, aggregated per pool, queryable at any time.",
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "vepower.yaml", "path to config file")
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(checkpointCmd)
}
