package main

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "casand",
	Short: "CASAN master",
	Long: `casand associates CASAN slaves found on Ethernet and 802.15.4 links
and exposes their resources over HTTP.`,
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
