// Command updown estimates, live, the probability that BTC closes the current
// window above its opening price.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

var rootCmd = &cobra.Command{
	Use:   "updown",
	Short: "Real-time up/down probability estimator",
	Long: `updown streams quotes from Binance and Coinbase, fits a GJR-GARCH
volatility model on recent minute bars and reports, every second, the
probability that the price at the end of the window is above the price at
its start.`,
	SilenceUsage: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintln(cmd.OutOrStdout(), "updown", version)
	},
}

func init() {
	rootCmd.AddCommand(runCmd, versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
