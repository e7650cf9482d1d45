package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "paperdesk",
	Short: "A simulated trading terminal with a persistent order and capital ledger",
	Long: `Paperdesk is a paper-trading engine written in Go.

It provides tools for:
  - Running strategies against a simulated exchange with latency,
    slippage, rejections and partial fills
  - Risk-based position sizing with hard caps and exposure limits
  - A persistent SQLite ledger of orders, trades, positions and P&L
  - Automatic stop-loss and take-profit enforcement
  - A daily loss circuit breaker and kill switch`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}
