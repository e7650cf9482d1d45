package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"paperdesk/store"
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Query the ledger database",
	Long: `Query and display ledger records from the SQLite database.

Subcommands:
  account   - Show account capital and state
  trades    - List recent trades
  positions - List open positions
  pnl       - List recent P&L snapshots

Examples:
  paperdesk report trades --db paperdesk.db --account SIM-001
  paperdesk report account --db paperdesk.db --account SIM-001`,
}

var reportAccountCmd = &cobra.Command{
	Use:   "account",
	Short: "Show account capital and state",
	Args:  cobra.NoArgs,
	RunE:  runReportAccount,
}

var reportTradesCmd = &cobra.Command{
	Use:   "trades",
	Short: "List recent trades, newest first",
	Args:  cobra.NoArgs,
	RunE:  runReportTrades,
}

var reportPositionsCmd = &cobra.Command{
	Use:   "positions",
	Short: "List open positions",
	Args:  cobra.NoArgs,
	RunE:  runReportPositions,
}

var reportPnLCmd = &cobra.Command{
	Use:   "pnl",
	Short: "List recent P&L snapshots, newest first",
	Args:  cobra.NoArgs,
	RunE:  runReportPnL,
}

var (
	reportDBPath    string
	reportAccountID string
	reportLimit     int
)

func init() {
	rootCmd.AddCommand(reportCmd)
	reportCmd.AddCommand(reportAccountCmd)
	reportCmd.AddCommand(reportTradesCmd)
	reportCmd.AddCommand(reportPositionsCmd)
	reportCmd.AddCommand(reportPnLCmd)

	reportCmd.PersistentFlags().StringVarP(&reportDBPath, "db", "d", "./paperdesk.db", "path to SQLite database")
	reportCmd.PersistentFlags().StringVarP(&reportAccountID, "account", "a", "SIM-001", "account ID")
	reportCmd.PersistentFlags().IntVarP(&reportLimit, "limit", "n", 20, "max rows to show")
}

func openReportStore() (store.Store, error) {
	st, err := store.NewSQLite(reportDBPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	return st, nil
}

func runReportAccount(cmd *cobra.Command, args []string) error {
	st, err := openReportStore()
	if err != nil {
		return err
	}
	defer st.Close()

	acct, err := st.Account(reportAccountID)
	if err != nil {
		return fmt.Errorf("get account: %w", err)
	}

	fmt.Printf("Account %s\n", acct.ID)
	fmt.Printf("  Initial capital:   %.2f\n", acct.InitialCapital)
	fmt.Printf("  Available capital: %.2f\n", acct.AvailableCapital)
	fmt.Printf("  Realised P&L:      %.2f\n", acct.RealisedPnL)
	fmt.Printf("  Engine state:      %s\n", acct.EngineState)
	fmt.Printf("  Daily loss halted: %v\n", acct.DailyLossHalted)
	return nil
}

func runReportTrades(cmd *cobra.Command, args []string) error {
	st, err := openReportStore()
	if err != nil {
		return err
	}
	defer st.Close()

	trades, err := st.Trades(reportAccountID, reportLimit)
	if err != nil {
		return fmt.Errorf("list trades: %w", err)
	}
	if len(trades) == 0 {
		fmt.Println("No trades recorded.")
		return nil
	}

	fmt.Printf("%-20s %-8s %-4s %8s %10s %10s  %s\n",
		"TIME", "SYMBOL", "SIDE", "QTY", "PRICE", "PNL", "ORDER")
	for _, tr := range trades {
		fmt.Printf("%-20s %-8s %-4s %8d %10.2f %10.2f  %s\n",
			tr.Time.Format("2006-01-02 15:04:05"),
			tr.Symbol, tr.Side, tr.Qty, tr.Price, tr.PnL, tr.OrderID)
	}
	return nil
}

func runReportPositions(cmd *cobra.Command, args []string) error {
	st, err := openReportStore()
	if err != nil {
		return err
	}
	defer st.Close()

	positions, err := st.Positions(reportAccountID)
	if err != nil {
		return fmt.Errorf("list positions: %w", err)
	}
	if len(positions) == 0 {
		fmt.Println("No open positions.")
		return nil
	}

	fmt.Printf("%-8s %-5s %8s %10s %12s\n", "SYMBOL", "SIDE", "QTY", "AVG", "NOTIONAL")
	for _, p := range positions {
		fmt.Printf("%-8s %-5s %8d %10.2f %12.2f\n",
			p.Symbol, p.Side, p.Qty, p.AvgPrice, p.Notional())
	}
	return nil
}

func runReportPnL(cmd *cobra.Command, args []string) error {
	st, err := openReportStore()
	if err != nil {
		return err
	}
	defer st.Close()

	snaps, err := st.PnLHistory(reportAccountID, reportLimit)
	if err != nil {
		return fmt.Errorf("list pnl history: %w", err)
	}
	if len(snaps) == 0 {
		fmt.Println("No P&L snapshots recorded.")
		return nil
	}

	fmt.Printf("%-20s %12s %12s %12s %12s\n",
		"TIME", "REALISED", "UNREALISED", "TOTAL", "AVAILABLE")
	for _, s := range snaps {
		fmt.Printf("%-20s %12.2f %12.2f %12.2f %12.2f\n",
			s.Time.Format("2006-01-02 15:04:05"),
			s.Realised, s.Unrealised, s.Total, s.AvailableCapital)
	}
	return nil
}
