package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"paperdesk/broker/sim"
	"paperdesk/config"
	"paperdesk/engine"
	"paperdesk/event"
	"paperdesk/feed"
	"paperdesk/logger"
	"paperdesk/market"
	"paperdesk/order"
	"paperdesk/store"
	"paperdesk/strategy"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the engine against the simulated exchange",
	Long: `Run the trading engine with settings from a configuration file.

The engine restores its account, open orders and controller state from
the database, so stopping and restarting picks up where it left off.

Example:
  paperdesk run --config paperdesk.yaml`,
	RunE: runRun,
}

var (
	runConfigPath string
	runPaused     bool
)

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runConfigPath, "config", "f", "", "path to config file (YAML or JSON), defaults apply when omitted")
	runCmd.Flags().BoolVar(&runPaused, "paused", false, "do not start trading, only restore state and enforce exits")
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg := config.Default()
	if runConfigPath != "" {
		var err error
		cfg, err = config.LoadFromFile(runConfigPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
	}

	log, err := logger.New(cfg.Log.Level)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()

	st, err := store.NewSQLite(cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	bus := event.NewBus(256, log)
	defer bus.Close()

	eng, err := engine.New(cfg.EngineConfig(), st, bus, log)
	if err != nil {
		return fmt.Errorf("build engine: %w", err)
	}

	if cfg.Limits.KillSwitch {
		eng.Capital().SetKillSwitch(true)
	}

	ex := sim.New(cfg.SimConfig(), eng.Manager().ApplyUpdate, log)
	eng.Manager().SetExchange(ex)
	ex.Start()
	defer ex.Stop()

	strat, err := strategy.New(cfg.Strategy.Name, cfg.Strategy.Params)
	if err != nil {
		return fmt.Errorf("build strategy: %w", err)
	}
	eng.AddStrategy(strat)

	if !runPaused && !eng.Controller().IsRunning() {
		if err := eng.Controller().Start(); err != nil {
			return fmt.Errorf("start engine: %w", err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	demo := feed.NewDemo(cfg.DemoConfig())
	go demo.Run(ctx)
	go printEvents(bus.Subscribe())

	fmt.Printf("paperdesk running: account=%s strategy=%s db=%s state=%s\n",
		cfg.Account.ID, cfg.Strategy.Name, cfg.Store.Path, eng.Controller().State())

	err = eng.Run(ctx, demo.Ticks())
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	printSummary(eng)
	return nil
}

// printEvents mirrors the bus to stdout so a run is observable without
// tailing logs.
func printEvents(events <-chan event.Event) {
	for ev := range events {
		switch ev.Type {
		case event.TypeOrderUpdate:
			if o, ok := ev.Data.(order.Order); ok {
				fmt.Printf("[order] %s %s %s %s qty=%d filled=%d avg=%.2f\n",
					o.ID, o.Symbol, o.Side, o.Status, o.Qty, o.FilledQty, o.AvgPrice)
			}
		case event.TypePositionUpdate:
			if p, ok := ev.Data.(market.Position); ok {
				fmt.Printf("[position] %s %s qty=%d avg=%.2f\n",
					p.Symbol, p.Side, p.Qty, p.AvgPrice)
			}
		case event.TypeEngineState:
			fmt.Printf("[engine] state=%v\n", ev.Data)
		case event.TypeRiskRejected:
			fmt.Printf("[risk] rejected: %v\n", ev.Data)
		}
	}
}

func printSummary(eng *engine.Engine) {
	capital := eng.Capital()
	fmt.Println("\nFinal state:")
	fmt.Printf("  Available capital: %.2f\n", capital.AvailableCapital())
	fmt.Printf("  Realised P&L:      %.2f\n", capital.RealisedPnL())
	fmt.Printf("  Used margin:       %.2f\n", capital.UsedMargin())
	fmt.Printf("  Max drawdown:      %.2f%%\n", eng.MaxDrawdownPct())
	for _, p := range capital.Positions() {
		fmt.Printf("  Open position:     %s %s qty=%d avg=%.2f\n",
			p.Symbol, p.Side, p.Qty, p.AvgPrice)
	}
}
