// Package consolidatecmder provides the consolidate command for running
// promotion passes over the memory tiers.
package consolidatecmder

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/papercomputeco/strata/pkg/cliui"
	"github.com/papercomputeco/strata/pkg/config"
	"github.com/papercomputeco/strata/pkg/consolidation"
	"github.com/papercomputeco/strata/pkg/core"
	"github.com/papercomputeco/strata/pkg/dotdir"
	"github.com/papercomputeco/strata/pkg/logger"
)

type consolidateCommander struct {
	watch    bool
	interval string

	configDir string
	debug     bool
	logger    *zap.Logger
}

const consolidateLongDesc string = `Run a consolidation pass over the memory tiers.

Each pass scans the lower tiers and promotes qualifying items one rung up
the ladder (working -> recent -> semantic -> durable). Promotion copies,
it never moves, and re-promoting an item is a no-op.

With --watch the scheduler keeps running passes on the configured interval
until interrupted.

Examples:
  strata consolidate
  strata consolidate --watch
  strata consolidate --watch --interval 1m`

const consolidateShortDesc string = "Run a consolidation pass"

func NewConsolidateCmd() *cobra.Command {
	cmder := &consolidateCommander{}

	cmd := &cobra.Command{
		Use:   "consolidate",
		Short: consolidateShortDesc,
		Long:  consolidateLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}

			cmder.configDir, _ = cmd.Flags().GetString("config-dir")

			return cmder.run()
		},
	}

	defaults := config.NewDefaultConfig()
	cmd.Flags().BoolVarP(&cmder.watch, "watch", "w", false, "Keep running passes on the configured interval")
	cmd.Flags().StringVar(&cmder.interval, "interval", defaults.Consolidation.Interval, "Pass interval for --watch (e.g. 30s, 5m)")

	return cmd
}

func (c *consolidateCommander) run() error {
	c.logger = logger.NewLogger(c.debug)
	defer func() { _ = c.logger.Sync() }()

	cfger, err := config.NewConfiger(c.configDir)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	cfg, err := cfger.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	cfg.Consolidation.Interval = c.interval

	dataDir, err := dotdir.NewManager().Target(c.configDir)
	if err != nil {
		return fmt.Errorf("resolving data dir: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	cr, err := core.New(ctx, core.Config{Settings: cfg, DataDir: dataDir, Logger: c.logger})
	if err != nil {
		return err
	}
	defer cr.Close()

	scheduler, err := cr.NewConsolidator(cfg)
	if err != nil {
		return err
	}

	report := scheduler.RunPass(ctx)
	printReport(report)

	if !c.watch {
		return nil
	}

	if err := scheduler.Start(); err != nil {
		return err
	}

	fmt.Printf("  %s\n", cliui.DimStyle.Render(fmt.Sprintf(
		"watching, next pass in %s (ctrl-c to stop)", cfg.Consolidation.Interval,
	)))

	<-ctx.Done()

	stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return scheduler.Stop(stopCtx)
}

func printReport(report consolidation.PassReport) {
	fmt.Println()
	for _, stage := range report.Stages {
		if stage.Err != nil {
			fmt.Printf("  %s %s: %v\n", cliui.FailMark, stage.Stage, stage.Err)
			continue
		}
		fmt.Printf("  %s %s %s\n",
			cliui.SuccessMark,
			cliui.KeyStyle.Render(stage.Stage),
			cliui.DimStyle.Render(fmt.Sprintf("scanned %d, promoted %d", stage.Scanned, stage.Promoted)),
		)
	}
	fmt.Printf("\n  %s\n\n", cliui.DimStyle.Render(fmt.Sprintf(
		"pass finished in %s", cliui.FormatDuration(report.Duration),
	)))
}
