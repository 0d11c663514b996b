// Package remembercmder provides the remember command for storing a memory.
package remembercmder

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/papercomputeco/strata/pkg/cliui"
	"github.com/papercomputeco/strata/pkg/config"
	"github.com/papercomputeco/strata/pkg/core"
	"github.com/papercomputeco/strata/pkg/dotdir"
	"github.com/papercomputeco/strata/pkg/logger"
	"github.com/papercomputeco/strata/pkg/memory"
)

type rememberCommander struct {
	content    string
	memType    string
	importance float64
	source     string
	noPromote  bool

	configDir string
	debug     bool
	logger    *zap.Logger
}

const rememberLongDesc string = `Store a memory.

The memory enters the working tier and is immediately run through one
consolidation pass so it lands in the persistent tiers its importance
qualifies it for (recent always, semantic at 0.5+, durable at 0.8+).

Use --no-promote to leave the memory in the working tier only; note that
the working tier does not survive past the current process.

Examples:
  strata remember "the deploy pipeline uses blue-green rollouts"
  strata remember "alice prefers terse code reviews" --type semantic --importance 0.7
  strata remember "api key rotated on the first monday" --importance 0.9`

const rememberShortDesc string = "Store a memory"

func NewRememberCmd() *cobra.Command {
	cmder := &rememberCommander{}

	cmd := &cobra.Command{
		Use:   "remember <content>",
		Short: rememberShortDesc,
		Long:  rememberLongDesc,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmder.content = args[0]

			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}

			cmder.configDir, _ = cmd.Flags().GetString("config-dir")

			return cmder.run()
		},
	}

	cmd.Flags().StringVarP(&cmder.memType, "type", "t", string(memory.TypeEpisodic), "Memory type (episodic, semantic, procedural, working)")
	cmd.Flags().Float64VarP(&cmder.importance, "importance", "i", 0.5, "Importance in [0, 1]")
	cmd.Flags().StringVar(&cmder.source, "source", "cli", "Source label recorded on the memory")
	cmd.Flags().BoolVar(&cmder.noPromote, "no-promote", false, "Skip the consolidation pass after storing")

	return cmd
}

func (c *rememberCommander) run() error {
	c.logger = logger.NewLogger(c.debug)
	defer func() { _ = c.logger.Sync() }()

	typ := memory.Type(strings.ToLower(c.memType))
	if !memory.ValidTypes[typ] {
		return fmt.Errorf("unknown memory type %q (episodic, semantic, procedural, working)", c.memType)
	}

	cfger, err := config.NewConfiger(c.configDir)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	cfg, err := cfger.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	dataDir, err := dotdir.NewManager().Target(c.configDir)
	if err != nil {
		return fmt.Errorf("resolving data dir: %w", err)
	}

	ctx := context.Background()

	cr, err := core.New(ctx, core.Config{Settings: cfg, DataDir: dataDir, Logger: c.logger})
	if err != nil {
		return err
	}
	defer cr.Close()

	item, err := memory.NewItem(c.content, typ, c.importance)
	if err != nil {
		return err
	}
	item.Source = c.source

	if _, err := cr.Working.Store(ctx, item); err != nil {
		return fmt.Errorf("storing memory: %w", err)
	}

	fmt.Printf("\n  %s Stored %s %s\n",
		cliui.SuccessMark,
		cliui.TypeStyle.Render("["+string(typ)+"]"),
		cliui.IDStyle.Render(item.ID),
	)

	if c.noPromote {
		fmt.Println()
		return nil
	}

	scheduler, err := cr.NewConsolidator(cfg)
	if err != nil {
		return err
	}

	report := scheduler.RunPass(ctx)
	for _, stage := range report.Stages {
		if stage.Err != nil {
			fmt.Printf("  %s %s: %v\n", cliui.FailMark, stage.Stage, stage.Err)
			continue
		}
		fmt.Printf("  %s %s %s\n",
			cliui.SuccessMark,
			cliui.KeyStyle.Render(stage.Stage),
			cliui.DimStyle.Render(fmt.Sprintf("promoted %d", stage.Promoted)),
		)
	}

	fmt.Println()
	return nil
}
