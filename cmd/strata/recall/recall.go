// Package recallcmder provides the recall command for ranked retrieval
// across the memory tiers.
package recallcmder

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
	"github.com/papercomputeco/strata/pkg/retrieval"
)

type recallCommander struct {
	query    string
	topK     int
	strategy string
	types    []string

	configDir string
	debug     bool
	logger    *zap.Logger
}

const recallLongDesc string = `Search memories across every tier.

Fans the query out to the working, recent, semantic, and durable tiers,
deduplicates items promoted into multiple tiers, and ranks the merged set
by blended importance, recency, frequency, and similarity.

The recent strategy restricts the search to the working and recent tiers
and skips ranking.

Examples:
  strata recall "deploy pipeline"
  strata recall "code review preferences" --top 3
  strata recall "what happened this morning" --strategy recent
  strata recall "rollout" --type semantic --type procedural`

const recallShortDesc string = "Search memories across every tier"

func NewRecallCmd() *cobra.Command {
	cmder := &recallCommander{}

	cmd := &cobra.Command{
		Use:   "recall <query>",
		Short: recallShortDesc,
		Long:  recallLongDesc,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmder.query = args[0]

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
	cmd.Flags().IntVarP(&cmder.topK, "top", "k", int(defaults.Retrieval.MaxResults), "Number of results to return")
	cmd.Flags().StringVar(&cmder.strategy, "strategy", string(retrieval.StrategyComprehensive), "Retrieval strategy (recent, comprehensive)")
	cmd.Flags().StringArrayVarP(&cmder.types, "type", "t", nil, "Restrict to memory types (repeatable)")

	return cmd
}

func (c *recallCommander) run() error {
	c.logger = logger.NewLogger(c.debug)
	defer func() { _ = c.logger.Sync() }()

	var types []memory.Type
	for _, t := range c.types {
		typ := memory.Type(strings.ToLower(t))
		if !memory.ValidTypes[typ] {
			return fmt.Errorf("unknown memory type %q (episodic, semantic, procedural, working)", t)
		}
		types = append(types, typ)
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

	results, err := cr.Coordinator.Search(ctx, retrieval.Request{
		Query:      c.query,
		Types:      types,
		Strategy:   retrieval.Strategy(c.strategy),
		MaxResults: c.topK,
	})
	if err != nil {
		return err
	}

	if len(results) == 0 {
		fmt.Println("No memories found.")
		return nil
	}

	fmt.Printf("\n%s %s\n\n",
		cliui.KeyStyle.Render("Recall results for:"),
		cliui.IDStyle.Render(fmt.Sprintf("%q", c.query)),
	)

	for i, result := range results {
		printResult(i+1, result)
	}

	return nil
}

func printResult(rank int, result retrieval.Result) {
	fmt.Printf("  %s  %s  %s\n",
		cliui.KeyStyle.Render(fmt.Sprintf("#%d", rank)),
		cliui.ScoreStyle.Render(fmt.Sprintf("score: %.4f", result.Score)),
		cliui.DimStyle.Render(result.Tier),
	)

	preview := strings.ReplaceAll(result.Item.Content, "\n", " ")
	preview = cliui.Truncate(preview, 100)

	fmt.Printf("  %s %s\n",
		cliui.TypeStyle.Render("["+string(result.Item.Type)+"]"),
		cliui.PreviewStyle.Render(preview),
	)
	fmt.Printf("  %s\n\n", cliui.DimStyle.Render(fmt.Sprintf(
		"importance %.2f, accessed %d time(s), id %s",
		result.Item.Importance, result.Item.AccessCount, result.Item.ID,
	)))
}
