// Package askcmder provides the ask command for running a reasoning session
// over the memory tiers.
package askcmder

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/papercomputeco/strata/pkg/cliui"
	"github.com/papercomputeco/strata/pkg/config"
	"github.com/papercomputeco/strata/pkg/core"
	"github.com/papercomputeco/strata/pkg/dotdir"
	"github.com/papercomputeco/strata/pkg/logger"
	"github.com/papercomputeco/strata/pkg/reasoning"
)

type askCommander struct {
	query         string
	model         string
	maxIterations uint
	constraints   []string
	showTrace     bool

	configDir string
	debug     bool
	logger    *zap.Logger
}

const askLongDesc string = `Answer a question with the reasoning loop.

Runs a bounded think/decide/act/observe cycle against the completion
provider, grounding each iteration in memories retrieved from the tiers
and the registered tools. What the session learns is written back into
memory and promoted by a consolidation pass when the session ends.

The session record is saved to .strata/session.json; inspect it with
strata status.

Examples:
  strata ask "what did we decide about the deploy pipeline?"
  strata ask "summarize this week" --model llama3.2 --max-iterations 5
  strata ask "plan the migration" --constraint "no downtime" --show-trace`

const askShortDesc string = "Answer a question with the reasoning loop"

func NewAskCmd() *cobra.Command {
	cmder := &askCommander{}

	cmd := &cobra.Command{
		Use:   "ask <question>",
		Short: askShortDesc,
		Long:  askLongDesc,
		Args:  cobra.ExactArgs(1),
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")
			cfger, err := config.NewConfiger(configDir)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			cfg, err := cfger.LoadConfig()
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			if !cmd.Flags().Changed("model") {
				cmder.model = cfg.Reasoning.Model
			}
			if !cmd.Flags().Changed("max-iterations") {
				cmder.maxIterations = cfg.Reasoning.MaxIterations
			}
			return nil
		},
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
	cmd.Flags().StringVarP(&cmder.model, "model", "m", defaults.Reasoning.Model, "Completion model")
	cmd.Flags().UintVar(&cmder.maxIterations, "max-iterations", defaults.Reasoning.MaxIterations, "Reasoning iteration cap")
	cmd.Flags().StringArrayVar(&cmder.constraints, "constraint", nil, "Constraint passed to every iteration (repeatable)")
	cmd.Flags().BoolVar(&cmder.showTrace, "show-trace", false, "Print the full iteration trace")

	return cmd
}

func (c *askCommander) run() error {
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
	cfg.Reasoning.Model = c.model
	cfg.Reasoning.MaxIterations = c.maxIterations

	ddm := dotdir.NewManager()
	dataDir, err := ddm.Target(c.configDir)
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

	provider, err := core.NewProvider(cfg)
	if err != nil {
		return err
	}
	defer provider.Close()

	builder, err := reasoning.NewContextBuilder(reasoning.BuilderConfig{
		Coordinator: cr.Coordinator,
		Executor:    cr.Executor,
		MaxMemories: int(cfg.Retrieval.MaxResults),
		Constraints: c.constraints,
		Logger:      c.logger,
	})
	if err != nil {
		return err
	}

	loop, err := reasoning.New(reasoning.Config{
		Provider:      provider,
		Executor:      cr.Executor,
		Builder:       builder,
		Learn:         cr.Working,
		MaxIterations: int(cfg.Reasoning.MaxIterations),
		Publisher:     cr.Publisher,
		Logger:        c.logger,
	})
	if err != nil {
		return err
	}

	session, runErr := loop.Run(ctx, c.query)

	// Whatever the loop learned sits in the working tier; promote it so
	// it survives this process.
	if scheduler, err := cr.NewConsolidator(cfg); err == nil {
		scheduler.RunPass(context.WithoutCancel(ctx))
	}

	if session != nil {
		c.saveSession(ddm, session)
		c.printSession(session)
	}

	return runErr
}

func (c *askCommander) saveSession(ddm *dotdir.Manager, session *reasoning.Session) {
	state := &dotdir.SessionState{
		SessionID:   session.ID,
		Query:       session.Query,
		Answer:      session.Answer,
		State:       string(session.State),
		Iterations:  len(session.Iterations),
		CompletedAt: session.CompletedAt,
	}

	if err := ddm.SaveSessionState(state, c.configDir); err != nil {
		c.logger.Warn("could not save session state", zap.Error(err))
	}
}

func (c *askCommander) printSession(session *reasoning.Session) {
	if c.showTrace {
		fmt.Println()
		for _, it := range session.Iterations {
			fmt.Printf("  %s %s\n",
				cliui.DimStyle.Render(fmt.Sprintf("%d.", it.Index)),
				cliui.PreviewStyle.Render(it.Thought),
			)
			fmt.Printf("     %s %s\n",
				cliui.TypeStyle.Render("["+string(it.Action)+"]"),
				cliui.DimStyle.Render(cliui.Truncate(it.Observation, 120)),
			)
		}
	}

	if session.Answer == "" {
		fmt.Printf("\n  %s %s\n\n", cliui.FailMark, cliui.DimStyle.Render("No answer produced."))
		return
	}

	rendered, err := cliui.RenderMarkdown(session.Answer)
	if err != nil {
		fmt.Printf("\n%s\n", session.Answer)
		return
	}

	fmt.Print(rendered)
	fmt.Printf("  %s\n\n", cliui.DimStyle.Render(fmt.Sprintf(
		"%d iteration(s) in %s, session %s",
		len(session.Iterations),
		cliui.FormatDuration(session.Duration()),
		session.ID,
	)))
}
