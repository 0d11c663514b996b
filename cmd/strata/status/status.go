// Package statuscmder provides the status command for displaying the last
// reasoning session recorded in the local .strata directory.
package statuscmder

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/strata/pkg/cliui"
	"github.com/papercomputeco/strata/pkg/dotdir"
)

const statusLongDesc string = `Show the last reasoning session.

Reads the local .strata/ directory (or ~/.strata/) to display the most
recent session saved by strata ask, including its state, iteration count,
and answer.

If no session state exists, indicates that no session has run yet.

Examples:
  strata status
  strata status --clear`

const statusShortDesc string = "Show the last reasoning session"

func NewStatusCmd() *cobra.Command {
	var clear bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: statusShortDesc,
		Long:  statusLongDesc,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			configDir, _ := cmd.Flags().GetString("config-dir")
			if clear {
				return runClear(configDir)
			}
			return runStatus(configDir)
		},
	}

	cmd.Flags().BoolVar(&clear, "clear", false, "Clear the saved session state")

	return cmd
}

func runStatus(configDir string) error {
	manager := dotdir.NewManager()

	state, err := manager.LoadSessionState(configDir)
	if err != nil {
		return fmt.Errorf("loading session state: %w", err)
	}

	if state == nil {
		fmt.Printf("  %s No session state. Run strata ask to start one.\n", cliui.DimStyle.Render("●"))
		return nil
	}

	fmt.Printf("\n  %s  %s\n", cliui.KeyStyle.Render("Session:   "), cliui.IDStyle.Render(state.SessionID))
	fmt.Printf("  %s  %s\n", cliui.KeyStyle.Render("Query:     "), cliui.PreviewStyle.Render(cliui.Truncate(state.Query, 72)))
	fmt.Printf("  %s  %s\n", cliui.KeyStyle.Render("State:     "), cliui.ValueStyle.Render(state.State))
	fmt.Printf("  %s  %s\n", cliui.KeyStyle.Render("Iterations:"), cliui.ValueStyle.Render(strconv.Itoa(state.Iterations)))

	if !state.CompletedAt.IsZero() {
		fmt.Printf("  %s  %s\n", cliui.KeyStyle.Render("Completed: "), cliui.DimStyle.Render(state.CompletedAt.Local().Format("2006-01-02 15:04:05")))
	}

	if state.Answer != "" {
		fmt.Printf("\n  %s\n", cliui.PreviewStyle.Render(cliui.Truncate(state.Answer, 200)))
	}

	fmt.Println()
	return nil
}

func runClear(configDir string) error {
	manager := dotdir.NewManager()

	if err := manager.ClearSessionState(configDir); err != nil {
		return fmt.Errorf("clearing session state: %w", err)
	}

	fmt.Printf("  %s Session state cleared.\n", cliui.SuccessMark)
	return nil
}
