// Package stratacmder
package stratacmder

import (
	"github.com/spf13/cobra"

	askcmder "github.com/papercomputeco/strata/cmd/strata/ask"
	configcmder "github.com/papercomputeco/strata/cmd/strata/config"
	consolidatecmder "github.com/papercomputeco/strata/cmd/strata/consolidate"
	initcmder "github.com/papercomputeco/strata/cmd/strata/init"
	recallcmder "github.com/papercomputeco/strata/cmd/strata/recall"
	remembercmder "github.com/papercomputeco/strata/cmd/strata/remember"
	statuscmder "github.com/papercomputeco/strata/cmd/strata/status"
	versioncmder "github.com/papercomputeco/strata/cmd/strata/version"
)

const strataLongDesc string = `Strata is a tiered memory and reasoning core.

Memories enter the working tier and are promoted up the ladder
(working -> recent -> semantic -> durable) by the consolidation scheduler.

Common commands:
  strata remember      Store a memory
  strata recall        Search memories across every tier
  strata ask           Answer a question with the reasoning loop
  strata consolidate   Run a consolidation pass over the tiers`

const strataShortDesc string = "Strata - Tiered Memory and Reasoning"

func NewStrataCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "strata",
		Short: strataShortDesc,
		Long:  strataLongDesc,
	}

	// Global flags
	cmd.PersistentFlags().BoolP("debug", "d", false, "Enable debug logging")
	cmd.PersistentFlags().String("config-dir", "", "Override path to .strata/ config directory")

	// Add subcommands
	cmd.AddCommand(initcmder.NewInitCmd())
	cmd.AddCommand(configcmder.NewConfigCmd())
	cmd.AddCommand(remembercmder.NewRememberCmd())
	cmd.AddCommand(recallcmder.NewRecallCmd())
	cmd.AddCommand(askcmder.NewAskCmd())
	cmd.AddCommand(consolidatecmder.NewConsolidateCmd())
	cmd.AddCommand(statuscmder.NewStatusCmd())
	cmd.AddCommand(versioncmder.NewVersionCmd())

	return cmd
}
