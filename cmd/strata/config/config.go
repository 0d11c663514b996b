// Package configcmder provides the config command for managing persistent
// strata configuration stored in the .strata/ directory.
package configcmder

import (
	"github.com/spf13/cobra"
)

const configLongDesc string = `Manage persistent strata configuration.

Configuration is stored as config.toml in the .strata/ directory and provides
default values for command flags. CLI flags always take precedence over
config file values.

Keys use dotted notation matching the TOML section structure:
  storage.sqlite_path, storage.durable_backend, storage.postgres_conn,
  vector_store.provider, vector_store.target,
  embedding.provider, embedding.target, embedding.model, embedding.dimensions,
  memory.working_ttl_seconds, memory.semantic_gate, memory.durable_gate,
  retrieval.importance_weight, retrieval.max_results,
  consolidation.interval, consolidation.batch_size,
  reasoning.provider, reasoning.model, reasoning.max_iterations,
  tools.timeout_seconds, events.provider, events.topic

Use subcommands to get, set, or list configuration values:
  strata config set <key> <value>    Set a configuration value
  strata config get <key>            Get a configuration value
  strata config list                 List all configuration values

Examples:
  strata config set reasoning.model llama3.2
  strata config set memory.durable_gate 0.85
  strata config get consolidation.interval
  strata config list`

const configShortDesc string = "Manage persistent strata configuration"

func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: configShortDesc,
		Long:  configLongDesc,
	}

	cmd.AddCommand(newGetCmd())
	cmd.AddCommand(newSetCmd())
	cmd.AddCommand(newListCmd())

	return cmd
}
