package cmd

import (
	"github.com/spf13/cobra"

	"github.com/G-Research/ktbench/internal/ktbench"
)

// RootCmd is the root Cobra command that gets called from the main func.
// All other sub-commands should be registered here.
func RootCmd() *cobra.Command {
	app := ktbench.New()
	cmd := &cobra.Command{
		Use:   "ktbench",
		Short: "ktbench benchmarks key transparency deployments, locally or on a testbed of remote hosts.",
		Long: `ktbench benchmarks key transparency deployments, locally or on a testbed of remote hosts.

Every flag can also be set in a config file, or with a KTBENCH_ environment variable,
e.g., KTBENCH_SETTINGS=testbed.json. Example config file:

settings: settings.json
inventory: inventory.yaml
params: bench.yaml
user: ubuntu

The location of this file can be passed in using the --config argument.
If not provided, $HOME/.ktbench.yaml is used.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initParams(cmd, app)
		},
	}

	addFlags(cmd.PersistentFlags())

	cmd.AddCommand(
		localCmd(app),
		remoteCmd(app),
		installCmd(app),
		killCmd(app),
		logsCmd(app),
		infoCmd(app),
		plotParamsCmd(app),
		versionCmd(app),
	)

	return cmd
}

// Print version info and exit.
func versionCmd(app *ktbench.App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.Version()
		},
	}
	return cmd
}
