package cmd

import (
	"github.com/spf13/cobra"

	"github.com/G-Research/ktbench/internal/ktbench"
)

func installCmd(app *ktbench.App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "install",
		Short: "Install the toolchain and clone the repository on every host of the inventory.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()
			return app.Install(ctx)
		},
	}
	return cmd
}

func killCmd(app *ktbench.App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "kill [host ...]",
		Short: "Stop the benchmark on the given hosts, or on every host of the inventory.",
		RunE: func(cmd *cobra.Command, args []string) error {
			deleteLogs, err := cmd.Flags().GetBool("delete-logs")
			if err != nil {
				return err
			}
			ctx, cancel := signalContext()
			defer cancel()
			return app.Kill(ctx, args, deleteLogs)
		},
	}
	cmd.Flags().Bool("delete-logs", false, "Also empty the logs directory.")
	return cmd
}

func infoCmd(app *ktbench.App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "info",
		Short: "Print the testbed settings and how to ssh into every host.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.Info()
		},
	}
	return cmd
}
