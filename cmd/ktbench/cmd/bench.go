package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/G-Research/ktbench/internal/ktbench"
)

// Run the bench parameters sweep on this machine.
func localCmd(app *ktbench.App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "local",
		Short: "Run a benchmark on this machine.",
		Long: `Run a benchmark on this machine.

The node crate is compiled from ../witness, and every process of the committee runs
in a tmux session on 127.0.0.1. Results are appended to results/.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()
			return app.LocalBench(ctx)
		},
	}
	return cmd
}

// Run the bench parameters sweep on the testbed.
func remoteCmd(app *ktbench.App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "remote",
		Short: "Run a benchmark on the hosts of the inventory.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()
			return app.RemoteBench(ctx)
		},
	}
	return cmd
}

// Parse the logs left by the last run.
func logsCmd(app *ktbench.App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Print a summary of the logs of the last run.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			faults, err := cmd.Flags().GetInt("faults")
			if err != nil {
				return err
			}
			return app.Logs(faults)
		},
	}
	cmd.Flags().Int("faults", 0, "Number of faulty witnesses of the run.")
	return cmd
}

// Validate the plot parameters file.
func plotParamsCmd(app *ktbench.App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plot-params",
		Short: "Validate and print the plot parameters.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.PlotParams()
		},
	}
	return cmd
}

// signalContext returns a context that is cancelled on SIGINT/SIGTERM.
// The sweep stops after the current step, and sessions left on the hosts are killed by the next reset.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	stopSignal := make(chan os.Signal, 1)
	signal.Notify(stopSignal, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		defer signal.Stop(stopSignal)
		select {
		case <-ctx.Done():
			return
		case <-stopSignal:
			cancel()
		}
	}()
	return ctx, cancel
}
