// Package ktbench wires the benchmark command-line application: it loads the configuration files,
// builds the orchestrator and its collaborators, and prints results.
package ktbench

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/G-Research/ktbench/internal/common/bencherrors"
	"github.com/G-Research/ktbench/internal/common/logging"
	"github.com/G-Research/ktbench/internal/ktbench/build"
	"github.com/G-Research/ktbench/internal/ktbench/configuration"
	"github.com/G-Research/ktbench/internal/ktbench/hosts"
	"github.com/G-Research/ktbench/internal/ktbench/local"
	"github.com/G-Research/ktbench/internal/ktbench/logs"
	"github.com/G-Research/ktbench/internal/ktbench/metrics"
	"github.com/G-Research/ktbench/internal/ktbench/orchestrator"
	"github.com/G-Research/ktbench/internal/ktbench/paths"
	"github.com/G-Research/ktbench/internal/ktbench/remote"
	"github.com/G-Research/ktbench/internal/ktbench/repository"
)

type App struct {
	// Parameters passed to the CLI by the user.
	Params *Params
	// Out is used to write the output. Defaults to standard out,
	// but can be overridden in tests to make assertions on the applications's output.
	Out io.Writer
	// Progress of long-running commands. Defaults to the standard logger.
	Logger *log.Entry

	newShell    func(logger *log.Entry) local.Shell
	newExecutor func(config remote.SSHConfig, logger *log.Entry) (remote.Executor, error)
}

// Params struct holds all user-customizable parameters.
// Using a single struct for all CLI commands ensures that all flags are distinct
// and that they can be provided either dynamically on a command line, or
// statically in a config file that's reused between command runs.
type Params struct {
	// Directory holding the key, committee, log and result files.
	WorkDir string
	// Testbed settings (JSON).
	SettingsFile string
	// Hosts of the testbed per region (YAML or JSON).
	InventoryFile string
	// Bench parameters (YAML or JSON).
	BenchParamsFile string
	// Plot parameters (YAML or JSON).
	PlotParamsFile string
	// User to log into remote hosts as.
	User string
	// Run the nodes with debug logging.
	Debug bool
	// Don't record results in the results database.
	NoResultsDb bool
}

// New instantiates an App with default parameters, including standard output.
func New() *App {
	return &App{
		Params: &Params{
			WorkDir:         ".",
			SettingsFile:    "settings.json",
			InventoryFile:   "inventory.yaml",
			BenchParamsFile: "bench.yaml",
			PlotParamsFile:  "plot.yaml",
			User:            "ubuntu",
		},
		Out:    os.Stdout,
		Logger: log.NewEntry(log.StandardLogger()),
		newShell: func(logger *log.Entry) local.Shell {
			return local.NewSystemShell(logger)
		},
		newExecutor: func(config remote.SSHConfig, logger *log.Entry) (remote.Executor, error) {
			return remote.NewSSHExecutor(config, logger)
		},
	}
}

// Version prints build information (e.g., current git commit) to the app output.
func (a *App) Version() error {
	w := tabwriter.NewWriter(a.Out, 1, 1, 1, ' ', 0)
	defer w.Flush()
	fmt.Fprintf(w, "Version:\t%s\n", build.ReleaseVersion)
	fmt.Fprintf(w, "Commit:\t%s\n", build.GitCommit)
	fmt.Fprintf(w, "Go version:\t%s\n", build.GoVersion)
	fmt.Fprintf(w, "Built:\t%s\n", build.BuildTime)
	return nil
}

// LocalBench runs the bench parameters sweep on this machine.
func (a *App) LocalBench(ctx context.Context) error {
	params, err := configuration.LoadBenchParameters(a.Params.BenchParamsFile)
	if err != nil {
		return errors.WithStack(bencherrors.NewBenchError("Invalid nodes or bench parameters", err))
	}
	options, finish, err := a.sweepOptions(ctx)
	if err != nil {
		return err
	}
	defer finish()
	bench := orchestrator.NewLocalBench(params, a.newShell(options.Logger), logs.InventoryParser{}, options)
	return bench.Run(ctx)
}

// RemoteBench runs the bench parameters sweep on the hosts of the inventory.
func (a *App) RemoteBench(ctx context.Context) error {
	params, err := configuration.LoadBenchParameters(a.Params.BenchParamsFile)
	if err != nil {
		return errors.WithStack(bencherrors.NewBenchError("Invalid nodes or bench parameters", err))
	}
	options, finish, err := a.sweepOptions(ctx)
	if err != nil {
		return err
	}
	defer finish()
	bench, closeBench, err := a.remoteBench(options)
	if err != nil {
		return err
	}
	defer closeBench()
	return bench.Run(ctx, params)
}

// Install prepares every host of the inventory.
func (a *App) Install(ctx context.Context) error {
	bench, closeBench, err := a.remoteBench(a.options())
	if err != nil {
		return err
	}
	defer closeBench()
	return bench.Install(ctx)
}

// Kill stops the benchmark on the given hosts, or on every host of the inventory.
func (a *App) Kill(ctx context.Context, hosts []string, deleteLogs bool) error {
	bench, closeBench, err := a.remoteBench(a.options())
	if err != nil {
		return err
	}
	defer closeBench()
	return bench.Kill(ctx, hosts, deleteLogs)
}

// Logs parses the logs directory as left by the last run and prints the result.
func (a *App) Logs(faults int) error {
	result, err := logs.InventoryParser{}.Parse(a.path(paths.LogsDir), faults)
	if err != nil {
		return errors.WithStack(bencherrors.NewBenchError("Failed to parse logs", err))
	}
	_, err = fmt.Fprint(a.Out, result.Summary)
	return errors.WithStack(err)
}

// Info prints the testbed settings and how to log into every host of the inventory.
func (a *App) Info() error {
	settings, err := configuration.LoadSettings(a.Params.SettingsFile)
	if err != nil {
		return err
	}
	inventory, err := hosts.LoadInventory(a.Params.InventoryFile, settings.Instances.Regions)
	if err != nil {
		return err
	}
	size, err := inventory.Size()
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(a.Out, 1, 1, 1, ' ', 0)
	defer w.Flush()
	fmt.Fprintf(w, "Testbed:\t%s\n", settings.Testbed)
	fmt.Fprintf(w, "Instance type:\t%s\n", settings.Instances.Type)
	fmt.Fprintf(w, "Available machines:\t%d\n", size)
	for _, region := range inventory.Regions() {
		addresses, err := inventory.Hosts(region)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "\nRegion:\t%s\n", region)
		for i, address := range addresses {
			fmt.Fprintf(w, "%d\tssh -i %s %s@%s\n", i, settings.Key.Path, a.Params.User, address)
		}
	}
	return nil
}

// PlotParams validates the plot parameters file and prints what will be plotted.
func (a *App) PlotParams() error {
	params, err := configuration.LoadPlotParameters(a.Params.PlotParamsFile)
	if err != nil {
		return errors.WithStack(bencherrors.NewBenchError("Invalid plot parameters", err))
	}
	w := tabwriter.NewWriter(a.Out, 1, 1, 1, ' ', 0)
	defer w.Flush()
	fmt.Fprintf(w, "Faults:\t%v\n", params.Faults)
	fmt.Fprintf(w, "Nodes:\t%v\n", params.Nodes)
	fmt.Fprintf(w, "Batch size:\t%v\n", params.BatchSize)
	fmt.Fprintf(w, "Shards:\t%v\n", params.Shards)
	fmt.Fprintf(w, "Collocate:\t%t\n", params.Collocate)
	fmt.Fprintf(w, "Max latency:\t%v\n", params.MaxLatency)
	if params.YMax != nil {
		fmt.Fprintf(w, "Y max:\t%d\n", *params.YMax)
	}
	fmt.Fprintf(w, "Scalability:\t%t\n", params.Scalability())
	return nil
}

func (a *App) path(relative string) string {
	return filepath.Join(a.Params.WorkDir, relative)
}

func (a *App) options() orchestrator.Options {
	return orchestrator.Options{
		WorkDir: a.Params.WorkDir,
		Debug:   a.Params.Debug,
		Logger:  a.Logger,
	}
}

// sweepOptions adds a results database, metrics and a run id to options. Metrics include a count of
// the lines logged during the sweep, so the sweep logs to its own logger with the same output and level. The returned func closes the database and writes the metrics file.
func (a *App) sweepOptions(ctx context.Context) (orchestrator.Options, func(), error) {
	options := a.options()
	options.RunId = uuid.New().String()
	options.Metrics = metrics.New()

	hook, err := logging.NewPrometheusHook(options.Metrics.Registerer())
	if err != nil {
		return options, nil, errors.WithStack(err)
	}
	base := a.Logger.Logger
	sweepLogger := &log.Logger{
		Out:       base.Out,
		Formatter: base.Formatter,
		Hooks:     make(log.LevelHooks),
		Level:     base.Level,
		ExitFunc:  base.ExitFunc,
	}
	sweepLogger.AddHook(hook)
	options.Logger = log.NewEntry(sweepLogger).WithFields(a.Logger.Data)

	closeDb := func() {}
	if !a.Params.NoResultsDb {
		results, cleanup, err := repository.NewSQLiteResults(a.path(paths.ResultsDb()), options.Logger)
		if err != nil {
			return options, nil, err
		}
		if err := results.Setup(ctx); err != nil {
			cleanup()
			return options, nil, err
		}
		options.Repository = results
		closeDb = cleanup
	}

	finish := func() {
		closeDb()
		metricsFile := a.path(paths.MetricsFile())
		if err := options.Metrics.WriteToTextfile(metricsFile); err != nil {
			options.Logger.WithError(err).Warnf("Failed to write %s", metricsFile)
		}
	}
	return options, finish, nil
}

func (a *App) remoteBench(options orchestrator.Options) (*orchestrator.Bench, func(), error) {
	settings, err := configuration.LoadSettings(a.Params.SettingsFile)
	if err != nil {
		return nil, nil, err
	}
	inventory, err := hosts.LoadInventory(a.Params.InventoryFile, settings.Instances.Regions)
	if err != nil {
		return nil, nil, err
	}
	executor, err := a.newExecutor(remote.SSHConfig{User: a.Params.User, KeyPath: settings.Key.Path}, options.Logger)
	if err != nil {
		return nil, nil, err
	}
	closeExecutor := func() {
		if err := executor.Close(); err != nil {
			options.Logger.WithError(err).Warn("Failed to close connections")
		}
	}
	bench := orchestrator.NewBench(settings, inventory, executor, a.newShell(options.Logger), logs.InventoryParser{}, options)
	return bench, closeExecutor, nil
}
