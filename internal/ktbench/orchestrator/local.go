package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"

	"github.com/G-Research/ktbench/internal/common/bencherrors"
	"github.com/G-Research/ktbench/internal/common/logging"
	"github.com/G-Research/ktbench/internal/ktbench/commands"
	"github.com/G-Research/ktbench/internal/ktbench/committee"
	"github.com/G-Research/ktbench/internal/ktbench/configuration"
	"github.com/G-Research/ktbench/internal/ktbench/local"
	"github.com/G-Research/ktbench/internal/ktbench/logs"
	"github.com/G-Research/ktbench/internal/ktbench/metrics"
	"github.com/G-Research/ktbench/internal/ktbench/paths"
)

// LocalBasePort is the port of the identity provider of a local committee.
const LocalBasePort = 3000

// How long to wait after a reset, for the killed processes to release their ports.
const resetDelay = 500 * time.Millisecond

// LocalBench runs a sweep with every process on this machine.
type LocalBench struct {
	params  *configuration.BenchParameters
	shell   local.Shell
	parser  logs.Parser
	options Options
	results *recorder
	sleep   sleepFunc
}

func NewLocalBench(params *configuration.BenchParameters, shell local.Shell, parser logs.Parser, options Options) *LocalBench {
	options = options.withDefaults()
	return &LocalBench{
		params:  params,
		shell:   shell,
		parser:  parser,
		options: options,
		results: &recorder{options: options, mode: "local"},
		sleep:   sleep,
	}
}

// Run runs every point of the sweep.
// Steps:
//  1. Kill whatever a previous benchmark left running.
//  2. Compile the binaries and link them into the working directory.
//  3. For each point: reset, generate keys and committee, launch, wait for the duration of the run, kill, parse
//     the logs and record the results.
//
// A failure in step 2 aborts the sweep. A failure in step 3 only fails the point.
func (b *LocalBench) Run(ctx context.Context) error {
	logger := b.options.Logger
	logging.Heading(logger, "Starting local benchmark")
	b.options.Metrics.SetHosts(1)
	b.kill()

	logger.Info("Setting up testbed...")
	err := phase(b.options.Metrics, metrics.PhaseUpdate, func() error {
		return buildBinaries(b.shell, b.options, b.params.WitnessOnly)
	})
	if err != nil {
		return errors.WithStack(bencherrors.NewBenchError("Failed to compile the benchmark", err))
	}

	var result *multierror.Error
	for _, point := range b.params.Points() {
		if ctx.Err() != nil {
			return multierror.Append(result, errors.WithStack(ctx.Err())).ErrorOrNil()
		}
		logging.Heading(logger, fmt.Sprintf("Running %s", point))
		if err := b.runPoint(ctx, point); err != nil {
			b.kill()
			result = multierror.Append(result, b.results.fail(point, bencherrors.NewBenchError("Failed to run benchmark", err)))
		}
	}
	return result.ErrorOrNil()
}

func (b *LocalBench) runPoint(ctx context.Context, point configuration.SweepPoint) error {
	m := b.options.Metrics
	err := phase(m, metrics.PhaseReset, func() error {
		b.kill()
		if _, err := b.shell.Run(b.options.WorkDir, commands.CleanLogs()+" ; "+commands.Cleanup()); err != nil {
			b.options.Logger.WithError(err).Debug("Cleanup did not complete")
		}
		return b.sleep(ctx, resetDelay)
	})
	if err != nil {
		return err
	}

	var c *committee.Committee
	err = phase(m, metrics.PhaseConfigure, func() error {
		var err error
		c, err = b.configure(point.Nodes)
		return err
	})
	if err != nil {
		return errors.WithMessage(err, "failed to configure nodes")
	}

	err = phase(m, metrics.PhaseLaunch, func() error {
		return b.launch(c, point.Rate)
	})
	if err != nil {
		return errors.WithMessage(err, "failed to launch nodes")
	}

	err = phase(m, metrics.PhaseObserve, func() error {
		b.options.Logger.Infof("Running benchmark (%d sec)...", int(b.params.Duration.Seconds()))
		return b.sleep(ctx, b.params.Duration)
	})
	if err != nil {
		return err
	}

	_ = phase(m, metrics.PhaseDrain, func() error {
		b.kill()
		return nil
	})

	return phase(m, metrics.PhaseCollect, func() error {
		b.options.Logger.Info("Parsing logs...")
		result, err := b.parser.Parse(b.options.path(paths.LogsDir), point.Faults)
		if err != nil {
			return err
		}
		return b.results.record(ctx, point, result)
	})
}

func (b *LocalBench) configure(nodes int) (*committee.Committee, error) {
	idp, names, err := generateKeys(b.shell, b.options, nodes)
	if err != nil {
		return nil, err
	}
	c, err := committee.NewLocal(idp, names, LocalBasePort)
	if err != nil {
		return nil, err
	}
	if err := c.Print(b.options.path(paths.CommitteeFile)); err != nil {
		return nil, err
	}
	return c, nil
}

func (b *LocalBench) launch(c *committee.Committee, rate int) error {
	plan, err := launchPlan(c, b.params, rate, b.options.Debug)
	if err != nil {
		return err
	}
	for _, p := range plan {
		if _, err := b.shell.Run(b.options.WorkDir, commands.LocalBackground(p.command, p.logFile)); err != nil {
			return err
		}
	}
	return nil
}

// kill fails when nothing is running, which is the common case.
func (b *LocalBench) kill() {
	if _, err := b.shell.Run(b.options.WorkDir, commands.Kill()); err != nil {
		b.options.Logger.WithError(err).Debug("Nothing to kill")
	}
}
