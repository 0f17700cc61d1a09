package orchestrator

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"

	"github.com/G-Research/ktbench/internal/common/bencherrors"
	"github.com/G-Research/ktbench/internal/common/logging"
	"github.com/G-Research/ktbench/internal/common/slices"
	"github.com/G-Research/ktbench/internal/ktbench/commands"
	"github.com/G-Research/ktbench/internal/ktbench/committee"
	"github.com/G-Research/ktbench/internal/ktbench/configuration"
	"github.com/G-Research/ktbench/internal/ktbench/hosts"
	"github.com/G-Research/ktbench/internal/ktbench/local"
	"github.com/G-Research/ktbench/internal/ktbench/logs"
	"github.com/G-Research/ktbench/internal/ktbench/metrics"
	"github.com/G-Research/ktbench/internal/ktbench/paths"
	"github.com/G-Research/ktbench/internal/ktbench/remote"
)

// Progress of a remote run is reported this many times.
const observeTicks = 20

// Bench runs sweeps on the hosts of the inventory. Binaries are built on every host by Update;
// keys and the committee are generated locally and uploaded.
type Bench struct {
	settings  *configuration.Settings
	inventory *hosts.Inventory
	executor  remote.Executor
	shell     local.Shell
	parser    logs.Parser
	options   Options
	results   *recorder
	sleep     sleepFunc
}

func NewBench(
	settings *configuration.Settings,
	inventory *hosts.Inventory,
	executor remote.Executor,
	shell local.Shell,
	parser logs.Parser,
	options Options,
) *Bench {
	options = options.withDefaults()
	return &Bench{
		settings:  settings,
		inventory: inventory,
		executor:  executor,
		shell:     shell,
		parser:    parser,
		options:   options,
		results:   &recorder{options: options, mode: "remote"},
		sleep:     sleep,
	}
}

// Install installs the toolchain and clones the repository on every host of the inventory.
func (b *Bench) Install(ctx context.Context) error {
	b.options.Logger.Info("Installing rust and cloning the repo...")
	all, err := b.inventory.All()
	if err == nil {
		_, err = remote.RunGroup(ctx, b.executor, all, commands.Install(b.settings.Repo))
	}
	if err != nil {
		return errors.WithStack(bencherrors.NewBenchError("Failed to install repo on testbed", err))
	}
	b.options.Logger.Infof("Initialized testbed of %d nodes", len(all))
	return nil
}

// Kill stops the benchmark processes on the given hosts, or on every host of the inventory if none is given.
func (b *Bench) Kill(ctx context.Context, hosts []string, deleteLogs bool) error {
	var err error
	if len(hosts) == 0 {
		hosts, err = b.inventory.All()
	}
	if err == nil {
		err = b.kill(ctx, hosts, deleteLogs)
	}
	if err != nil {
		return errors.WithStack(bencherrors.NewBenchError("Failed to kill nodes", err))
	}
	return nil
}

func (b *Bench) kill(ctx context.Context, hosts []string, deleteLogs bool) error {
	_, err := remote.RunGroup(ctx, b.executor, hosts, commands.KillNodes(deleteLogs))
	return err
}

// Run runs every point of the sweep.
// Steps:
//  1. Select MaxNodes+1 hosts round-robin across regions. If there aren't enough, warn and stop.
//  2. Update the repository and rebuild on every selected host.
//  3. For each node count: generate keys and committee, and upload them.
//  4. For each rate and run: launch, observe, drain, download the logs, parse them and record the results.
//
// Failures in steps 2 and 3 abort the sweep. A failure in step 4 only fails the point. Either way, the hosts
// involved are killed, ignoring errors.
func (b *Bench) Run(ctx context.Context, params *configuration.BenchParameters) error {
	logger := b.options.Logger
	logging.Heading(logger, "Starting remote benchmark")

	selected, err := hosts.NewSelector(b.inventory).Select(params.MaxNodes())
	if err != nil {
		return errors.WithStack(bencherrors.NewBenchError("Failed to run benchmark", err))
	}
	if selected == nil {
		logger.Warn("There are not enough instances available")
		return nil
	}
	b.options.Metrics.SetHosts(len(selected))

	err = phase(b.options.Metrics, metrics.PhaseUpdate, func() error {
		return b.update(ctx, selected, params.WitnessOnly)
	})
	if err != nil {
		_ = b.kill(ctx, selected, false)
		return errors.WithStack(bencherrors.NewBenchError("Failed to update nodes", err))
	}

	var result *multierror.Error
	var c *committee.Committee
	for _, point := range params.Points() {
		if ctx.Err() != nil {
			return multierror.Append(result, errors.WithStack(ctx.Err())).ErrorOrNil()
		}
		if c == nil || c.Size() != point.Nodes {
			logging.Heading(logger, fmt.Sprintf("Benchmarking %d nodes", point.Nodes))
			err := phase(b.options.Metrics, metrics.PhaseConfigure, func() error {
				var err error
				c, err = b.configure(ctx, selected, params, point.Nodes)
				return err
			})
			if err != nil {
				_ = b.kill(ctx, selected, false)
				return multierror.Append(result, bencherrors.NewBenchError("Failed to configure nodes", err)).ErrorOrNil()
			}
		}
		logger.Infof("Running %s", point)
		if err := b.runPoint(ctx, c, params, point); err != nil {
			ips, _ := c.Ips()
			_ = b.kill(ctx, ips, false)
			result = multierror.Append(result, b.results.fail(point, bencherrors.NewBenchError("Benchmark failed", err)))
		}
	}
	return result.ErrorOrNil()
}

func (b *Bench) update(ctx context.Context, selected []string, witnessOnly bool) error {
	unique := slices.Unique(selected)
	b.options.Logger.Infof("Updating %d machines (branch %q)...", len(unique), b.settings.Repo.Branch)
	_, err := remote.RunGroup(ctx, b.executor, unique, commands.Update(b.settings.Repo, witnessOnly))
	return err
}

// configure builds a committee of every selected host, trims it to nodes witnesses, and uploads the files each
// host needs: the committee file to all of them, key i to the host of witness i and the identity provider key
// to the last selected host. Faulty witnesses get nothing.
func (b *Bench) configure(
	ctx context.Context,
	selected []string,
	params *configuration.BenchParameters,
	nodes int,
) (*committee.Committee, error) {
	b.options.Logger.Info("Generating configuration files...")
	if _, err := b.shell.Run(b.options.WorkDir, commands.Cleanup()); err != nil {
		b.options.Logger.WithError(err).Debug("Cleanup did not complete")
	}
	if err := buildBinaries(b.shell, b.options, params.WitnessOnly); err != nil {
		return nil, err
	}

	witnessHosts, idpHost := selected[:len(selected)-1], selected[len(selected)-1]
	idp, names, err := generateKeys(b.shell, b.options, len(witnessHosts))
	if err != nil {
		return nil, err
	}
	members := make([]committee.Member, len(names))
	for i, name := range names {
		members[i] = committee.Member{Name: name, Host: witnessHosts[i]}
	}
	c, err := committee.New(idp, idpHost, members, b.settings.BasePort)
	if err != nil {
		return nil, err
	}
	if err := c.RemoveNodes(c.Size() - nodes); err != nil {
		return nil, err
	}
	if err := c.Print(b.options.path(paths.CommitteeFile)); err != nil {
		return nil, err
	}

	addresses, err := c.Addresses(params.Faults)
	if err != nil {
		return nil, err
	}
	var targets []string
	uploads := make(map[string][]string)
	add := func(host, file string) {
		if _, ok := uploads[host]; !ok {
			targets = append(targets, host)
			uploads[host] = []string{paths.CommitteeFile}
		}
		uploads[host] = append(uploads[host], file)
	}
	for i, address := range addresses {
		add(committee.Host(address), paths.KeyFile(i))
	}
	add(idpHost, paths.IdpKeyFile)

	b.options.Logger.Infof("Uploading configuration files to %d machines...", len(targets))
	for _, host := range targets {
		if _, err := b.executor.Run(ctx, host, commands.Cleanup()+" || true"); err != nil {
			return nil, err
		}
		for _, file := range uploads[host] {
			if err := b.executor.Put(ctx, host, b.options.path(file), file); err != nil {
				return nil, err
			}
		}
	}
	return c, nil
}

func (b *Bench) runPoint(ctx context.Context, c *committee.Committee, params *configuration.BenchParameters, point configuration.SweepPoint) error {
	m := b.options.Metrics
	ips, err := c.Ips()
	if err != nil {
		return err
	}
	plan, err := launchPlan(c, params, point.Rate, b.options.Debug)
	if err != nil {
		return err
	}

	_ = phase(m, metrics.PhaseReset, func() error {
		if err := b.kill(ctx, ips, true); err != nil {
			b.options.Logger.WithError(err).Debug("Reset did not complete")
		}
		return nil
	})

	err = phase(m, metrics.PhaseLaunch, func() error {
		for _, p := range plan {
			output, err := b.executor.Run(ctx, p.host, commands.RemoteBackground(p.command, p.logFile))
			if err != nil {
				return err
			}
			if err := remote.Check(output); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return errors.WithMessage(err, "failed to launch nodes")
	}

	err = phase(m, metrics.PhaseObserve, func() error {
		return b.observe(ctx, params.Duration)
	})
	if err != nil {
		return err
	}

	err = phase(m, metrics.PhaseDrain, func() error {
		return b.kill(ctx, ips, false)
	})
	if err != nil {
		return err
	}

	return phase(m, metrics.PhaseCollect, func() error {
		return b.collect(ctx, plan, point)
	})
}

func (b *Bench) observe(ctx context.Context, duration time.Duration) error {
	b.options.Logger.Infof("Running benchmark (%d sec)...", int(duration.Seconds()))
	tick := time.Duration(math.Ceil(duration.Seconds()/observeTicks)) * time.Second
	for i := 1; i <= observeTicks; i++ {
		if err := b.sleep(ctx, tick); err != nil {
			return err
		}
		b.options.Logger.Debugf("%d/%d", i, observeTicks)
	}
	return nil
}

func (b *Bench) collect(ctx context.Context, plan []process, point configuration.SweepPoint) error {
	b.options.Logger.Info("Downloading logs...")
	if _, err := b.shell.Run(b.options.WorkDir, commands.CleanLogs()); err != nil {
		b.options.Logger.WithError(err).Debug("Failed to clean logs")
	}
	for _, p := range plan {
		if err := b.executor.Get(ctx, p.host, p.logFile, b.options.path(p.logFile)); err != nil {
			return err
		}
	}
	b.options.Logger.Info("Parsing logs and computing performance...")
	result, err := b.parser.Parse(b.options.path(paths.LogsDir), point.Faults)
	if err != nil {
		return err
	}
	return b.results.record(ctx, point, result)
}
