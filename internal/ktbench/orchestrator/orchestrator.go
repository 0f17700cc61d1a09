// Package orchestrator runs benchmark sweeps, either on the local machine (LocalBench) or on remote hosts (Bench).
//
// Every run of a sweep goes through the same phases, in order: reset, configure, launch, observe, drain and
// collect. Processes are started detached in tmux sessions, client first, then the identity provider, then the
// witnesses. Nothing checks that a process is ready or still alive: a process that crashed simply leaves a short
// log behind, which the log parser finds out about.
//
// A failed run is killed, reported, and the sweep moves on to the next run. Sweeps return the failed runs as a
// multierror.
package orchestrator

import (
	"context"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/G-Research/ktbench/internal/common/logging"
	"github.com/G-Research/ktbench/internal/ktbench/commands"
	"github.com/G-Research/ktbench/internal/ktbench/committee"
	"github.com/G-Research/ktbench/internal/ktbench/configuration"
	"github.com/G-Research/ktbench/internal/ktbench/local"
	"github.com/G-Research/ktbench/internal/ktbench/logs"
	"github.com/G-Research/ktbench/internal/ktbench/metrics"
	"github.com/G-Research/ktbench/internal/ktbench/paths"
	"github.com/G-Research/ktbench/internal/ktbench/repository"
)

// ResultRepository stores the outcome of every collected run.
type ResultRepository interface {
	Record(ctx context.Context, r *repository.Record) error
}

// Options common to local and remote benchmarks.
type Options struct {
	// Directory holding the configuration files, logs and results. Defaults to the current directory.
	WorkDir string
	// Run every process with debug logging.
	Debug bool
	// Identifies the sweep in the results repository. Defaults to a random UUID.
	RunId string
	// Optional.
	Repository ResultRepository
	// Defaults to a fresh set of metrics.
	Metrics *metrics.Metrics
	// Defaults to the standard logger.
	Logger *log.Entry
}

func (o Options) withDefaults() Options {
	if o.WorkDir == "" {
		o.WorkDir = "."
	}
	if o.RunId == "" {
		o.RunId = uuid.New().String()
	}
	if o.Metrics == nil {
		o.Metrics = metrics.New()
	}
	if o.Logger == nil {
		o.Logger = log.NewEntry(log.StandardLogger())
	}
	o.Logger = o.Logger.WithField("run", o.RunId)
	return o
}

func (o Options) path(relative string) string {
	return filepath.Join(o.WorkDir, relative)
}

type sleepFunc func(ctx context.Context, d time.Duration) error

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return errors.WithStack(ctx.Err())
	}
}

// phase runs f and records how long it took.
func phase(m *metrics.Metrics, name string, f func() error) error {
	start := time.Now()
	err := f()
	m.RecordPhase(name, time.Since(start))
	return err
}

// recorder persists the result of a run: summary appended to the result file of the point,
// a row in the results repository, and the outcome metric.
type recorder struct {
	options Options
	mode    string
}

func (r *recorder) record(ctx context.Context, point configuration.SweepPoint, result *logs.Result) error {
	resultFile := paths.ResultFile(point.Faults, point.Nodes, point.Shards, point.Collocate, point.Rate)
	if err := result.Print(r.options.path(resultFile)); err != nil {
		return err
	}
	if r.options.Repository != nil {
		err := r.options.Repository.Record(ctx, &repository.Record{
			RunId:      r.options.RunId,
			Mode:       r.mode,
			Point:      point,
			ClientLogs: len(result.ClientLogs),
			IdpLogs:    len(result.IdpLogs),
			ShardLogs:  len(result.ShardLogs),
			LogBytes:   result.Bytes,
			ResultFile: resultFile,
			Timestamp:  time.Now(),
		})
		if err != nil {
			return err
		}
	}
	r.options.Metrics.RecordPoint(metrics.OutcomeSucceeded)
	r.options.Logger.Infof("Results appended to %s", resultFile)
	return nil
}

// fail reports a failed run. The error is returned for aggregation.
func (r *recorder) fail(point configuration.SweepPoint, err error) error {
	r.options.Metrics.RecordPoint(metrics.OutcomeFailed)
	logging.WithStacktrace(r.options.Logger, err).Errorf("Benchmark failed (%s)", point)
	return errors.WithMessage(err, point.String())
}

// buildBinaries compiles the node crate and links the binaries into the working directory.
func buildBinaries(shell local.Shell, options Options, witnessOnly bool) error {
	if _, err := shell.Run(options.path(paths.NodeCrateDir), commands.Compile(witnessOnly)); err != nil {
		return err
	}
	// rm fails on the first run, when there is nothing to remove yet.
	if _, err := shell.Run(options.WorkDir, commands.AliasBinaries(paths.BinaryDir, witnessOnly)); err != nil {
		options.Logger.WithError(err).Debug("Failed to alias binaries")
	}
	return nil
}

// generateKeys creates a fresh key for n witnesses and for the identity provider, and returns their names.
func generateKeys(shell local.Shell, options Options, n int) (string, []string, error) {
	keyFiles := make([]string, n)
	for i := range keyFiles {
		keyFiles[i] = paths.KeyFile(i)
	}
	for _, keyFile := range append(keyFiles, paths.IdpKeyFile) {
		if _, err := shell.Run(options.WorkDir, commands.GenerateKey(keyFile)); err != nil {
			return "", nil, err
		}
	}
	idp, err := configuration.LoadKey(options.path(paths.IdpKeyFile))
	if err != nil {
		return "", nil, err
	}
	names := make([]string, n)
	for i, keyFile := range keyFiles {
		key, err := configuration.LoadKey(options.path(keyFile))
		if err != nil {
			return "", nil, err
		}
		names[i] = key.Name
	}
	return idp.Name, names, nil
}

// process is a detached process of a run.
type process struct {
	host    string
	command string
	logFile string
}

// launchPlan returns the processes of a run in start order: client, identity provider, non-faulty witnesses.
// The client and the identity provider run on the identity provider's host.
func launchPlan(c *committee.Committee, params *configuration.BenchParameters, rate int, debug bool) ([]process, error) {
	addresses, err := c.Addresses(params.Faults)
	if err != nil {
		return nil, err
	}
	idpHost := committee.Host(c.IdpAddress())
	plan := []process{{
		host: idpHost,
		command: commands.RunClient(commands.Client{
			WitnessOnly:  params.WitnessOnly,
			Committee:    paths.CommitteeFile,
			Rate:         rate,
			Faults:       params.Faults,
			Idp:          paths.IdpKeyFile,
			ProofEntries: params.BatchSize,
			Debug:        debug,
		}),
		logFile: paths.ClientLogFile(0, 0),
	}}
	if !params.WitnessOnly {
		plan = append(plan, process{
			host: idpHost,
			command: commands.RunIdp(
				paths.IdpKeyFile,
				paths.CommitteeFile,
				paths.IdpSecureDb,
				paths.SyncDb,
				paths.VkdDb,
				params.BatchSize,
				debug,
			),
			logFile: paths.IdpLogFile(),
		})
	}
	for i, address := range addresses {
		plan = append(plan, process{
			host:    committee.Host(address),
			command: commands.RunWitness(paths.KeyFile(i), paths.CommitteeFile, paths.SecureDb(i, 0), paths.AuditDb(i, 0), debug),
			logFile: paths.ShardLogFile(i, 0),
		})
	}
	return plan, nil
}
