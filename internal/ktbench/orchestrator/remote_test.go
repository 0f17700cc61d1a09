package orchestrator

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/G-Research/ktbench/internal/common/bencherrors"
	"github.com/G-Research/ktbench/internal/common/logging"
	"github.com/G-Research/ktbench/internal/ktbench/commands"
	"github.com/G-Research/ktbench/internal/ktbench/committee"
	"github.com/G-Research/ktbench/internal/ktbench/configuration"
	"github.com/G-Research/ktbench/internal/ktbench/hosts"
	"github.com/G-Research/ktbench/internal/ktbench/logs"
	"github.com/G-Research/ktbench/internal/ktbench/paths"
	"github.com/G-Research/ktbench/internal/ktbench/remote"
)

var testSettings = &configuration.Settings{
	Testbed:  "ktbench",
	Key:      configuration.KeySettings{Name: "aws", Path: "/home/bench/.ssh/aws"},
	BasePort: 5000,
	Repo: configuration.RepoSettings{
		Name:   "kt",
		URL:    "https://github.com/example/kt.git",
		Branch: "main",
	},
	Instances: configuration.InstanceSettings{Type: "m5d.8xlarge", Regions: []string{"a", "b", "c"}},
}

// Hosts a1, a2, b1, b2, c1, c2. Selection order is a1, b1, c1, a2, b2, c2.
func testInventory(t *testing.T) *hosts.Inventory {
	inventory, err := hosts.NewInventory([]string{"a", "b", "c"})
	require.NoError(t, err)
	for _, region := range []string{"a", "b", "c"} {
		for i := 0; i < 2; i++ {
			require.NoError(t, inventory.Add(&hosts.Host{Address: region + string(rune('1'+i)), Region: region, Position: i}))
		}
	}
	return inventory
}

func remoteParams(nodes []int, faults int, rates ...int) *configuration.BenchParameters {
	return &configuration.BenchParameters{
		Faults:    faults,
		Nodes:     nodes,
		Rate:      rates,
		BatchSize: 10,
		Shards:    1,
		Collocate: true,
		Duration:  20 * time.Second,
		Runs:      1,
	}
}

func newTestBench(t *testing.T, executor *fakeExecutor) (*Bench, *fakeRepository, string) {
	dir := t.TempDir()
	repo := &fakeRepository{}
	bench := NewBench(testSettings, testInventory(t), executor, &fakeShell{}, logs.InventoryParser{}, Options{
		WorkDir:    dir,
		Repository: repo,
		Logger:     logging.NullEntry(),
	})
	bench.sleep = noSleep
	return bench, repo, dir
}

func hasPrefix(commands []string, prefix string) bool {
	for _, command := range commands {
		if strings.HasPrefix(command, prefix) {
			return true
		}
	}
	return false
}

func TestBench_Run(t *testing.T) {
	executor := newFakeExecutor()
	bench, repo, dir := newTestBench(t, executor)

	require.NoError(t, bench.Run(context.Background(), remoteParams([]int{4}, 1, 10)))

	selected := []string{"a1", "b1", "c1", "a2", "b2"}
	for _, host := range selected {
		commandsOnHost := executor.commandsOn(host)
		require.NotEmpty(t, commandsOnHost, host)
		assert.Equal(t, commands.Update(testSettings.Repo, false), commandsOnHost[0], host)
	}
	assert.Empty(t, executor.commandsOn("c2"))

	c, err := committee.Load(filepath.Join(dir, paths.CommitteeFile))
	require.NoError(t, err)
	assert.Equal(t, 4, c.Size())
	assert.Equal(t, "b2:5000", c.IdpAddress())
	witnesses := c.Witnesses()
	assert.Equal(t, "a1:5001", witnesses[0].Address)
	assert.Equal(t, "a2:5004", witnesses[3].Address)

	assert.Equal(t, []string{paths.CommitteeFile, paths.KeyFile(0)}, executor.puts["a1"])
	assert.Equal(t, []string{paths.CommitteeFile, paths.KeyFile(1)}, executor.puts["b1"])
	assert.Equal(t, []string{paths.CommitteeFile, paths.KeyFile(2)}, executor.puts["c1"])
	assert.Equal(t, []string{paths.CommitteeFile, paths.IdpKeyFile}, executor.puts["b2"])
	// The faulty witness is never configured nor started.
	assert.Empty(t, executor.puts["a2"])
	assert.False(t, hasPrefix(executor.commandsOn("a2"), "tmux new"))

	logFiles, err := listDir(filepath.Join(dir, paths.LogsDir))
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"client-0-0.log", "idp.log", "shard-0-0.log", "shard-1-0.log", "shard-2-0.log"}, logFiles)

	require.Len(t, repo.records, 1)
	assert.Equal(t, "remote", repo.records[0].Mode)
	assert.Equal(t, 3, repo.records[0].ShardLogs)
	assert.FileExists(t, filepath.Join(dir, paths.ResultFile(1, 4, 1, true, 10)))
}

func TestBench_Run_ReconfiguresPerNodeCount(t *testing.T) {
	executor := newFakeExecutor()
	bench, repo, dir := newTestBench(t, executor)

	require.NoError(t, bench.Run(context.Background(), remoteParams([]int{4, 2}, 0, 10, 20)))

	require.Len(t, repo.records, 4)
	c, err := committee.Load(filepath.Join(dir, paths.CommitteeFile))
	require.NoError(t, err)
	assert.Equal(t, 2, c.Size())
	// Identity provider stays on the last selected host.
	assert.Equal(t, "b2:5000", c.IdpAddress())
	assert.FileExists(t, filepath.Join(dir, paths.ResultFile(0, 2, 1, true, 20)))
	assert.FileExists(t, filepath.Join(dir, paths.ResultFile(0, 4, 1, true, 10)))
}

func TestBench_Run_NotEnoughHosts(t *testing.T) {
	executor := newFakeExecutor()
	bench, repo, _ := newTestBench(t, executor)

	require.NoError(t, bench.Run(context.Background(), remoteParams([]int{6}, 0, 10)))

	assert.Empty(t, executor.runs)
	assert.Empty(t, repo.records)
}

func TestBench_Run_UpdateFailureAbortsTheSweep(t *testing.T) {
	executor := newFakeExecutor()
	executor.fail = func(host, command string) (*remote.Output, error) {
		if host == "c1" && strings.Contains(command, "git fetch") {
			return nil, &bencherrors.ErrExecution{Host: host, Command: command, Stderr: "fatal: not a git repository", ExitStatus: 128}
		}
		return nil, nil
	}
	bench, repo, _ := newTestBench(t, executor)

	err := bench.Run(context.Background(), remoteParams([]int{4}, 0, 10))

	var benchErr *bencherrors.BenchError
	require.True(t, errors.As(err, &benchErr))
	assert.Equal(t, "Failed to update nodes", benchErr.Message)
	var groupErr *bencherrors.ErrGroupExecution
	require.True(t, errors.As(err, &groupErr))
	assert.Equal(t, "c1", groupErr.Host)
	assert.Empty(t, executor.puts)
	assert.Empty(t, repo.records)
}

func TestBench_Run_FailedPointDoesNotStopTheSweep(t *testing.T) {
	executor := newFakeExecutor()
	executor.fail = func(host, command string) (*remote.Output, error) {
		if strings.HasPrefix(command, "tmux new") && strings.Contains(command, "--rate 10 ") {
			return &remote.Output{Host: host, Command: command, Stderr: "duplicate session: client-0-0"}, nil
		}
		return nil, nil
	}
	bench, repo, dir := newTestBench(t, executor)

	err := bench.Run(context.Background(), remoteParams([]int{2}, 0, 10, 20))

	var merr *multierror.Error
	require.True(t, errors.As(err, &merr))
	assert.Len(t, merr.Errors, 1)
	var benchErr *bencherrors.BenchError
	require.True(t, errors.As(err, &benchErr))
	assert.Equal(t, "Benchmark failed", benchErr.Message)

	require.Len(t, repo.records, 1)
	assert.Equal(t, 20, repo.records[0].Point.Rate)
	assert.NoFileExists(t, filepath.Join(dir, paths.ResultFile(0, 2, 1, true, 10)))
	// Killed once after the failure, and once to drain the next point.
	killed := 0
	for _, command := range executor.commandsOn("a1") {
		if command == commands.KillNodes(false) {
			killed++
		}
	}
	assert.Equal(t, 2, killed)
}

func TestBench_Run_ConfigureFailureAbortsTheSweep(t *testing.T) {
	executor := newFakeExecutor()
	executor.fail = func(host, command string) (*remote.Output, error) {
		if host == "c1" && command == commands.Cleanup()+" || true" {
			return nil, &bencherrors.ErrExecution{Host: host, Command: command, Stderr: "Permission denied", ExitStatus: 1}
		}
		return nil, nil
	}
	bench, repo, _ := newTestBench(t, executor)

	err := bench.Run(context.Background(), remoteParams([]int{4}, 0, 10, 20))

	var benchErr *bencherrors.BenchError
	require.True(t, errors.As(err, &benchErr))
	assert.Equal(t, "Failed to configure nodes", benchErr.Message)
	var execErr *bencherrors.ErrExecution
	require.True(t, errors.As(err, &execErr))
	assert.Equal(t, "c1", execErr.Host)

	for _, host := range []string{"a1", "b1", "c1", "a2", "b2"} {
		commandsOnHost := executor.commandsOn(host)
		assert.Equal(t, commands.KillNodes(false), commandsOnHost[len(commandsOnHost)-1], host)
		assert.False(t, hasPrefix(commandsOnHost, "tmux new"), host)
	}
	assert.Empty(t, executor.commandsOn("c2"))
	// Uploads stop at the failing host.
	assert.NotEmpty(t, executor.puts["b1"])
	assert.Empty(t, executor.puts["c1"])
	assert.Empty(t, repo.records)
}

func TestBench_Run_ResetFailureDoesNotFailThePoint(t *testing.T) {
	executor := newFakeExecutor()
	executor.fail = func(host, command string) (*remote.Output, error) {
		if host == "b1" && command == commands.KillNodes(true) {
			return nil, &bencherrors.ErrExecution{Host: host, Command: command, Stderr: "no server running", ExitStatus: 1}
		}
		return nil, nil
	}
	bench, repo, dir := newTestBench(t, executor)

	require.NoError(t, bench.Run(context.Background(), remoteParams([]int{2}, 0, 10)))

	assert.True(t, hasPrefix(executor.commandsOn("b1"), "tmux new"))
	require.Len(t, repo.records, 1)
	assert.Equal(t, 10, repo.records[0].Point.Rate)
	assert.FileExists(t, filepath.Join(dir, paths.ResultFile(0, 2, 1, true, 10)))
}

func TestBench_Kill(t *testing.T) {
	executor := newFakeExecutor()
	bench, _, _ := newTestBench(t, executor)

	require.NoError(t, bench.Kill(context.Background(), nil, true))
	for _, host := range []string{"a1", "a2", "b1", "b2", "c1", "c2"} {
		assert.Equal(t, []string{commands.KillNodes(true)}, executor.commandsOn(host), host)
	}

	require.NoError(t, bench.Kill(context.Background(), []string{"a1"}, false))
	assert.Equal(t, commands.KillNodes(false), executor.commandsOn("a1")[1])
	assert.Len(t, executor.commandsOn("a2"), 1)
}

func TestBench_Install(t *testing.T) {
	executor := newFakeExecutor()
	bench, _, _ := newTestBench(t, executor)

	require.NoError(t, bench.Install(context.Background()))
	for _, host := range []string{"a1", "a2", "b1", "b2", "c1", "c2"} {
		assert.Equal(t, []string{commands.Install(testSettings.Repo)}, executor.commandsOn(host), host)
	}

	executor.fail = func(host, command string) (*remote.Output, error) {
		return nil, &bencherrors.ErrExecution{Host: host, Command: command, ExitStatus: 100}
	}
	err := bench.Install(context.Background())
	var benchErr *bencherrors.BenchError
	require.True(t, errors.As(err, &benchErr))
	assert.Equal(t, "Failed to install repo on testbed", benchErr.Message)
}
