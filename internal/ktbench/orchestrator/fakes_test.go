package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/kballard/go-shellquote"
	"github.com/pkg/errors"

	"github.com/G-Research/ktbench/internal/ktbench/commands"
	"github.com/G-Research/ktbench/internal/ktbench/configuration"
	"github.com/G-Research/ktbench/internal/ktbench/paths"
	"github.com/G-Research/ktbench/internal/ktbench/remote"
	"github.com/G-Research/ktbench/internal/ktbench/repository"
)

func noSleep(ctx context.Context, d time.Duration) error {
	return ctx.Err()
}

type shellCall struct {
	dir     string
	command string
}

// fakeShell emulates the commands the orchestrator runs locally: the key generator writes key files,
// tmux sessions write their log file, and cleaning the logs empties the logs directory.
type fakeShell struct {
	mu       sync.Mutex
	calls    []shellCall
	keys     int
	failures map[string]error
}

func (s *fakeShell) Run(dir, command string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, shellCall{dir: dir, command: command})
	for substring, err := range s.failures {
		if strings.Contains(command, substring) {
			return "", err
		}
	}
	switch {
	case strings.HasPrefix(command, commands.GenerateKey("")):
		s.keys++
		data, err := json.Marshal(configuration.Key{Name: fmt.Sprintf("node-%d", s.keys), Secret: "c2VjcmV0"})
		if err != nil {
			return "", err
		}
		return "", os.WriteFile(filepath.Join(dir, strings.TrimPrefix(command, commands.GenerateKey(""))), data, 0o644)
	case strings.HasPrefix(command, "tmux new"):
		args, err := shellquote.Split(command)
		if err != nil {
			return "", err
		}
		session := args[len(args)-1]
		i := strings.LastIndex(session, " 2> ")
		return "", os.WriteFile(filepath.Join(dir, session[i+len(" 2> "):]), []byte(session), 0o644)
	case strings.HasPrefix(command, commands.CleanLogs()):
		if err := os.RemoveAll(filepath.Join(dir, paths.LogsDir)); err != nil {
			return "", err
		}
		return "", os.MkdirAll(filepath.Join(dir, paths.LogsDir), 0o755)
	}
	return "", nil
}

func (s *fakeShell) commands() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	rv := make([]string, len(s.calls))
	for i, call := range s.calls {
		rv[i] = call.command
	}
	return rv
}

func (s *fakeShell) dirOf(command string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, call := range s.calls {
		if call.command == command {
			return call.dir, true
		}
	}
	return "", false
}

// fakeExecutor keeps an in-memory file system per host. Detached sessions create their log file,
// and killing with deleteLogs removes them.
type fakeExecutor struct {
	mu    sync.Mutex
	runs  map[string][]string
	puts  map[string][]string
	files map[string]map[string][]byte
	// Optional. Returning a non-nil output or error overrides the default behaviour.
	fail func(host, command string) (*remote.Output, error)
}

func newFakeExecutor() *fakeExecutor {
	return &fakeExecutor{
		runs:  make(map[string][]string),
		puts:  make(map[string][]string),
		files: make(map[string]map[string][]byte),
	}
}

func (e *fakeExecutor) Run(ctx context.Context, host, command string) (*remote.Output, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.runs[host] = append(e.runs[host], command)
	if e.fail != nil {
		if output, err := e.fail(host, command); output != nil || err != nil {
			return output, err
		}
	}
	if e.files[host] == nil {
		e.files[host] = make(map[string][]byte)
	}
	switch {
	case strings.HasPrefix(command, "tmux new"):
		args, err := shellquote.Split(command)
		if err != nil {
			return nil, err
		}
		session := args[len(args)-1]
		i := strings.LastIndex(session, " |& tee ")
		e.files[host][session[i+len(" |& tee "):]] = []byte(session)
	case command == commands.KillNodes(true):
		for file := range e.files[host] {
			if strings.HasPrefix(file, paths.LogsDir+"/") {
				delete(e.files[host], file)
			}
		}
	}
	return &remote.Output{Host: host, Command: command}, nil
}

func (e *fakeExecutor) Put(ctx context.Context, host, localPath, remotePath string) error {
	data, err := os.ReadFile(localPath)
	if err != nil {
		return errors.WithStack(err)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.files[host] == nil {
		e.files[host] = make(map[string][]byte)
	}
	e.files[host][remotePath] = data
	e.puts[host] = append(e.puts[host], remotePath)
	return nil
}

func (e *fakeExecutor) Get(ctx context.Context, host, remotePath, localPath string) error {
	e.mu.Lock()
	data, ok := e.files[host][remotePath]
	e.mu.Unlock()
	if !ok {
		return errors.Errorf("%s: no such file %s", host, remotePath)
	}
	if err := os.MkdirAll(filepath.Dir(localPath), 0o755); err != nil {
		return errors.WithStack(err)
	}
	return errors.WithStack(os.WriteFile(localPath, data, 0o644))
}

func (e *fakeExecutor) Close() error {
	return nil
}

func (e *fakeExecutor) commandsOn(host string) []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.runs[host]...)
}

type fakeRepository struct {
	mu      sync.Mutex
	records []*repository.Record
}

func (r *fakeRepository) Record(ctx context.Context, record *repository.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, record)
	return nil
}

func listDir(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	rv := make([]string, len(entries))
	for i, entry := range entries {
		rv[i] = entry.Name()
	}
	return rv, nil
}
