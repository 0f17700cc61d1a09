// Package local runs shell commands on the machine driving the benchmark.
package local

import (
	"bytes"
	"strings"

	"github.com/magefile/mage/sh"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/G-Research/ktbench/internal/common/bencherrors"
	"github.com/G-Research/ktbench/internal/ktbench/commands"
)

// Shell runs commands with /bin/sh.
type Shell interface {
	// Run runs command in dir and returns what it wrote to stdout.
	// A non-zero exit status returns an *bencherrors.ErrExecution carrying stderr.
	Run(dir, command string) (string, error)
}

// SystemShell implements Shell with github.com/magefile/mage/sh.
type SystemShell struct {
	logger *log.Entry
}

func NewSystemShell(logger *log.Entry) *SystemShell {
	return &SystemShell{logger: logger}
}

func (s *SystemShell) Run(dir, command string) (string, error) {
	var stdout, stderr bytes.Buffer
	s.logger.Debugf("running %q in %s", command, dir)
	ran, err := sh.Exec(nil, &stdout, &stderr, "sh", "-c", commands.InDir(dir, command))
	if err == nil {
		return stdout.String(), nil
	}
	if !ran {
		return "", errors.Wrapf(err, "failed to run %q", command)
	}
	return stdout.String(), errors.WithStack(&bencherrors.ErrExecution{
		Command:    command,
		Stderr:     strings.TrimSpace(stderr.String()),
		ExitStatus: sh.ExitStatus(err),
	})
}
