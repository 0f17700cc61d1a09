// Package logs hands the logs of a run to a parser and records what it found.
// Computing performance figures from the log lines is the job of an external parser;
// InventoryParser only checks that every role left a log behind.
package logs

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"

	"github.com/G-Research/ktbench/internal/common/bencherrors"
)

// Parser interprets the logs collected in dir after a run.
// A parser that can't make sense of the logs returns an *bencherrors.ErrParse.
type Parser interface {
	Parse(dir string, faults int) (*Result, error)
}

// Result is what a parser found in the logs of one run.
type Result struct {
	Faults int
	// Log files per role, relative to the logs directory.
	ClientLogs []string
	IdpLogs    []string
	ShardLogs  []string
	// Total size of the logs in bytes.
	Bytes int64
	// Human-readable report, appended to the result file of the sweep point.
	Summary string
}

// Print appends the summary to path, creating the file and its directory if needed.
func (r *Result) Print(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.WithStack(err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return errors.WithStack(err)
	}
	defer f.Close()
	_, err = f.WriteString(r.Summary)
	return errors.WithStack(err)
}

// InventoryParser checks that at least one client and one shard log were collected, and reports their sizes.
type InventoryParser struct{}

func (p InventoryParser) Parse(dir string, faults int) (*Result, error) {
	result := &Result{Faults: faults}
	var err error
	if result.ClientLogs, err = p.glob(dir, "client-*.log", &result.Bytes); err != nil {
		return nil, err
	}
	if result.IdpLogs, err = p.glob(dir, "idp*.log", &result.Bytes); err != nil {
		return nil, err
	}
	if result.ShardLogs, err = p.glob(dir, "shard-*.log", &result.Bytes); err != nil {
		return nil, err
	}
	if len(result.ClientLogs) == 0 {
		return nil, errors.WithStack(&bencherrors.ErrParse{Path: dir, Message: "no client log"})
	}
	if len(result.ShardLogs) == 0 {
		return nil, errors.WithStack(&bencherrors.ErrParse{Path: dir, Message: "no shard log"})
	}
	result.Summary = summary(result)
	return result, nil
}

func (p InventoryParser) glob(dir, pattern string, bytes *int64) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, pattern))
	if err != nil {
		return nil, errors.WithStack(err)
	}
	sort.Strings(matches)
	rv := make([]string, len(matches))
	for i, match := range matches {
		info, err := os.Stat(match)
		if err != nil {
			return nil, errors.WithStack(&bencherrors.ErrParse{Path: match, Message: err.Error()})
		}
		*bytes += info.Size()
		rv[i] = filepath.Base(match)
	}
	return rv, nil
}

func summary(r *Result) string {
	const rule = "-----------------------------------------\n"
	var b strings.Builder
	b.WriteString("\n" + rule)
	b.WriteString(" SUMMARY:\n")
	b.WriteString(rule)
	b.WriteString(" + CONFIG:\n")
	fmt.Fprintf(&b, " Faults: %d node(s)\n", r.Faults)
	fmt.Fprintf(&b, " Client log(s): %d\n", len(r.ClientLogs))
	fmt.Fprintf(&b, " IdP log(s): %d\n", len(r.IdpLogs))
	fmt.Fprintf(&b, " Shard log(s): %d\n", len(r.ShardLogs))
	fmt.Fprintf(&b, " Log size: %d B\n", r.Bytes)
	b.WriteString(rule)
	return b.String()
}
