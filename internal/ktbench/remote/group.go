package remote

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/G-Research/ktbench/internal/common/bencherrors"
)

// RunGroup runs command on every host in parallel and waits for all of them, even after a failure.
// If any host fails, the returned *bencherrors.ErrGroupExecution carries the failure of the last failing host,
// in the order of hosts. Outputs are returned in the order of hosts; the output of a failed host is nil.
func RunGroup(ctx context.Context, executor Executor, hosts []string, command string) ([]*Output, error) {
	outputs := make([]*Output, len(hosts))
	failures := make([]error, len(hosts))
	var mu sync.Mutex

	var g errgroup.Group
	for i, host := range hosts {
		i, host := i, host
		g.Go(func() error {
			output, err := executor.Run(ctx, host, command)
			mu.Lock()
			defer mu.Unlock()
			outputs[i] = output
			failures[i] = err
			return err
		})
	}
	if err := g.Wait(); err == nil {
		return outputs, nil
	}

	failed := 0
	representative := -1
	for i, err := range failures {
		if err != nil {
			failed++
			representative = i
		}
	}
	return outputs, errors.WithStack(&bencherrors.ErrGroupExecution{
		Host:   hosts[representative],
		Failed: failed,
		Total:  len(hosts),
		Err:    failures[representative],
	})
}
