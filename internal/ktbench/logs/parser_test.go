package logs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/G-Research/ktbench/internal/common/bencherrors"
)

func writeLogs(t *testing.T, names ...string) string {
	dir := t.TempDir()
	for _, name := range names {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("0123456789"), 0o644))
	}
	return dir
}

func TestInventoryParser(t *testing.T) {
	dir := writeLogs(t, "client-0-0.log", "idp.log", "shard-1-0.log", "shard-0-0.log", "notes.txt")

	result, err := InventoryParser{}.Parse(dir, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Faults)
	assert.Equal(t, []string{"client-0-0.log"}, result.ClientLogs)
	assert.Equal(t, []string{"idp.log"}, result.IdpLogs)
	assert.Equal(t, []string{"shard-0-0.log", "shard-1-0.log"}, result.ShardLogs)
	assert.Equal(t, int64(40), result.Bytes)
	assert.Contains(t, result.Summary, " Shard log(s): 2\n")
}

func TestInventoryParser_MissingLogs(t *testing.T) {
	tests := map[string][]string{
		"no client log": {"idp.log", "shard-0-0.log"},
		"no shard log":  {"client-0-0.log", "idp.log"},
	}
	for name, files := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := InventoryParser{}.Parse(writeLogs(t, files...), 0)
			var parseErr *bencherrors.ErrParse
			require.True(t, errors.As(err, &parseErr))
			assert.Equal(t, name, parseErr.Message)
		})
	}
}

func TestResult_PrintAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results", "bench-0-2-1-true-10.txt")

	require.NoError(t, (&Result{Summary: "run 1\n"}).Print(path))
	require.NoError(t, (&Result{Summary: "run 2\n"}).Print(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "run 1\nrun 2\n", string(data))
}
