// Package paths names every file and directory the benchmark reads or writes.
// Paths are relative to the working directory of the benchmark locally, and to the home directory on remote hosts.
package paths

import (
	"fmt"
	"path"
	"strconv"
	"strings"
)

const (
	CommitteeFile = ".committee.json"
	IdpKeyFile    = ".idp.json"
	IdpSecureDb   = ".idp-secure-db"
	SyncDb        = ".sync-db"
	VkdDb         = ".vkd-db"
	LogsDir       = "logs"
	ResultsDir    = "results"
	// Where cargo puts the binaries, relative to the benchmark directory.
	BinaryDir = "../target/release"
	// The crate to build, relative to the benchmark directory.
	NodeCrateDir = "../witness"
)

// KeyFile is the key of witness i.
func KeyFile(i int) string {
	return fmt.Sprintf(".witness-%d.json", i)
}

// SecureDb is the secure storage of shard j of witness i.
func SecureDb(i, j int) string {
	return fmt.Sprintf(".secure-db-%d-%d", i, j)
}

// AuditDb is the audit storage of shard j of witness i.
func AuditDb(i, j int) string {
	return fmt.Sprintf(".audit-db-%d-%d", i, j)
}

func ClientLogFile(i, j int) string {
	return path.Join(LogsDir, fmt.Sprintf("client-%d-%d.log", i, j))
}

func IdpLogFile() string {
	return path.Join(LogsDir, "idp.log")
}

func ShardLogFile(i, j int) string {
	return path.Join(LogsDir, fmt.Sprintf("shard-%d-%d.log", i, j))
}

// ResultFile is the summary of every run of one sweep point. Runs of the same point are appended.
func ResultFile(faults, nodes, shards int, collocate bool, rate int) string {
	name := fmt.Sprintf("bench-%d-%d-%d-%s-%d.txt", faults, nodes, shards, strconv.FormatBool(collocate), rate)
	return path.Join(ResultsDir, name)
}

func ResultsDb() string {
	return path.Join(ResultsDir, "results.db")
}

func MetricsFile() string {
	return path.Join(ResultsDir, "metrics.prom")
}

// SessionName is the tmux session of the process logging to logFile: the base name without extension.
func SessionName(logFile string) string {
	base := path.Base(logFile)
	return strings.TrimSuffix(base, path.Ext(base))
}
