// Package commands builds the shell commands run on the benchmark hosts.
// Every command is a single string for a POSIX shell; the remote ones rely on bash.
package commands

import (
	"fmt"
	"path"
	"strings"

	"github.com/kballard/go-shellquote"

	"github.com/G-Research/ktbench/internal/ktbench/configuration"
	"github.com/G-Research/ktbench/internal/ktbench/paths"
)

// Cleanup deletes the stores and configuration files of a previous run.
func Cleanup() string {
	return fmt.Sprintf("rm -r .*-db* ; rm .*.json ; mkdir -p %s", paths.ResultsDir)
}

// CleanLogs empties the logs directory.
func CleanLogs() string {
	return fmt.Sprintf("rm -r %s ; mkdir -p %s", paths.LogsDir, paths.LogsDir)
}

// Compile builds the node and client binaries. It runs in the node crate.
func Compile(witnessOnly bool) string {
	feature := "benchmark"
	if witnessOnly {
		feature = "witness-only-benchmark"
	}
	return "cargo build --quiet --release --features " + feature
}

func GenerateKey(keyFile string) string {
	return "./witness generate --filename " + keyFile
}

func verbosity(debug bool) string {
	if debug {
		return "-vvv"
	}
	return "-vv"
}

func RunWitness(keypair, committee, secureStorage, auditStorage string, debug bool) string {
	return fmt.Sprintf(
		"./witness %s run --keypair %s --committee %s --secure_storage %s --audit_storage %s",
		verbosity(debug), keypair, committee, secureStorage, auditStorage,
	)
}

func RunIdp(keypair, committee, secureStorage, syncStorage, vkdStorage string, batchSize int, debug bool) string {
	return fmt.Sprintf(
		"./idp %s --keypair %s --committee %s --secure_storage %s --sync_storage %s --vkd_storage %s --batch_size %d",
		verbosity(debug), keypair, committee, secureStorage, syncStorage, vkdStorage, batchSize,
	)
}

// Client configures the load generator.
type Client struct {
	// Without an identity provider, the client plays its role towards the witnesses.
	WitnessOnly bool
	Committee   string
	Rate        int
	Faults      int
	// Key of the identity provider, only used by the witness-only client.
	Idp string
	// Number of entries per proof, only used by the witness-only client.
	ProofEntries int
	Debug        bool
}

func RunClient(c Client) string {
	if c.WitnessOnly {
		return fmt.Sprintf(
			"./witness_client %s --idp %s --rate %d --faults %d --committee %s --proof_entries %d",
			verbosity(c.Debug), c.Idp, c.Rate, c.Faults, c.Committee, c.ProofEntries,
		)
	}
	return fmt.Sprintf("./idp_client %s --rate %d --committee %s --faults %d", verbosity(c.Debug), c.Rate, c.Committee, c.Faults)
}

// Kill stops every process started by the benchmark and deletes its stores.
func Kill() string {
	return "rm -r .*-db* ; tmux kill-server"
}

// KillNodes is Kill for remote hosts: it never fails, and first empties the logs directory if deleteLogs is set.
func KillNodes(deleteLogs bool) string {
	first := "true"
	if deleteLogs {
		first = CleanLogs()
	}
	return fmt.Sprintf("%s && (%s || true)", first, Kill())
}

// AliasBinaries links the binaries found in origin into the current directory.
func AliasBinaries(origin string, witnessOnly bool) string {
	binaries := []string{"witness", "idp_client", "idp"}
	if witnessOnly {
		binaries = []string{"witness", "witness_client"}
	}
	var rm, ln []string
	for _, binary := range binaries {
		rm = append(rm, "rm "+binary)
		ln = append(ln, fmt.Sprintf("ln -s %s .", path.Join(origin, binary)))
	}
	return strings.Join(rm, " ; ") + " ; " + strings.Join(ln, " ; ")
}

// Install prepares a fresh host: build toolchain, rust, and a clone of the repository.
func Install(repo configuration.RepoSettings) string {
	return strings.Join([]string{
		"sudo apt-get update",
		"sudo apt-get -y upgrade",
		"sudo apt-get -y autoremove",
		// Without these, cargo fails with "linker `cc` not found".
		"sudo apt-get -y install build-essential",
		"sudo apt-get -y install cmake",
		"sudo apt-get -y install pkg-config libssl-dev",
		`curl --proto "=https" --tlsv1.2 -sSf https://sh.rustup.rs | sh -s -- -y`,
		"source $HOME/.cargo/env",
		"rustup default stable",
		// Needed to build rocksdb.
		"sudo apt-get install -y clang",
		fmt.Sprintf("(git clone %s || (cd %s ; git pull))", repo.URL, repo.Name),
	}, " && ")
}

// Update checks out the latest commit of the branch, rebuilds, and links the binaries into the home directory.
func Update(repo configuration.RepoSettings, witnessOnly bool) string {
	return strings.Join([]string{
		fmt.Sprintf("(cd %s && git fetch -f)", repo.Name),
		fmt.Sprintf("(cd %s && git checkout -f %s)", repo.Name, repo.Branch),
		fmt.Sprintf("(cd %s && git pull -f)", repo.Name),
		"source $HOME/.cargo/env",
		fmt.Sprintf("(cd %s && %s)", repo.Name, Compile(witnessOnly)),
		AliasBinaries(fmt.Sprintf("./%s/target/release/", repo.Name), witnessOnly),
	}, " && ")
}

// LocalBackground runs command in a detached tmux session, with stderr redirected to logFile.
func LocalBackground(command, logFile string) string {
	return shellquote.Join("tmux", "new", "-d", "-s", paths.SessionName(logFile), fmt.Sprintf("%s 2> %s", command, logFile))
}

// RemoteBackground runs command in a detached tmux session, with stdout and stderr copied to logFile.
func RemoteBackground(command, logFile string) string {
	return shellquote.Join("tmux", "new", "-d", "-s", paths.SessionName(logFile), fmt.Sprintf("%s |& tee %s", command, logFile))
}

// InDir runs command in dir. Nothing runs if dir cannot be entered.
func InDir(dir, command string) string {
	return fmt.Sprintf("cd %s && ( %s )", shellquote.Join(dir), command)
}
