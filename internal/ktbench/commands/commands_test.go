package commands

import (
	"testing"

	"github.com/kballard/go-shellquote"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/G-Research/ktbench/internal/ktbench/configuration"
)

func TestRunWitness(t *testing.T) {
	assert.Equal(t,
		"./witness -vv run --keypair .witness-0.json --committee .committee.json "+
			"--secure_storage .secure-db-0-0 --audit_storage .audit-db-0-0",
		RunWitness(".witness-0.json", ".committee.json", ".secure-db-0-0", ".audit-db-0-0", false))
	assert.Contains(t, RunWitness("k", "c", "s", "a", true), "./witness -vvv run")
}

func TestRunIdp(t *testing.T) {
	assert.Equal(t,
		"./idp -vvv --keypair .idp.json --committee .committee.json --secure_storage .idp-secure-db "+
			"--sync_storage .sync-db --vkd_storage .vkd-db --batch_size 128",
		RunIdp(".idp.json", ".committee.json", ".idp-secure-db", ".sync-db", ".vkd-db", 128, true))
}

func TestRunClient(t *testing.T) {
	tests := map[string]struct {
		client   Client
		expected string
	}{
		"full": {
			client:   Client{Committee: ".committee.json", Rate: 100, Faults: 1, Idp: ".idp.json", ProofEntries: 10},
			expected: "./idp_client -vv --rate 100 --committee .committee.json --faults 1",
		},
		"witness only": {
			client:   Client{WitnessOnly: true, Committee: ".committee.json", Rate: 100, Idp: ".idp.json", ProofEntries: 10, Debug: true},
			expected: "./witness_client -vvv --idp .idp.json --rate 100 --faults 0 --committee .committee.json --proof_entries 10",
		},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.expected, RunClient(tc.client))
		})
	}
}

func TestCompile(t *testing.T) {
	assert.Equal(t, "cargo build --quiet --release --features benchmark", Compile(false))
	assert.Equal(t, "cargo build --quiet --release --features witness-only-benchmark", Compile(true))
}

func TestKillNodes(t *testing.T) {
	assert.Equal(t, "true && (rm -r .*-db* ; tmux kill-server || true)", KillNodes(false))
	assert.Equal(t, "rm -r logs ; mkdir -p logs && (rm -r .*-db* ; tmux kill-server || true)", KillNodes(true))
}

func TestAliasBinaries(t *testing.T) {
	assert.Equal(t,
		"rm witness ; rm witness_client ; ln -s ../target/release/witness . ; ln -s ../target/release/witness_client .",
		AliasBinaries("../target/release", true))
	assert.Equal(t,
		"rm witness ; rm idp_client ; rm idp ; ln -s kt/target/release/witness . ; "+
			"ln -s kt/target/release/idp_client . ; ln -s kt/target/release/idp .",
		AliasBinaries("./kt/target/release/", false))
}

func TestUpdate(t *testing.T) {
	cmd := Update(configuration.RepoSettings{Name: "kt", URL: "https://example.com/kt.git", Branch: "bench"}, false)
	assert.Contains(t, cmd, "(cd kt && git checkout -f bench)")
	assert.Contains(t, cmd, "(cd kt && cargo build --quiet --release --features benchmark)")
	assert.Contains(t, cmd, "ln -s kt/target/release/idp .")
}

func TestInstall(t *testing.T) {
	cmd := Install(configuration.RepoSettings{Name: "kt", URL: "https://example.com/kt.git", Branch: "main"})
	assert.Contains(t, cmd, "sudo apt-get install -y clang && (git clone https://example.com/kt.git || (cd kt ; git pull))")
}

func TestBackground(t *testing.T) {
	tests := map[string]struct {
		cmd      string
		expected []string
	}{
		"local": {
			cmd:      LocalBackground("./idp -vv --batch_size 10", "logs/idp.log"),
			expected: []string{"tmux", "new", "-d", "-s", "idp", "./idp -vv --batch_size 10 2> logs/idp.log"},
		},
		"remote": {
			cmd:      RemoteBackground("./witness -vv run", "logs/shard-0-0.log"),
			expected: []string{"tmux", "new", "-d", "-s", "shard-0-0", "./witness -vv run |& tee logs/shard-0-0.log"},
		},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			words, err := shellquote.Split(tc.cmd)
			require.NoError(t, err)
			assert.Equal(t, tc.expected, words)
		})
	}
}

func TestInDir(t *testing.T) {
	words, err := shellquote.Split(InDir("/tmp/my bench", "ls"))
	require.NoError(t, err)
	assert.Equal(t, []string{"cd", "/tmp/my bench", "&&", "(", "ls", ")"}, words)

	words, err = shellquote.Split(InDir("/tmp/bench", Kill()))
	require.NoError(t, err)
	assert.Equal(t, "(", words[3])
	assert.Equal(t, ")", words[len(words)-1])
}
