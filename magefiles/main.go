//go:build mage

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

const buildPackage = "github.com/G-Research/ktbench/internal/ktbench/build"

var LocalBin = filepath.Join(os.Getenv("PWD"), "/bin")

func makeLocalBin() error {
	return os.MkdirAll(LocalBin, os.ModePerm)
}

// BuildKtbench builds ./bin/ktbench, stamped with the current commit.
// Set RELEASE_VERSION to stamp a release version.
func BuildKtbench() error {
	mg.Deps(makeLocalBin)
	return sh.RunV("go", "build", "-ldflags", ldflags(), "-o", filepath.Join(LocalBin, "ktbench"), "./cmd/ktbench")
}

// Tests runs every test of the module and writes a coverage report to coverage.out.
func Tests() error {
	packages, err := sh.Output("go", "list", "./...")
	if err != nil {
		return err
	}
	args := append([]string{"test", "-coverprofile=coverage.out"}, strings.Fields(packages)...)
	return sh.RunV("go", args...)
}

// Clean removes build outputs.
func Clean() {
	fmt.Println("Cleaning...")
	for _, path := range []string{LocalBin, "coverage.out"} {
		os.RemoveAll(path)
	}
}

func ldflags() string {
	commit, err := sh.Output("git", "rev-parse", "HEAD")
	if err != nil {
		commit = "UNKNOWN"
	}
	version := os.Getenv("RELEASE_VERSION")
	if version == "" {
		version = "dev"
	}
	return strings.Join([]string{
		fmt.Sprintf("-X %s.ReleaseVersion=%s", buildPackage, version),
		fmt.Sprintf("-X %s.GitCommit=%s", buildPackage, commit),
		fmt.Sprintf("-X %s.BuildTime=%s", buildPackage, time.Now().UTC().Format(time.RFC3339)),
	}, " ")
}
