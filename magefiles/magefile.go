//go:build mage

// Package main provides build targets for tinyorm using Mage.
//
// Usage:
//
//	mage build      Compile the tinyorm CLI to bin/
//	mage test       Run all tests
//	mage race       Run all tests with the race detector
//	mage lint       Run golangci-lint
//	mage demo       Build, then run init/seed/demo against a scratch database
//	mage clean      Remove build artifacts
package main

import (
	"os"
	"path/filepath"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

const (
	binGo      = "go"
	binLint    = "golangci-lint"
	binaryName = "tinyorm"
	binaryDir  = "bin"
	cmdDir     = "./cmd/tinyorm"
	demoDB     = "bin/demo.db"
)

var Default = Build

// Build compiles the tinyorm binary to bin/.
func Build() error {
	if err := os.MkdirAll(binaryDir, 0o755); err != nil {
		return err
	}
	return sh.RunV(binGo, "build", "-o", filepath.Join(binaryDir, binaryName), cmdDir)
}

// Test runs all tests.
func Test() error {
	return sh.RunV(binGo, "test", "./...")
}

// Race runs all tests with the race detector.
func Race() error {
	return sh.RunV(binGo, "test", "-race", "./...")
}

// Lint runs golangci-lint.
func Lint() error {
	return sh.RunV(binLint, "run", "./...")
}

// Demo runs the CLI walkthrough on a fresh sqlite file.
func Demo() error {
	mg.Deps(Build)
	_ = os.Remove(demoDB)
	bin := filepath.Join(binaryDir, binaryName)
	for _, step := range [][]string{{"init"}, {"seed"}, {"demo"}, {"list", "-o", "yaml"}} {
		args := append([]string{"--dsn", demoDB}, step...)
		if err := sh.RunV(bin, args...); err != nil {
			return err
		}
	}
	return nil
}

// Clean removes build artifacts.
func Clean() error {
	return os.RemoveAll(binaryDir)
}
