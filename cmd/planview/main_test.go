package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const validGraph = `
signal "x" {
  shape   = [2]
  initial = [1, 2]
}

signal "y" {
  shape = [2]
}

operator "copy" "cp" {
  sets  = ["y"]
  reads = ["x"]
}
`

func writeGraph(t *testing.T, src string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "graph.hcl")
	require.NoError(t, os.WriteFile(path, []byte(src), 0600))
	return path
}

func TestRun_EndToEnd(t *testing.T) {
	t.Parallel()

	path := writeGraph(t, validGraph)
	out := &bytes.Buffer{}

	err := run(out, []string{path})

	require.NoError(t, err)
	require.Contains(t, out.String(), "plan: 1 groups, 1 operators")
	require.Contains(t, out.String(), "layout:")
}

func TestRun_PlannerOverride(t *testing.T) {
	t.Parallel()

	path := writeGraph(t, validGraph)
	out := &bytes.Buffer{}

	err := run(out, []string{"-planner", "noop", path})

	require.NoError(t, err)
	require.Contains(t, out.String(), "plan: 1 groups")
}

func TestRun_ShouldExit(t *testing.T) {
	t.Parallel()

	// The "-h" (help) flag should cause cli.Parse to return `shouldExit=true`.
	out := &bytes.Buffer{}

	err := run(out, []string{"-h"})

	require.NoError(t, err, "run() should return a nil error when shouldExit is true")
	require.Contains(t, out.String(), "Usage:", "Expected help text to be printed to the output buffer")
}

func TestRun_ParseError(t *testing.T) {
	t.Parallel()

	out := &bytes.Buffer{}

	err := run(out, []string{"--this-is-not-a-valid-flag"})

	require.Error(t, err, "run() should return an error when argument parsing fails")
}

func TestRun_BrokenGraph(t *testing.T) {
	t.Parallel()

	path := writeGraph(t, `signal "x" {`)
	out := &bytes.Buffer{}

	err := run(out, []string{path})

	require.Error(t, err)
	require.Contains(t, err.Error(), "parsing")
}

func TestRun_UnknownSignalReference(t *testing.T) {
	t.Parallel()

	path := writeGraph(t, `
operator "copy" "cp" {
  reads = ["ghost"]
}
`)
	out := &bytes.Buffer{}

	err := run(out, []string{path})

	require.Error(t, err)
	require.Contains(t, err.Error(), "ghost")
}
