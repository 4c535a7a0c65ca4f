package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const addSource = `function %add(i32, i32) -> i32 {
block0(v0: i32, v1: i32):
    v2 = iadd.i32 v0, v1
    return v2
}
`

func writeSource(t *testing.T, text string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "input.gir")
	require.NoError(t, os.WriteFile(path, []byte(text), 0o600))
	return path
}

func runCLI(t *testing.T, args ...string) (string, string, int) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(&stdout, &stderr, args)
	return stdout.String(), stderr.String(), code
}

func TestCompileFile(t *testing.T) {
	path := writeSource(t, addSource)
	stdout, _, code := runCLI(t, "compile", path)
	require.Zero(t, code)
	require.Contains(t, stdout, "%add:")
	require.Contains(t, stdout, "bytes")
	require.Regexp(t, `0000:( [0-9a-f]{2})+`, stdout)
}

func TestCompileSample(t *testing.T) {
	for _, isa := range []string{"amd64", "riscv"} {
		t.Run(isa, func(t *testing.T) {
			stdout, stderr, code := runCLI(t, "compile", "--isa", isa,
				"--set", "enable_verifier=true", filepath.Join("testdata", "sample.gir"))
			require.Zero(t, code, stderr)
			require.Contains(t, stdout, "%clamp_neg:")
			require.Contains(t, stdout, "%madd:")
		})
	}
}

func TestCompileRiscv(t *testing.T) {
	path := writeSource(t, addSource)
	stdout, _, code := runCLI(t, "compile", "--isa", "riscv", path)
	require.Zero(t, code)
	require.Contains(t, stdout, "%add:")
}

func TestCompilePrintsIR(t *testing.T) {
	path := writeSource(t, addSource)
	stdout, _, code := runCLI(t, "compile", "--print", path)
	require.Zero(t, code)
	require.Contains(t, stdout, "function %add(i32, i32) -> i32 {")
}

func TestCompileWithFlags(t *testing.T) {
	path := writeSource(t, addSource)
	_, _, code := runCLI(t, "compile", "-O", "speed_and_size",
		"--set", "enable_verifier=true", path)
	require.Zero(t, code)
}

func TestCompileRejectsUnknownISA(t *testing.T) {
	path := writeSource(t, addSource)
	_, stderr, code := runCLI(t, "compile", "--isa", "z80", path)
	require.Equal(t, 1, code)
	require.Contains(t, stderr, "z80")
}

func TestCompileRejectsBadFlag(t *testing.T) {
	path := writeSource(t, addSource)
	_, stderr, code := runCLI(t, "compile", "--set", "bogus", path)
	require.Equal(t, 1, code)
	require.Contains(t, stderr, "name=value")
}

func TestCompileReportsParseError(t *testing.T) {
	path := writeSource(t, "function %broken() {\nblock0:\n    zap\n}\n")
	_, stderr, code := runCLI(t, "compile", path)
	require.Equal(t, 1, code)
	require.Contains(t, stderr, "unknown opcode")
}

func TestVersionCommand(t *testing.T) {
	stdout, _, code := runCLI(t, "version")
	require.Zero(t, code)
	require.Contains(t, stdout, "gantry ")
}
