package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/outofforest/mtdcheck/fault"
)

func runCLI(t *testing.T, args ...string) (int, string, string) {
	t.Helper()

	var stdout, stderr bytes.Buffer
	exitCode := execute(args, &stdout, &stderr)

	return exitCode, stdout.String(), stderr.String()
}

func TestPass(t *testing.T) {
	requireT := require.New(t)

	exitCode, stdout, stderr := runCLI(t, "--erase-blocks", "8")
	requireT.Equal(0, exitCode)
	requireT.Equal("PASS: Everything looks good, 64 blocks (32 KiB) verified\n", stdout)
	requireT.Contains(stderr, "flash geometry")
	requireT.Contains(stderr, "run=")
}

func TestInvalidGeometry(t *testing.T) {
	requireT := require.New(t)

	exitCode, stdout, _ := runCLI(t, "--erase-size", "4000")
	requireT.Equal(int(fault.SiteConfig), exitCode)
	requireT.True(strings.HasPrefix(stdout, "FAIL: config: "))
	requireT.Equal(1, strings.Count(stdout, "\n"))
}

func TestBadFlags(t *testing.T) {
	for _, args := range [][]string{
		{"--block-size", "abc"},
		{"--no-such-flag"},
		{"positional"},
	} {
		t.Run(strings.Join(args, " "), func(t *testing.T) {
			requireT := require.New(t)

			exitCode, stdout, _ := runCLI(t, args...)
			requireT.Equal(int(fault.SiteConfig), exitCode)
			requireT.True(strings.HasPrefix(stdout, "FAIL: config: "))
			requireT.Equal(1, strings.Count(stdout, "\n"))
		})
	}
}

func TestConfigFile(t *testing.T) {
	requireT := require.New(t)

	path := filepath.Join(t.TempDir(), "flash.json")
	requireT.NoError(os.WriteFile(path, []byte(`{
	// small part
	"block_size": 256,
	"erase_size": 1024,
	"erase_blocks": 2,
}`), 0o600))

	exitCode, stdout, _ := runCLI(t, "--config", path)
	requireT.Equal(0, exitCode)
	requireT.Equal("PASS: Everything looks good, 8 blocks (2.0 KiB) verified\n", stdout)

	// Flags override the file.
	exitCode, stdout, _ = runCLI(t, "--config", path, "--erase-blocks", "4")
	requireT.Equal(0, exitCode)
	requireT.Equal("PASS: Everything looks good, 16 blocks (4.0 KiB) verified\n", stdout)
}

func TestMissingConfigFile(t *testing.T) {
	exitCode, stdout, _ := runCLI(t, "--config", filepath.Join(t.TempDir(), "missing.json"))
	require.Equal(t, int(fault.SiteConfig), exitCode)
	require.True(t, strings.HasPrefix(stdout, "FAIL: config: "))
}

func TestImage(t *testing.T) {
	requireT := require.New(t)

	path := filepath.Join(t.TempDir(), "flash.img")
	exitCode, stdout, _ := runCLI(t, "--image", path, "--erase-blocks", "4", "--verbose")
	requireT.Equal(0, exitCode)
	requireT.Equal("PASS: Everything looks good, 32 blocks (16 KiB) verified\n", stdout)

	data, err := os.ReadFile(path)
	requireT.NoError(err)
	requireT.Len(data, 4*4096)
	requireT.Equal([]byte{0xff, 0xff, 0xff, 0xff}, data[:4])
	requireT.Equal([]byte{0xfb, 0xff, 0xff, 0xff}, data[4:8])
}
