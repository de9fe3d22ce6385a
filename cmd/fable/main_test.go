package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/aretw0/fable"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetArgs(args)
	t.Cleanup(func() { rootCmd.SetArgs(nil) })
	err := rootCmd.Execute()
	return out.String(), err
}

func TestVersion(t *testing.T) {
	out, err := run(t, "", "version")
	require.NoError(t, err)
	assert.Equal(t, "fable version "+fable.Version+"\n", out)
}

func TestValidate(t *testing.T) {
	out, err := run(t, "", "validate", "testdata/vault.yaml")
	require.NoError(t, err)
	assert.Contains(t, out, "is valid (2 nodes)")

	out, err = run(t, "", "validate", "testdata/broken.yaml")
	require.Error(t, err)
	assert.Contains(t, out, "abyss")
}

func TestGraph(t *testing.T) {
	out, err := run(t, "", "graph", "testdata/vault.yaml")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "graph TD\n"))
	assert.Contains(t, out, `start -. "Open it" .-> vault`)
}

func TestPlayHeadless(t *testing.T) {
	t.Setenv("FABLE_STORAGE", "memory")
	out, err := run(t, "2\n1\n", "play", "--headless", "--session", "cmd-test", "testdata/vault.yaml")
	require.NoError(t, err)
	assert.Contains(t, out, "Gold everywhere.")
	assert.Contains(t, out, "The End.")
}

func TestLoadConfig_FlagsOverrideEnv(t *testing.T) {
	t.Setenv("FABLE_STORAGE", "file")
	t.Setenv("FABLE_LOG_LEVEL", "warn")

	cmd := &cobra.Command{}
	cmd.Flags().String("storage", "", "")
	cmd.Flags().String("storage-path", "", "")
	cmd.Flags().String("log-level", "", "")
	cmd.Flags().String("addr", "", "")
	require.NoError(t, cmd.ParseFlags([]string{"--storage", "memory", "--addr", ":9999"}))

	cfg, err := loadConfig(cmd)
	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.Storage)
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, ":9999", cfg.HTTPAddr)

	require.NoError(t, cmd.ParseFlags([]string{"--storage", "floppy"}))
	_, err = loadConfig(cmd)
	assert.ErrorContains(t, err, "FABLE_STORAGE")
}
