package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRun_Version(t *testing.T) {
	var stdout bytes.Buffer
	require.NoError(t, run(context.Background(), []string{"-version"}, &stdout, &bytes.Buffer{}))
	assert.Equal(t, "barstreams version "+Version+"\n", stdout.String())
}

func TestRun_Validate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "barstreams.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
platform:
  org: C360
  id: test
components:
  history:
    type: processor
    name: history
    enabled: true
    config:
      output: JSON
`), 0o644))

	var stdout bytes.Buffer
	err := run(context.Background(), []string{"serve", "-config", path, "-validate"}, &stdout, &bytes.Buffer{})
	require.NoError(t, err)
	assert.Contains(t, stdout.String(), "Configuration is valid")

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("platform:\n  org: \"\"\n"), 0o644))
	err = run(context.Background(), []string{"-config", bad, "-validate"}, &bytes.Buffer{}, &bytes.Buffer{})
	assert.ErrorContains(t, err, "platform.org")
}

func TestRun_Convert(t *testing.T) {
	inDir := t.TempDir()
	writeInput(t, inDir, "btc.csv", goodCSV)
	out := t.TempDir()

	var stdout, stderr bytes.Buffer
	err := run(context.Background(), []string{"convert", "-input", inDir, "-out", out, "-tz", "UTC"}, &stdout, &stderr)
	require.NoError(t, err)
	assert.Contains(t, stdout.String(), "JSON records created: 2\n")
	assert.Contains(t, stderr.String(), "Batch converted", "convert logs to stderr")

	writeInput(t, inDir, "bad.csv", badCSV)
	stdout.Reset()
	err = run(context.Background(),
		[]string{"convert", "-input", inDir, "-out", t.TempDir()}, &stdout, &bytes.Buffer{})
	assert.ErrorContains(t, err, "1 of 2 batches routed to failure")
	assert.Contains(t, stdout.String(), "failure/bad.csv")
}

func TestLoadEnvFile(t *testing.T) {
	require.NoError(t, loadEnvFile(filepath.Join(t.TempDir(), "missing.env")))
	require.NoError(t, loadEnvFile(""))

	// Registers cleanup that unsets the key again.
	t.Setenv("BARSTREAMS_TEST_ENV_KEY", "")
	require.NoError(t, os.Unsetenv("BARSTREAMS_TEST_ENV_KEY"))

	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("BARSTREAMS_TEST_ENV_KEY=from-file\n"), 0o644))
	require.NoError(t, loadEnvFile(path))
	assert.Equal(t, "from-file", os.Getenv("BARSTREAMS_TEST_ENV_KEY"))

	t.Setenv("BARSTREAMS_TEST_ENV_KEY", "from-env")
	require.NoError(t, loadEnvFile(path))
	assert.Equal(t, "from-env", os.Getenv("BARSTREAMS_TEST_ENV_KEY"), "set variables win")
}

func TestSetupLogger(t *testing.T) {
	var buf bytes.Buffer
	setupLogger("warn", "text", &buf).Info("hidden")
	assert.Empty(t, buf.String())

	setupLogger("debug", "json", &buf).Debug("shown")
	assert.Contains(t, buf.String(), `"msg":"shown"`)
	assert.Contains(t, buf.String(), `"service":"barstreams"`)
	assert.Contains(t, buf.String(), `"source"`)
}
