package main

import (
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFlags_Defaults(t *testing.T) {
	cfg, err := parseFlags(nil, io.Discard)
	require.NoError(t, err)

	assert.Equal(t, commandServe, cfg.Command)
	assert.Equal(t, "configs/barstreams.yaml", cfg.ConfigPath)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, 30*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, "ALL", cfg.Output)
}

func TestParseFlags_Convert(t *testing.T) {
	cfg, err := parseFlags([]string{
		"convert", "-input", "btc.csv", "-out", "records", "-output", "xml", "-workers", "2", "-overwrite",
	}, io.Discard)
	require.NoError(t, err)

	assert.Equal(t, commandConvert, cfg.Command)
	assert.Equal(t, "btc.csv", cfg.Input)
	assert.Equal(t, "records", cfg.OutDir)
	assert.Equal(t, "xml", cfg.Output)
	assert.Equal(t, 2, cfg.Workers)
	assert.True(t, cfg.Overwrite)
}

func TestParseFlags_EnvFallback(t *testing.T) {
	t.Setenv("BARSTREAMS_OUTPUT", "JSON")
	t.Setenv("BARSTREAMS_LOG_FORMAT", "text")
	t.Setenv("BARSTREAMS_SHUTDOWN_TIMEOUT", "5s")
	t.Setenv("BARSTREAMS_WORKERS", "not-a-number")

	cfg, err := parseFlags([]string{"convert"}, io.Discard)
	require.NoError(t, err)
	assert.Equal(t, "JSON", cfg.Output)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, 5*time.Second, cfg.ShutdownTimeout)
	assert.Positive(t, cfg.Workers, "unparsable values fall back to the default")

	cfg, err = parseFlags([]string{"convert", "-output", "XML"}, io.Discard)
	require.NoError(t, err)
	assert.Equal(t, "XML", cfg.Output, "flags win over the environment")
}

func TestParseFlags_DebugAndHelp(t *testing.T) {
	cfg, err := parseFlags([]string{"-debug"}, io.Discard)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)

	cfg, err = parseFlags([]string{"-h"}, io.Discard)
	require.NoError(t, err)
	assert.True(t, cfg.ShowHelp)

	_, err = parseFlags([]string{"serve", "extra"}, io.Discard)
	assert.ErrorContains(t, err, "unexpected argument")

	_, err = parseFlags([]string{"-no-such-flag"}, io.Discard)
	assert.Error(t, err)
}

func TestValidateFlags(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "barstreams.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("platform:\n  org: c360\n"), 0o644))
	input := filepath.Join(dir, "btc.csv")
	require.NoError(t, os.WriteFile(input, []byte(csvHeader), 0o644))

	serve := func() *CLIConfig {
		return &CLIConfig{
			Command: commandServe, ConfigPath: configPath,
			LogLevel: "info", LogFormat: "json", ShutdownTimeout: time.Second,
		}
	}
	convert := func() *CLIConfig {
		c := serve()
		c.Command = commandConvert
		c.ConfigPath = ""
		c.Input, c.OutDir, c.Output, c.TimeZone, c.Workers = input, dir, "ALL", "UTC", 1
		return c
	}

	require.NoError(t, validateFlags(serve()))
	require.NoError(t, validateFlags(convert()))

	cases := map[string]*CLIConfig{}
	add := func(name string, base func() *CLIConfig, mutate func(*CLIConfig)) {
		c := base()
		mutate(c)
		cases[name] = c
	}
	add("log level", serve, func(c *CLIConfig) { c.LogLevel = "trace" })
	add("log format", serve, func(c *CLIConfig) { c.LogFormat = "xml" })
	add("shutdown timeout", serve, func(c *CLIConfig) { c.ShutdownTimeout = 0 })
	add("missing config", serve, func(c *CLIConfig) { c.ConfigPath = filepath.Join(dir, "nope.yaml") })
	add("no input", convert, func(c *CLIConfig) { c.Input = "" })
	add("missing input", convert, func(c *CLIConfig) { c.Input = filepath.Join(dir, "nope.csv") })
	add("no out", convert, func(c *CLIConfig) { c.OutDir = "" })
	add("output", convert, func(c *CLIConfig) { c.Output = "CSV" })
	add("time zone", convert, func(c *CLIConfig) { c.TimeZone = "Mars/Olympus" })
	add("workers", convert, func(c *CLIConfig) { c.Workers = 0 })

	for name, c := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Error(t, validateFlags(c))
		})
	}

	help := serve()
	help.ConfigPath = ""
	help.ShowHelp = true
	assert.NoError(t, validateFlags(help), "help skips validation")
}
