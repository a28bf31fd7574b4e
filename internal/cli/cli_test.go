package cli

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	t.Run("positional path and flags", func(t *testing.T) {
		var out bytes.Buffer
		cfg, exit, err := Parse([]string{"-workers", "4", "-log-format", "TEXT", "-skip-catalog", "-trace", "run.hcl"}, &out)
		require.NoError(t, err)
		require.False(t, exit)
		assert.Equal(t, "run.hcl", cfg.ConfigPath)
		assert.Equal(t, 4, cfg.WorkerCount)
		assert.Equal(t, "text", cfg.LogFormat)
		assert.Equal(t, "info", cfg.LogLevel)
		assert.True(t, cfg.SkipCatalog)
		assert.True(t, cfg.Trace)
	})

	t.Run("config flag wins over shorthand and positional", func(t *testing.T) {
		cfg, _, err := Parse([]string{"-config", "a.hcl", "-c", "b.hcl", "c.hcl"}, &bytes.Buffer{})
		require.NoError(t, err)
		assert.Equal(t, "a.hcl", cfg.ConfigPath)

		cfg, _, err = Parse([]string{"-c", "b.hcl", "c.hcl"}, &bytes.Buffer{})
		require.NoError(t, err)
		assert.Equal(t, "b.hcl", cfg.ConfigPath)
	})

	t.Run("no path prints usage", func(t *testing.T) {
		var out bytes.Buffer
		cfg, exit, err := Parse(nil, &out)
		require.NoError(t, err)
		assert.True(t, exit)
		assert.Nil(t, cfg)
		assert.Contains(t, out.String(), "Usage:")
	})

	t.Run("usage errors", func(t *testing.T) {
		cases := [][]string{
			{"-log-format", "xml", "run.hcl"},
			{"-log-level", "loud", "run.hcl"},
			{"-skip-catalog", "-catalog-only", "run.hcl"},
			{"-workers", "-1", "run.hcl"},
			{"-nope"},
		}
		for _, args := range cases {
			_, _, err := Parse(args, &bytes.Buffer{})
			var exitErr *ExitError
			require.ErrorAs(t, err, &exitErr, "%v", args)
			assert.Equal(t, ExitUsage, exitErr.Code)
		}
	})
}
