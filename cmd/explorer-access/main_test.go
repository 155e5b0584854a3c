package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"

	"github.com/oarkflow/explorer"
)

func TestParseResource(t *testing.T) {
	res, err := parseResource("html:/sites/a.html:changed:bob")
	require.NoError(t, err)
	require.Equal(t, "html", res.Type)
	require.Equal(t, "/sites/a.html", res.RootPath)
	require.Equal(t, explorer.StateChanged, res.State)
	require.Equal(t, "bob", res.Lock.Owner)
	require.False(t, res.Folder)

	res, err = parseResource("folder:/sites/")
	require.NoError(t, err)
	require.True(t, res.Folder)
	require.Equal(t, explorer.StateUnchanged, res.State)

	_, err = parseResource("html")
	require.Error(t, err)
}

func TestSettingsFromEnvironment(t *testing.T) {
	t.Setenv("EXPLORER_DB_DRIVER", "postgres")
	t.Setenv("EXPLORER_REDIS_ADDR", "localhost:6379")
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	v := bindSettings(fs)
	require.NoError(t, fs.Parse([]string{"--log-format", "none"}))

	s, err := loadSettings(v)
	require.NoError(t, err)
	require.Equal(t, "postgres", s.DBDriver)
	require.Equal(t, "localhost:6379", s.RedisAddr)
	require.Equal(t, "none", s.LogFormat)
	require.Equal(t, "explorer:flush", s.RedisChannel)
}

func TestValidateAndConvert(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "explorer.yaml")
	data, err := explorer.NewConfigBuilder().
		AddType(explorer.NewTypeConfig("html").Menu(explorer.Entry("edit", explorer.RuleStandard))).
		ToYAML()
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(in, data, 0o644))

	require.NoError(t, handleValidate([]string{in}))
	out := filepath.Join(dir, "explorer.json")
	require.NoError(t, handleConvert([]string{in, out}))
	cfg, err := explorer.NewConfigLoader().LoadFile(out)
	require.NoError(t, err)
	require.Len(t, cfg.Types, 1)
}
