package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pboyd/retext/resolver"
	"github.com/pboyd/retext/rewrite"
)

func write(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "retext.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefault(t *testing.T) {
	assert := assert.New(t)

	cfg := Default()
	assert.NoError(cfg.Validate())
	assert.Equal("MoveNext", cfg.Resolver.StepMethod)
	assert.Equal(resolver.DefaultConventions, cfg.Resolver.Conventions)
	assert.Equal([]string{"step.iterator", "step.async"}, cfg.Resolver.Capabilities)
	assert.Equal("auto", cfg.Rewrite.Mode)
	assert.Equal("Patches", cfg.Discovery.PatchDir)
	assert.Zero(cfg.Discovery.Workers)

	// Defaults are copies.
	cfg.Resolver.Conventions[0] = "changed"
	assert.Equal("<%s>d__", resolver.DefaultConventions[0])
}

func TestLoad(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	path := write(t, `
[resolver]
step_method = "func"
conventions = ["%s.func", "%s-range"]
capabilities = []

[rewrite]
mode = "in-place"

[discovery]
roots = ["Mods"]
workers = 3

[log]
level = "debug"
format = "json"
`)
	cfg, err := Load(path)
	require.NoError(err)

	assert.Equal(path, cfg.Path)
	assert.Equal("func", cfg.Resolver.StepMethod)
	assert.Equal([]string{"%s.func", "%s-range"}, cfg.Resolver.Conventions)
	assert.Empty(cfg.Resolver.Capabilities)
	assert.Equal("in-place", cfg.Rewrite.Mode)
	assert.Equal([]string{"Mods"}, cfg.Discovery.Roots)
	assert.Equal(3, cfg.Discovery.Workers)
	assert.Equal("Patches", cfg.Discovery.PatchDir, "unset keys keep their defaults")
	assert.Equal("debug", cfg.Log.Level)

	assert.Len(cfg.ResolverOptions(nil), 4)
	assert.Len(cfg.RewriteOptions(nil), 2)
	assert.Equal(3, cfg.DiscoveryOptions(nil).Workers)

	rw := rewrite.New(nil, cfg.RewriteOptions(nil)...)
	assert.Equal(rewrite.ModeInPlace, rw.Mode())
}

func TestLoad_Errors(t *testing.T) {
	cases := map[string]string{
		"syntax":          "[resolver\n",
		"unknown key":     "[resolver]\nstep = \"x\"\n",
		"bad mode":        "[rewrite]\nmode = \"sideways\"\n",
		"bad convention":  "[resolver]\nconventions = [\"%sFoo%s\"]\n",
		"no verb":         "[resolver]\nconventions = [\"Foo\"]\n",
		"negative pool":   "[discovery]\nworkers = -1\n",
		"bad extension":   "[discovery]\nextensions = [\"xml\"]\n",
		"bad level":       "[log]\nlevel = \"loud\"\n",
		"bad format":      "[log]\nformat = \"xml\"\n",
		"empty step":      "[resolver]\nstep_method = \"\"\n",
		"wrong type":      "[discovery]\nworkers = \"four\"\n",
		"empty capabilty": "[resolver]\ncapabilities = [\"\"]\n",
	}

	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(write(t, content))
			assert.Error(t, err)
		})
	}

	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}

func TestApply(t *testing.T) {
	assert := assert.New(t)

	cfg := Default().Apply(
		WithWorkers(8),
		WithLog("warn", ""),
		WithRewriteMode("replace"),
		WithRoots("a", "b"),
	)
	assert.Equal(8, cfg.Discovery.Workers)
	assert.Equal("warn", cfg.Log.Level)
	assert.Equal("text", cfg.Log.Format)
	assert.Equal("replace", cfg.Rewrite.Mode)
	assert.Equal([]string{"a", "b"}, cfg.Discovery.Roots)
	assert.NoError(cfg.Validate())
}
