package config

import (
	"io/ioutil"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(t.TempDir(), "")
	require.NoError(t, err)

	assert.Equal(t, "dev.bdavidson.BiosRenamer", cfg.AppID)
	assert.Equal(t, "build-dir", cfg.Build.Dir)
	assert.Equal(t, "dev.bdavidson.BiosRenamer.yml", cfg.Build.Manifest)
	assert.Equal(t, "flatpak-builder", cfg.Build.Builder)
	assert.Empty(t, cfg.Build.Args)
	assert.Equal(t, "python3", cfg.Python.Interpreter)
	assert.Equal(t, "venv", cfg.Python.Venv)
	assert.Equal(t, "requirements.txt", cfg.Python.Requirements)
	assert.Equal(t, "../Cargo.lock", cfg.Sources.Lockfile)
	assert.Equal(t, "tools/flatpak-cargo-generator.py", cfg.Sources.Generator)
	assert.Equal(t, "tools/flatpak-json2yaml.py", cfg.Sources.Converter)
	assert.Equal(t, "generated-sources.json", cfg.Sources.Intermediate)
	assert.Equal(t, "cargo-sources.yml", cfg.Sources.Output)
	assert.Equal(t, zerolog.InfoLevel, cfg.LogLevel())
	assert.False(t, cfg.Log.JSON)
}

const projectConfig = `
app_id = "org.example.App"

[build]
dir = "out"
args = ["--repo=repo"]

[sources]
converter = "builtin"

[log]
level = "debug"
`

func TestLoad_ProjectFile(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, ioutil.WriteFile(filepath.Join(root, FileName), []byte(projectConfig), 0o644))

	cfg, err := Load(root, "")
	require.NoError(t, err)

	assert.Equal(t, "org.example.App", cfg.AppID)
	assert.Equal(t, "out", cfg.Build.Dir)
	assert.Equal(t, []string{"--repo=repo"}, cfg.Build.Args)
	assert.Equal(t, BuiltinConverter, cfg.Sources.Converter)
	assert.Equal(t, zerolog.DebugLevel, cfg.LogLevel())

	// untouched values keep their defaults
	assert.Equal(t, "flatpak-builder", cfg.Build.Builder)
	assert.Equal(t, "cargo-sources.yml", cfg.Sources.Output)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, ioutil.WriteFile(filepath.Join(root, FileName), []byte(projectConfig), 0o644))
	t.Setenv("BUILDTOOLS_BUILD_DIR", "env-out")
	t.Setenv("BUILDTOOLS_PYTHON_INTERPRETER", "python3.11")

	cfg, err := Load(root, "")
	require.NoError(t, err)

	assert.Equal(t, "env-out", cfg.Build.Dir)
	assert.Equal(t, "python3.11", cfg.Python.Interpreter)
	assert.Equal(t, "org.example.App", cfg.AppID)
}

func TestLoad_ExplicitFile(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "other.toml")
	require.NoError(t, ioutil.WriteFile(file, []byte("[build]\nbuilder = \"/usr/bin/flatpak-builder\"\n"), 0o644))

	cfg, err := Load(t.TempDir(), file)
	require.NoError(t, err)
	assert.Equal(t, "/usr/bin/flatpak-builder", cfg.Build.Builder)

	_, err = Load(t.TempDir(), filepath.Join(dir, "missing.toml"))
	require.Error(t, err)
}

func TestLoad_InvalidFile(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, ioutil.WriteFile(filepath.Join(root, FileName), []byte("[log]\nlevel = \"loud\"\n"), 0o644))

	_, err := Load(root, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "log.level")
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg, loader := Loader(t.TempDir(), "")
		require.NoError(t, loader.Load())
		return cfg
	}
	require.NoError(t, valid().Validate())

	tests := []struct {
		name   string
		modify func(cfg *Config)
		errMsg string
	}{
		{
			name:   "unknown log level",
			modify: func(cfg *Config) { cfg.Log.Level = "verbose" },
			errMsg: "log.level",
		},
		{
			name:   "empty manifest",
			modify: func(cfg *Config) { cfg.Build.Manifest = "" },
			errMsg: "build.manifest",
		},
		{
			name:   "blank venv",
			modify: func(cfg *Config) { cfg.Python.Venv = "  " },
			errMsg: "python.venv",
		},
		{
			name:   "app id with slash",
			modify: func(cfg *Config) { cfg.AppID = "dev/bdavidson" },
			errMsg: "app_id",
		},
		{
			name:   "converter without script",
			modify: func(cfg *Config) { cfg.Sources.Converter = "yaml" },
			errMsg: "sources.converter",
		},
		{
			name:   "intermediate overwrites output",
			modify: func(cfg *Config) { cfg.Sources.Intermediate = cfg.Sources.Output },
			errMsg: "must be different",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.modify(cfg)

			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestSetLogLevel(t *testing.T) {
	cfg := &Config{}
	require.NoError(t, cfg.SetLogLevel("warn"))
	assert.Equal(t, zerolog.WarnLevel, cfg.LogLevel())

	require.Error(t, cfg.SetLogLevel("chatty"))
	assert.Equal(t, "warn", cfg.Log.Level)
}
