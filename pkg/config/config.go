package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigtoml"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
)

// FileName is the config file looked up in the project root
const FileName = "flatpak.toml"

// BuiltinConverter selects the in-process json2yaml converter instead of an external script
const BuiltinConverter = "builtin"

// Config describes all configuration options
type Config struct {
	AppID string `toml:"app_id" env:"APP_ID" default:"dev.bdavidson.BiosRenamer" usage:"Flatpak application ID"`
	Build struct {
		Dir      string   `toml:"dir" env:"DIR" default:"build-dir" usage:"Build directory passed to the builder"`
		Manifest string   `toml:"manifest" env:"MANIFEST" default:"dev.bdavidson.BiosRenamer.yml" usage:"Flatpak manifest"`
		Builder  string   `toml:"builder" env:"BUILDER" default:"flatpak-builder" usage:"Packaging builder binary"`
		Args     []string `toml:"args" env:"ARGS" usage:"Extra arguments for the builder"`
	} `toml:"build" env:"BUILD"`
	Python struct {
		Interpreter  string `toml:"interpreter" env:"INTERPRETER" default:"python3" usage:"Python used to create the virtual environment"`
		Venv         string `toml:"venv" env:"VENV" default:"venv"`
		Requirements string `toml:"requirements" env:"REQUIREMENTS" default:"requirements.txt"`
	} `toml:"python" env:"PYTHON"`
	Sources struct {
		Lockfile     string `toml:"lockfile" env:"LOCKFILE" default:"../Cargo.lock"`
		Generator    string `toml:"generator" env:"GENERATOR" default:"tools/flatpak-cargo-generator.py"`
		Converter    string `toml:"converter" env:"CONVERTER" default:"tools/flatpak-json2yaml.py" usage:"JSON to YAML converter script or \"builtin\""`
		Intermediate string `toml:"intermediate" env:"INTERMEDIATE" default:"generated-sources.json"`
		Output       string `toml:"output" env:"OUTPUT" default:"cargo-sources.yml"`
	} `toml:"sources" env:"SOURCES"`
	Log struct {
		Level string `toml:"level" env:"LEVEL" default:"info"`
		JSON  bool   `toml:"json" env:"JSON" default:"false" usage:"Output JSONND instead of pretty console messages"`
	} `toml:"log" env:"LOG"`
}

var logLevels = map[string]zerolog.Level{
	"debug":   zerolog.DebugLevel,
	"info":    zerolog.InfoLevel,
	"warn":    zerolog.WarnLevel,
	"warning": zerolog.WarnLevel,
	"error":   zerolog.ErrorLevel,
}

// Loader initializes an empty config object and returns a new Loader for this object. If file is empty,
// flatpak.toml in root is used when it exists.
func Loader(root, file string) (*Config, *aconfig.Loader) {
	files := []string{}
	if file != "" {
		files = append(files, file)
	} else {
		defaultFile := filepath.Join(root, FileName)
		if _, err := os.Stat(defaultFile); err == nil {
			files = append(files, defaultFile)
		}
	}

	cfg := Config{}
	return &cfg, aconfig.LoaderFor(&cfg, aconfig.Config{
		SkipFlags: true,
		EnvPrefix: "BUILDTOOLS",
		Files:     files,
		FileDecoders: map[string]aconfig.FileDecoder{
			".toml": aconfigtoml.New(),
		},
	})
}

// Load reads the config for the project in root
func Load(root, file string) (*Config, error) {
	if file != "" {
		if _, err := os.Stat(file); err != nil {
			return nil, eris.Wrapf(err, "failed to open config file %s", file)
		}
	}

	cfg, loader := Loader(root, file)
	err := loader.Load()
	if err != nil {
		return nil, eris.Wrap(err, "failed to load config")
	}

	err = cfg.Validate()
	if err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate verifies that all config fields have valid values
func (cfg *Config) Validate() error {
	_, ok := logLevels[cfg.Log.Level]
	if !ok {
		return eris.Errorf(`Invalid value for log.level: %s`, cfg.Log.Level)
	}

	required := []struct {
		name  string
		value string
	}{
		{"app_id", cfg.AppID},
		{"build.dir", cfg.Build.Dir},
		{"build.manifest", cfg.Build.Manifest},
		{"build.builder", cfg.Build.Builder},
		{"python.interpreter", cfg.Python.Interpreter},
		{"python.venv", cfg.Python.Venv},
		{"python.requirements", cfg.Python.Requirements},
		{"sources.lockfile", cfg.Sources.Lockfile},
		{"sources.generator", cfg.Sources.Generator},
		{"sources.converter", cfg.Sources.Converter},
		{"sources.intermediate", cfg.Sources.Intermediate},
		{"sources.output", cfg.Sources.Output},
	}
	for _, field := range required {
		if strings.TrimSpace(field.value) == "" {
			return eris.Errorf(`Missing value for %s`, field.name)
		}
	}

	if strings.ContainsAny(cfg.AppID, `/\ `) {
		return eris.Errorf(`Invalid value for app_id: %s`, cfg.AppID)
	}

	if cfg.Sources.Converter != BuiltinConverter && filepath.Ext(cfg.Sources.Converter) == "" {
		return eris.Errorf(`Invalid value for sources.converter: %s (must be "%s" or a script path)`, cfg.Sources.Converter, BuiltinConverter)
	}

	if cfg.Sources.Intermediate == cfg.Sources.Output {
		return eris.New(`sources.intermediate and sources.output must be different files`)
	}

	return nil
}

// LogLevel converts the .Log.Level field to a zerolog.Level
func (cfg *Config) LogLevel() zerolog.Level {
	return logLevels[cfg.Log.Level]
}

// SetLogLevel overrides .Log.Level if level is a known level
func (cfg *Config) SetLogLevel(level string) error {
	if _, ok := logLevels[level]; !ok {
		return eris.Errorf(`Invalid log level: %s`, level)
	}

	cfg.Log.Level = level
	return nil
}
