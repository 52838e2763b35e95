// Package pipeline loads the tasks which build the Flatpak package.
package pipeline

import (
	"context"
	_ "embed"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/iAmSomeone2/asus-bios-renamer/build-tools/pkg/buildsys"
	"github.com/iAmSomeone2/asus-bios-renamer/build-tools/pkg/config"
)

// TaskFile is the name of the task file a project can use to replace the default tasks
const TaskFile = "tasks.star"

//go:embed tasks.star
var defaultTasks []byte

// Options converts the config into the option values used by the task file
func Options(cfg *config.Config) map[string]string {
	return map[string]string{
		"app_id":       cfg.AppID,
		"build_dir":    cfg.Build.Dir,
		"manifest":     cfg.Build.Manifest,
		"builder":      cfg.Build.Builder,
		"builder_args": strings.Join(cfg.Build.Args, "\n"),
		"python":       cfg.Python.Interpreter,
		"venv":         cfg.Python.Venv,
		"requirements": cfg.Python.Requirements,
		"lockfile":     cfg.Sources.Lockfile,
		"generator":    cfg.Sources.Generator,
		"converter":    cfg.Sources.Converter,
		"intermediate": cfg.Sources.Intermediate,
		"output":       cfg.Sources.Output,
	}
}

// Script returns the project's own task file if root contains one and the built-in tasks otherwise
func Script(root string) (buildsys.Script, bool, error) {
	path := filepath.Join(root, TaskFile)
	_, err := os.Stat(path)
	if err == nil {
		return buildsys.Script{Filename: path}, true, nil
	}

	if !eris.Is(err, os.ErrNotExist) {
		return buildsys.Script{}, false, eris.Wrapf(err, "failed to check %s", path)
	}

	return buildsys.Script{Filename: path, Content: defaultTasks}, false, nil
}

// Load evaluates the effective task file. Values in overrides take precedence over the config.
func Load(ctx context.Context, root string, cfg *config.Config, overrides map[string]string) (buildsys.TaskList, error) {
	script, custom, err := Script(root)
	if err != nil {
		return nil, err
	}

	options := Options(cfg)
	if custom {
		// only pass the config values the project's task file declares
		_, declared, err := buildsys.RunScript(ctx, script, root, nil, false)
		if err != nil {
			return nil, eris.Wrap(err, "failed to load tasks")
		}

		for name := range options {
			if _, ok := declared[name]; !ok {
				delete(options, name)
			}
		}
	}
	for k, v := range overrides {
		options[k] = v
	}

	tasks, _, err := buildsys.RunScript(ctx, script, root, options, true)
	if err != nil {
		return nil, eris.Wrap(err, "failed to load tasks")
	}

	return tasks, nil
}
