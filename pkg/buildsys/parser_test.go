package buildsys

import (
	"context"
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parseScript(t *testing.T, dir, content string, options map[string]string) (TaskList, map[string]ScriptOption, error) {
	t.Helper()

	script := Script{
		Filename: filepath.Join(dir, "tasks.star"),
		Content:  []byte(content),
	}
	return RunScript(context.Background(), script, dir, options, true)
}

func TestRunScript_Options(t *testing.T) {
	dir := t.TempDir()
	src := `
app_id = option("app_id", default = "dev.bdavidson.BiosRenamer", help = "Flatpak application ID")
build_dir = option("build_dir", default = "build-dir")

def configure():
    task(
        short = "build",
        desc = "Builds " + app_id,
        cmds = [("flatpak-builder", "--force-clean", build_dir, app_id + ".yml")],
    )
`

	tasks, options, err := parseScript(t, dir, src, map[string]string{"build_dir": "out"})
	require.NoError(t, err)

	require.Contains(t, options, "app_id")
	assert.Equal(t, "dev.bdavidson.BiosRenamer", options["app_id"].Default())
	assert.Equal(t, "Flatpak application ID", options["app_id"].Help)

	require.Contains(t, tasks, "build")
	build := tasks["build"]
	assert.Equal(t, "Builds dev.bdavidson.BiosRenamer", build.Desc)
	assert.Equal(t, dir, build.Base)
	require.Len(t, build.Cmds, 1)

	script, ok := build.Cmds[0].(TaskCmdScript)
	require.True(t, ok)
	assert.Equal(t, "flatpak-builder --force-clean out dev.bdavidson.BiosRenamer.yml", script.Content)
}

func TestRunScript_TaskFields(t *testing.T) {
	dir := t.TempDir()
	src := `
def configure():
    venv = resolve_path("venv")
    task(
        short = "venv",
        skip_if_exists = [venv],
        cmds = [("python3", "-m", "venv", venv)],
    )
    task(
        short = "gen",
        deps = ["venv"],
        requires = ["manifest.yml"],
        inputs = ["../Cargo.lock"],
        outputs = ["cargo-sources.yml"],
        env = {"VIRTUAL_ENV": venv},
        cmds = [
            ["python", "generator.py", "with space"],
            "rm -f generated-sources.json",
        ],
    )
`

	tasks, _, err := parseScript(t, dir, src, nil)
	require.NoError(t, err)
	require.Len(t, tasks, 2)

	gen := tasks["gen"]
	want := &Task{
		Short:        "gen",
		Base:         dir,
		Deps:         []string{"venv"},
		SkipIfExists: []string{},
		Requires:     []string{"manifest.yml"},
		Inputs:       []string{"../Cargo.lock"},
		Outputs:      []string{"cargo-sources.yml"},
		Env:          map[string]string{"VIRTUAL_ENV": filepath.Join(dir, "venv")},
		Cmds: []TaskCmd{
			TaskCmdScript{Content: "python generator.py 'with space'", Index: 0},
			TaskCmdScript{Content: "rm -f generated-sources.json", Index: 1},
		},
	}
	if diff := cmp.Diff(want, gen); diff != "" {
		t.Errorf("unexpected task (-want +got):\n%s", diff)
	}

	venv := tasks["venv"]
	assert.Equal(t, []string{filepath.Join(dir, "venv")}, venv.SkipIfExists)

	script := venv.Cmds[0].(TaskCmdScript)
	assert.Equal(t, "python3 -m venv venv", script.Content, "paths are passed relative to the task's base")
}

func TestRunScript_AnonymousTasks(t *testing.T) {
	dir := t.TempDir()
	src := `
def configure():
    helper = task(cmds = ["true"])
    task(short = "main", cmds = [helper, "true"])
`

	tasks, _, err := parseScript(t, dir, src, nil)
	require.NoError(t, err)
	require.Len(t, tasks, 1, "anonymous tasks are hidden")

	ref, ok := tasks["main"].Cmds[0].(TaskCmdTaskRef)
	require.True(t, ok)
	assert.True(t, ref.Task.Hidden)
	assert.Contains(t, ref.Task.Short, "auto#")
}

func TestRunScript_Errors(t *testing.T) {
	cases := map[string]string{
		"no configure":              `x = 1`,
		"configure is not callable": `configure = 1`,
		"option in configure": `
def configure():
    option("late")
`,
		"task outside configure": `task(short = "x")`,
		"reserved name": `
def configure():
    task(short = "configure")
`,
		"duplicate": `
def configure():
    task(short = "a")
    task(short = "a")
`,
		"bad cmd type": `
def configure():
    task(short = "a", cmds = [1])
`,
		"error builtin": `
def configure():
    error("manifest missing")
`,
		"syntax": `def configure(`,
	}

	for name, src := range cases {
		t.Run(name, func(t *testing.T) {
			_, _, err := parseScript(t, t.TempDir(), src, nil)
			require.Error(t, err)
		})
	}
}

func TestRunScript_Builtins(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, ioutil.WriteFile(filepath.Join(dir, "meta.yml"), []byte("app:\n  id: dev.bdavidson.BiosRenamer\n  modules:\n    - cargo-sources.yml\n"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "venv"), 0o755))
	t.Setenv("BUILDSYS_TEST_VALUE", "from-env")

	src := `
def configure():
    app_id = read_yaml("meta.yml", "app.id")
    module = read_yaml("meta.yml", "app.modules.0")
    missing = read_yaml("meta.yml", "app.nothing", "fallback")
    setenv("BUILDSYS_TEST_VALUE", "overridden")

    task(
        short = "summary",
        desc = " ".join([
            app_id,
            module,
            missing,
            str(isdir("venv")),
            str(isdir(resolve_path("venv"))),
            str(isfile("meta.yml")),
            str(isfile(resolve_path("meta.yml"))),
            str(isfile("venv")),
            str(isfile(resolve_path("venv", "bin", "python"))),
            getenv("BUILDSYS_TEST_VALUE"),
        ]),
    )
`

	tasks, _, err := parseScript(t, dir, src, nil)
	require.NoError(t, err)

	summary := tasks["summary"]
	assert.Equal(t, "dev.bdavidson.BiosRenamer cargo-sources.yml fallback True True True True False False overridden", summary.Desc)
	assert.Equal(t, "overridden", summary.Env["BUILDSYS_TEST_VALUE"], "setenv applies to every task")

	_, _, err = parseScript(t, dir, "def configure():\n    isfile(1)\n", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "want path or string")
}

func TestRunScript_ResolvePath(t *testing.T) {
	dir := t.TempDir()
	src := `
def configure():
    venv = resolve_path("venv")
    task(
        short = "paths",
        desc = "|".join([
            str(resolve_path(venv, "bin")),
            str(resolve_path("//scripts/gen.py")),
            str(resolve_path("venv/bin", base = ".")),
        ]),
    )
`

	tasks, _, err := parseScript(t, dir, src, nil)
	require.NoError(t, err)

	want := filepath.Join(dir, "venv", "bin") + "|" + filepath.Join(dir, "scripts", "gen.py") + "|" + filepath.Join("venv", "bin")
	assert.Equal(t, want, tasks["paths"].Desc)
}
