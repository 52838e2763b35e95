package buildsys

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"mvdan.cc/sh/v3/expand"
	"mvdan.cc/sh/v3/interp"
	"mvdan.cc/sh/v3/syntax"
)

// RunOptions controls how RunTask executes tasks
type RunOptions struct {
	// DryRun only logs the commands
	DryRun bool
	// Force runs the requested task even if its outputs are up to date. Dependencies still use the normal checks.
	Force bool
	// Stdout and Stderr receive the output of the executed commands. They default to os.Stdout and os.Stderr.
	Stdout io.Writer
	Stderr io.Writer
	// ExecHandler runs external programs. Defaults to the interpreter's handler which searches $PATH.
	ExecHandler interp.ExecHandlerFunc
}

type (
	runtimeCtxKey struct{}
	runtimeCtx    struct {
		runTasks    map[string]bool
		projectRoot string
		opts        RunOptions
		execHandler interp.ExecHandlerFunc
	}
)

func getRuntimeCtx(ctx context.Context) *runtimeCtx {
	return ctx.Value(runtimeCtxKey{}).(*runtimeCtx)
}

func resolvePatternLists(ctx context.Context, base string, patterns []string) ([]string, error) {
	result := []string{}
	cfg := expand.Config{
		ReadDir:  shellReadDir,
		GlobStar: true,
	}

	parser := syntax.NewParser()
	parserCtx := &parserCtx{
		filepath:    filepath.Join(base, "invalid"),
		projectRoot: getRuntimeCtx(ctx).projectRoot,
	}

	for _, item := range patterns {
		item = normalizePath(parserCtx, base, item)
		if !strings.ContainsAny(item, "*?[") {
			result = append(result, item)
			continue
		}

		item = filepath.ToSlash(item)
		words := make([]*syntax.Word, 0)
		err := parser.Words(strings.NewReader(item), func(w *syntax.Word) bool {
			words = append(words, w)
			return true
		})
		if err != nil {
			return nil, eris.Wrapf(err, "Failed to parse pattern %s", item)
		}

		matches, err := expand.Fields(&cfg, words...)
		if err != nil {
			return nil, eris.Wrapf(err, "Failed to resolve pattern %s", item)
		}

		for _, match := range matches {
			// If a pattern didn't match anything, it's returned as a result. Skip those results.
			if !strings.ContainsAny(match, "*?[") {
				result = append(result, filepath.FromSlash(match))
			}
		}
	}
	return result, nil
}

// RunTask executes the given task after all of its dependencies
func RunTask(ctx context.Context, projectRoot, task string, tasks TaskList, opts RunOptions) error {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}

	rctx := runtimeCtx{
		projectRoot: projectRoot,
		runTasks:    make(map[string]bool),
		opts:        opts,
		execHandler: makeExecHandler(opts.ExecHandler),
	}

	ctx = context.WithValue(ctx, runtimeCtxKey{}, &rctx)
	taskMeta, found := tasks[task]
	if !found {
		return eris.Errorf("Task %s not found", task)
	}

	return runTaskInternal(ctx, taskMeta, tasks, opts.Force, true)
}

// upToDate checks the skip_if_exists list and compares the modification times of inputs and outputs
func upToDate(ctx context.Context, task *Task) (bool, error) {
	skipList, err := resolvePatternLists(ctx, task.Base, task.SkipIfExists)
	if err != nil {
		return false, eris.Wrapf(err, "failed to resolve skipIfExists list")
	}

	found := 0
	for _, item := range skipList {
		_, err := os.Stat(item)
		if err == nil {
			found++
		} else if !eris.Is(err, os.ErrNotExist) {
			return false, eris.Wrapf(err, "Failed to check %s", item)
		}
	}

	if found > 0 && found == len(skipList) {
		log(ctx).Info().
			Str("task", task.Short).
			Msg("skipped because all skip files exist")

		return true, nil
	}

	var newestInput time.Time
	inputList, err := resolvePatternLists(ctx, task.Base, task.Inputs)
	if err != nil {
		return false, eris.Wrap(err, "failed to resolve inputs")
	}

	outputList, err := resolvePatternLists(ctx, task.Base, task.Outputs)
	if err != nil {
		return false, eris.Wrap(err, "failed to resolve output list")
	}

	for _, item := range inputList {
		info, err := os.Stat(item)
		if err != nil {
			if getRuntimeCtx(ctx).opts.DryRun && eris.Is(err, os.ErrNotExist) {
				log(ctx).Warn().Str("task", task.Short).Str("path", item).Msgf("input %s is missing", item)
				return false, nil
			}
			return false, eris.Wrapf(err, "Failed to check input %s", item)
		}

		if info.ModTime().After(newestInput) {
			newestInput = info.ModTime()
		}
	}

	if newestInput.IsZero() || len(outputList) == 0 {
		return false, nil
	}

	var newestOutput time.Time
	oldestOutput := time.Now()

	for _, item := range outputList {
		info, err := os.Stat(item)
		if err != nil {
			if eris.Is(err, os.ErrNotExist) {
				// a missing output always has to be rebuilt
				return false, nil
			}
			return false, eris.Wrapf(err, "Failed to check output %s", item)
		}

		mt := info.ModTime()
		if mt.After(newestOutput) {
			newestOutput = mt
		}

		if mt.Before(oldestOutput) {
			oldestOutput = mt
		}
	}

	if newestOutput.Sub(oldestOutput) > 10*time.Minute {
		log(ctx).Warn().
			Str("task", task.Short).
			Msgf("oldest output is %f minutes older than the newest output", newestOutput.Sub(oldestOutput).Minutes())
	}

	if oldestOutput.After(newestInput) {
		log(ctx).Info().
			Str("task", task.Short).
			Msgf("nothing to do (output is %f seconds newer)", oldestOutput.Sub(newestInput).Seconds())

		return true, nil
	}

	return false, nil
}

func checkRequires(ctx context.Context, task *Task) error {
	requireList, err := resolvePatternLists(ctx, task.Base, task.Requires)
	if err != nil {
		return eris.Wrap(err, "failed to resolve requires list")
	}

	for _, item := range requireList {
		_, err := os.Stat(item)
		if err == nil {
			continue
		}

		if getRuntimeCtx(ctx).opts.DryRun {
			log(ctx).Warn().Str("task", task.Short).Str("path", item).Msgf("required file %s is missing", item)
			continue
		}

		if eris.Is(err, os.ErrNotExist) {
			return eris.Errorf("required file %s is missing", item)
		}
		return eris.Wrapf(err, "Failed to check %s", item)
	}

	return nil
}

func runTaskInternal(ctx context.Context, task *Task, tasks TaskList, force, canSkip bool) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	rctx := getRuntimeCtx(ctx)
	status, ok := rctx.runTasks[task.Short]
	if ok {
		if status {
			// this task has already been run
			log(ctx).Debug().Msgf("Task %s already run", task.Short)
			return nil
		}

		return eris.Errorf("Task %s was called recursively", task.Short)
	}

	rctx.runTasks[task.Short] = false

	for _, dep := range task.Deps {
		if !rctx.runTasks[dep] {
			depTask, ok := tasks[dep]
			if !ok {
				return eris.Errorf("Task %s not found", dep)
			}

			err := runTaskInternal(ctx, depTask, tasks, false, true)
			if err != nil {
				return &TaskError{Task: task.Short, Dep: dep, Err: err}
			}
		}
	}

	if canSkip && !force {
		skip, err := upToDate(ctx, task)
		if err != nil {
			return &TaskError{Task: task.Short, Err: err}
		}

		if skip {
			rctx.runTasks[task.Short] = true
			return nil
		}
	}

	err := checkRequires(ctx, task)
	if err != nil {
		return &TaskError{Task: task.Short, Err: err}
	}

	// With the skip and input/output checks done, we can finally start executing
	runner, err := interp.New(
		interp.Dir(task.Base),
		interp.Env(expand.ListEnviron(mergeEnv(task.Env)...)),
		interp.ExecHandler(rctx.execHandler),
		interp.OpenHandler(openHandler),
		interp.StdIO(nil, rctx.opts.Stdout, rctx.opts.Stderr),
		interp.Params("-e"),
	)
	if err != nil {
		return eris.Wrap(err, "Failed to initialize runner")
	}

	parser := syntax.NewParser()
	printer := syntax.NewPrinter(
		syntax.Minify(true),
	)
	strBuffer := strings.Builder{}

	for _, item := range task.Cmds {
		stmts, err := item.ToShellStmts(parser)
		if err != nil {
			return &TaskError{Task: task.Short, Err: err}
		}
		if stmts != nil {
			for _, stm := range stmts {
				strBuffer.Reset()
				printer.Print(&strBuffer, stm)
				log(ctx).Info().
					Str("task", task.Short).
					Bool("command", true).
					Msg(strBuffer.String())

				if !rctx.opts.DryRun {
					err = runner.Run(ctx, stm)
					if err != nil {
						return &TaskError{Task: task.Short, Err: err}
					}

					if runner.Exited() {
						rctx.runTasks[task.Short] = true
						return nil
					}
				}
			}
		} else {
			subTask, err := item.ToTask()
			if err != nil {
				return eris.Wrap(err, "failed to retrieve task ref")
			}

			if subTask == nil {
				return eris.Errorf("unexpected task command %+v", item)
			}

			err = runTaskInternal(ctx, subTask, tasks, force, true)
			if err != nil {
				return &TaskError{Task: task.Short, Dep: subTask.Short, Err: err}
			}
		}

		if err = ctx.Err(); err != nil {
			return err
		}
	}

	rctx.runTasks[task.Short] = true
	return nil
}
