package buildsys

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/pflag"
	"mvdan.cc/sh/v3/interp"

	"github.com/iAmSomeone2/asus-bios-renamer/build-tools/pkg/fetch"
	"github.com/iAmSomeone2/asus-bios-renamer/build-tools/pkg/manifest"
	"github.com/iAmSomeone2/asus-bios-renamer/build-tools/pkg/posix"
)

type builtinCmd func(ctx context.Context, args []string) error

// builtinCmds are always handled inside the process to make sure they behave the same on every platform
var builtinCmds = map[string]builtinCmd{
	"mv":          builtinMv,
	"rm":          builtinRm,
	"mkdir":       builtinMkdir,
	"json2yaml":   builtinJSON2YAML,
	"fetch-tools": builtinFetchTools,
}

var defaultExecHandler = interp.DefaultExecHandler(2)

// makeExecHandler returns an exec handler which runs builtinCmds in-process and passes everything else
// to next (or the interpreter's default handler if next is nil).
func makeExecHandler(next interp.ExecHandlerFunc) interp.ExecHandlerFunc {
	if next == nil {
		next = defaultExecHandler
	}

	return func(ctx context.Context, args []string) error {
		if len(args) > 0 {
			if builtin, ok := builtinCmds[args[0]]; ok {
				err := builtin(ctx, args[1:])
				if err != nil {
					fmt.Fprintf(interp.HandlerCtx(ctx).Stderr, "%s: %s\n", args[0], err)
					return interp.NewExitStatus(1)
				}

				return nil
			}
		}

		return next(ctx, args)
	}
}

var defaultOpenHandler = interp.DefaultOpenHandler()

func openHandler(ctx context.Context, path string, flag int, perm os.FileMode) (io.ReadWriteCloser, error) {
	if path == "/dev/null" {
		path = os.DevNull
	}

	return defaultOpenHandler(ctx, path, flag, perm)
}

func newFlagSet(name string, out io.Writer) *pflag.FlagSet {
	flags := pflag.NewFlagSet(name, pflag.ContinueOnError)
	flags.SetOutput(out)
	return flags
}

func builtinMv(ctx context.Context, args []string) error {
	hc := interp.HandlerCtx(ctx)
	flags := newFlagSet("mv", hc.Stderr)
	err := flags.Parse(args)
	if err != nil {
		return err
	}

	args = flags.Args()
	if len(args) < 2 {
		return eris.New("Not enough parameters")
	}

	return posix.Move(hc.Dir, args[:len(args)-1], args[len(args)-1])
}

func builtinRm(ctx context.Context, args []string) error {
	hc := interp.HandlerCtx(ctx)
	flags := newFlagSet("rm", hc.Stderr)
	recursive := flags.BoolP("recursive", "r", false, "recursively delete directories")
	force := flags.BoolP("force", "f", false, "suppresses errors caused by missing files/folders")
	err := flags.Parse(args)
	if err != nil {
		return err
	}

	return posix.Remove(hc.Dir, flags.Args(), *recursive, *force)
}

func builtinMkdir(ctx context.Context, args []string) error {
	hc := interp.HandlerCtx(ctx)
	flags := newFlagSet("mkdir", hc.Stderr)
	parents := flags.BoolP("parents", "p", false, "create parent directories as needed")
	err := flags.Parse(args)
	if err != nil {
		return err
	}

	return posix.Mkdir(hc.Dir, flags.Args(), *parents)
}

func builtinJSON2YAML(ctx context.Context, args []string) error {
	hc := interp.HandlerCtx(ctx)
	flags := newFlagSet("json2yaml", hc.Stderr)
	output := flags.StringP("output", "o", "", "output file")
	force := flags.BoolP("force", "f", false, "overwrite an existing output file")
	err := flags.Parse(args)
	if err != nil {
		return err
	}

	if flags.NArg() != 1 {
		return eris.New("expected exactly one input file")
	}

	input := flags.Arg(0)
	if *output != "" {
		*output = resolveIn(hc.Dir, *output)
	}

	_, err = manifest.ConvertFile(resolveIn(hc.Dir, input), *output, *force)
	return err
}

func builtinFetchTools(ctx context.Context, args []string) error {
	hc := interp.HandlerCtx(ctx)
	flags := newFlagSet("fetch-tools", hc.Stderr)
	update := flags.BoolP("update", "u", false, "record the checksums of the downloaded files")
	err := flags.Parse(args)
	if err != nil {
		return err
	}

	if flags.NArg() != 0 {
		return eris.New("unexpected arguments")
	}

	_, err = fetch.Run(ctx, hc.Dir, fetch.Options{
		Update:   *update,
		Progress: hc.Stderr,
		Logger:   log(ctx),
	})
	return err
}
