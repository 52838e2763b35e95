// Package cmd implements the CLI glue between cobra and the buildsys package
package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/iAmSomeone2/asus-bios-renamer/build-tools/pkg"
	"github.com/iAmSomeone2/asus-bios-renamer/build-tools/pkg/buildsys"
	"github.com/iAmSomeone2/asus-bios-renamer/build-tools/pkg/config"
	"github.com/iAmSomeone2/asus-bios-renamer/build-tools/pkg/pipeline"
)

// Session bundles everything a build command needs
type Session struct {
	Ctx    context.Context
	Root   string
	Config *config.Config
	Logger *zerolog.Logger
}

// NewLogger returns a logger which either prints coloured messages to out or writes JSON lines
func NewLogger(cfg *config.Config, out io.Writer) zerolog.Logger {
	var logger zerolog.Logger
	if cfg.Log.JSON {
		logger = zerolog.New(out).With().Timestamp().Logger()
	} else {
		logger = zerolog.New(NewConsoleWriter(out))
	}

	return logger.Level(cfg.LogLevel())
}

func stringFlag(cmd *cobra.Command, name string) (string, error) {
	if cmd.Flags().Lookup(name) == nil {
		return "", nil
	}

	return cmd.Flags().GetString(name)
}

// Setup reads the global --root, --config and --log-level flags, loads the config and attaches a logger
// to the command's context
func Setup(cmd *cobra.Command) (*Session, error) {
	start, err := stringFlag(cmd, "root")
	if err != nil {
		return nil, err
	}

	var root string
	if start != "" {
		root = start
	} else {
		wd, err := os.Getwd()
		if err != nil {
			return nil, eris.Wrap(err, "Failed to retrieve the current working directory")
		}

		root, err = pkg.GetProjectRoot(wd)
		if err != nil {
			return nil, err
		}
	}

	cfgFile, err := stringFlag(cmd, "config")
	if err != nil {
		return nil, err
	}

	cfg, err := config.Load(root, cfgFile)
	if err != nil {
		return nil, err
	}

	level, err := stringFlag(cmd, "log-level")
	if err != nil {
		return nil, err
	}
	if level != "" {
		if err = cfg.SetLogLevel(level); err != nil {
			return nil, err
		}
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	logger := NewLogger(cfg, os.Stderr)
	return &Session{
		Ctx:    buildsys.WithLogger(ctx, &logger),
		Root:   root,
		Config: cfg,
		Logger: &logger,
	}, nil
}

// RunOptions reads the --dry and --force flags
func RunOptions(cmd *cobra.Command) (buildsys.RunOptions, error) {
	opts := buildsys.RunOptions{}

	var err error
	opts.DryRun, err = cmd.Flags().GetBool("dry")
	if err != nil {
		return opts, err
	}

	opts.Force, err = cmd.Flags().GetBool("force")
	if err != nil {
		return opts, err
	}

	return opts, nil
}

// AddRunFlags adds the --dry and --force flags used by RunOptions
func AddRunFlags(cmd *cobra.Command) {
	cmd.Flags().BoolP("dry", "n", false, "dry run; only print the commands, don't execute anything")
	cmd.Flags().BoolP("force", "f", false, "force build; always execute the passed steps even if they don't have to run")
}

// Run loads the project's tasks and executes the named tasks in order
func (s *Session) Run(names []string, options map[string]string, opts buildsys.RunOptions) error {
	tasks, err := pipeline.Load(s.Ctx, s.Root, s.Config, options)
	if err != nil {
		return err
	}

	for _, name := range names {
		if _, ok := tasks[name]; !ok {
			return eris.Errorf("Task %s not found", name)
		}

		pkg.PrintTask(fmt.Sprintf("Running %s", name))
		err = buildsys.RunTask(s.Ctx, s.Root, name, tasks, opts)
		if err != nil {
			return err
		}
	}

	return nil
}

// TaskCommand returns a command which runs the named task with the --dry and --force flags
func TaskCommand(name, short, long string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   name,
		Short: short,
		Long:  long,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := RunOptions(cmd)
			if err != nil {
				return err
			}

			session, err := Setup(cmd)
			if err != nil {
				return err
			}

			return session.Run([]string{name}, nil, opts)
		},
	}
	AddRunFlags(cmd)

	return cmd
}

var RootCmd = &cobra.Command{
	Use:   "task [KEY=VALUE...] [task...]",
	Short: "Runs the tasks from tasks.star",
	Long: `This command loads the project's tasks.star (or the built-in tasks) and executes the given tasks.
KEY=VALUE arguments override task file options. Without tasks, the available tasks are listed.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		taskArgs := make([]string, 0)
		options := make(map[string]string)

		opts, err := RunOptions(cmd)
		if err != nil {
			return err
		}

		for _, part := range args {
			pos := strings.Index(part, "=")
			if pos > -1 {
				options[part[:pos]] = part[pos+1:]
			} else {
				taskArgs = append(taskArgs, part)
			}
		}

		session, err := Setup(cmd)
		if err != nil {
			return err
		}

		if len(taskArgs) > 0 {
			return session.Run(taskArgs, options, opts)
		}

		taskList, err := pipeline.Load(session.Ctx, session.Root, session.Config, options)
		if err != nil {
			return err
		}

		printTaskList(cmd.OutOrStdout(), taskList)
		return nil
	},
}

func printTaskList(out io.Writer, taskList buildsys.TaskList) {
	fmt.Fprintln(out, "Available tasks:")
	maxNameLen := 0
	sortedNames := make([]string, 0)
	for _, task := range taskList {
		nameLen := len(task.Short)
		if nameLen > maxNameLen {
			maxNameLen = nameLen
		}

		sortedNames = append(sortedNames, task.Short)
	}

	sort.Strings(sortedNames)

	lineFmt := fmt.Sprintf(" * %%-%ds %%s\n", maxNameLen+3)
	for _, name := range sortedNames {
		fmt.Fprintf(out, lineFmt, name+":", taskList[name].Desc)
	}
}

func init() {
	AddRunFlags(RootCmd)
}
