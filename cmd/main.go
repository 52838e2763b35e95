package cmd

import (
	"context"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/iAmSomeone2/asus-bios-renamer/build-tools/pkg"
	"github.com/iAmSomeone2/asus-bios-renamer/build-tools/pkg/buildsys"
	"github.com/iAmSomeone2/asus-bios-renamer/build-tools/pkg/buildsys/cmd"
)

var rootCmd = &cobra.Command{
	Use:   "tool",
	Short: "Build tools for the BIOS Renamer Flatpak",
	Long: `This command bundles the tools that are used to build the Flatpak package of the BIOS Renamer.
This includes generating the cargo sources, running flatpak-builder and downloading the generator scripts.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().String("root", "", "directory containing the packaging files (default: searched upwards from the working directory)")
	rootCmd.PersistentFlags().String("config", "", "config file (default: flatpak.toml in the project root)")
	rootCmd.PersistentFlags().String("log-level", "", "one of debug, info, warn or error (overrides log.level)")

	rootCmd.AddCommand(cmd.RootCmd)
	rootCmd.AddCommand(cmd.TaskCommand("generate-sources", "Generates the cargo sources manifest",
		`Creates the Python virtual environment if it's missing, installs the generator's dependencies,
converts Cargo.lock into a Flatpak sources manifest and removes the intermediate JSON file.`))
	rootCmd.AddCommand(cmd.TaskCommand("build", "Builds the Flatpak",
		`Generates the cargo sources and runs flatpak-builder --force-clean with the application's manifest.`))
	rootCmd.AddCommand(cmd.TaskCommand("install", "Builds the Flatpak and installs it for the current user", ""))
	rootCmd.AddCommand(cmd.TaskCommand("clean", "Removes the build directory and flatpak-builder's cache", ""))
}

// Execute runs the CLI and exits with the status of the failed command
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	err := rootCmd.ExecuteContext(ctx)
	if err != nil {
		pkg.PrintError(err.Error())
		stop()
		os.Exit(buildsys.ExitCode(err))
	}
}
