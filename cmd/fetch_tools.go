package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/iAmSomeone2/asus-bios-renamer/build-tools/pkg"
	"github.com/iAmSomeone2/asus-bios-renamer/build-tools/pkg/buildsys/cmd"
	"github.com/iAmSomeone2/asus-bios-renamer/build-tools/pkg/fetch"
)

var fetchToolsCmd = &cobra.Command{
	Use:   "fetch-tools",
	Short: "Downloads the generator scripts",
	Long:  `Downloads and unpacks the tools listed in TOOLS.yml and records their versions in TOOLS.stamps.`,
	Args:  cobra.NoArgs,
	RunE: func(c *cobra.Command, args []string) error {
		update, err := c.Flags().GetBool("update")
		if err != nil {
			return err
		}

		pkg.PrintTask("Loading config")
		session, err := cmd.Setup(c)
		if err != nil {
			return err
		}

		pkg.PrintTask("Downloading tools")
		result, err := fetch.Run(session.Ctx, session.Root, fetch.Options{
			Update:   update,
			Progress: os.Stderr,
			Logger:   session.Logger,
		})
		if result != nil {
			for _, name := range result.Fetched {
				pkg.PrintSubtask(fmt.Sprintf("%s: installed", name))
			}
			for _, name := range result.Current {
				pkg.PrintSubtask(fmt.Sprintf("%s: up to date", name))
			}
			for name, digest := range result.Checksums {
				pkg.PrintSubtask(fmt.Sprintf("%s: recorded checksum %s", name, digest))
			}
		}
		if err != nil {
			return err
		}

		pkg.PrintTask("Done")
		return nil
	},
}

func init() {
	fetchToolsCmd.Flags().BoolP("update", "u", false, "Update checksums")

	rootCmd.AddCommand(fetchToolsCmd)
}
