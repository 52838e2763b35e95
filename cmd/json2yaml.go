package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/iAmSomeone2/asus-bios-renamer/build-tools/pkg"
	"github.com/iAmSomeone2/asus-bios-renamer/build-tools/pkg/manifest"
)

var json2yamlCmd = &cobra.Command{
	Use:   "json2yaml input.json",
	Short: "Converts a JSON sources file into a YAML manifest fragment",
	Long: `Converts JSON into block style YAML with the same key order. If the input is "-", stdin is
converted to stdout. Existing output files are only replaced with --force.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		output, err := cmd.Flags().GetString("output")
		if err != nil {
			return err
		}

		force, err := cmd.Flags().GetBool("force")
		if err != nil {
			return err
		}

		if args[0] == "-" {
			return manifest.Convert(os.Stdin, cmd.OutOrStdout())
		}

		output, err = manifest.ConvertFile(args[0], output, force)
		if err != nil {
			return err
		}

		pkg.PrintSubtask("Wrote " + output)
		return nil
	},
}

func init() {
	json2yamlCmd.Flags().StringP("output", "o", "", "output file (default: the input with a .yml extension)")
	json2yamlCmd.Flags().BoolP("force", "f", false, "overwrite an existing output file")

	rootCmd.AddCommand(json2yamlCmd)
}
