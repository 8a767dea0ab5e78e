package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hyperengineering/marquee"
)

var librariesCmd = &cobra.Command{
	Use:   "libraries",
	Short: "List libraries under the data root",
	Long:  `List the library IDs found under $MARQUEE_HOME/libraries (default ~/.marquee/libraries).`,
	Args:  cobra.NoArgs,
	RunE:  runLibraries,
}

func init() {
	rootCmd.AddCommand(librariesCmd)
}

func runLibraries(cmd *cobra.Command, args []string) error {
	ids, err := marquee.Libraries()
	if err != nil {
		return fmt.Errorf("list libraries: %w", err)
	}
	if ids == nil {
		ids = []string{}
	}
	if outputJSON {
		return outputAsJSON(cmd, ids)
	}

	out := cmd.OutOrStdout()
	if len(ids) == 0 {
		fmt.Fprintln(out, "No libraries found.")
		return nil
	}
	current, _ := loadConfig()
	for _, id := range ids {
		if id == current.Library {
			fmt.Fprintf(out, "* %s\n", id)
			continue
		}
		fmt.Fprintf(out, "  %s\n", id)
	}
	return nil
}
