package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show library statistics",
	Args:  cobra.NoArgs,
	RunE:  runStats,
}

func init() {
	rootCmd.AddCommand(statsCmd)
}

func runStats(cmd *cobra.Command, args []string) error {
	s, err := openLibrary(cmd, nil)
	if err != nil {
		return err
	}
	defer s.Close()

	st, err := s.Stats(cmd.Context())
	if err != nil {
		return fmt.Errorf("stats: %w", err)
	}
	if outputJSON {
		return outputAsJSON(cmd, st)
	}

	layout := "embedded cast"
	if st.Relational {
		layout = "relational"
	}
	size := "unknown"
	if fi, err := os.Stat(s.Path()); err == nil {
		size = formatBytes(fi.Size())
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Movies:     %d\n", st.Movies)
	fmt.Fprintf(&b, "Favorites:  %d\n", st.Favorites)
	if st.Relational {
		fmt.Fprintf(&b, "Actors:     %d\n", st.Actors)
		fmt.Fprintf(&b, "Links:      %d\n", st.Links)
	}
	fmt.Fprintf(&b, "Schema:     %s (%s)\n", st.SchemaVersion, layout)
	fmt.Fprintf(&b, "File:       %s (%s)", s.Path(), size)

	if isTTY() {
		fmt.Fprintln(cmd.OutOrStdout(), renderPanel("Library", b.String()))
		return nil
	}
	fmt.Fprintln(cmd.OutOrStdout(), b.String())
	return nil
}

// formatBytes renders a size in binary units.
func formatBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(b)/float64(div), "KMGTPE"[exp])
}
