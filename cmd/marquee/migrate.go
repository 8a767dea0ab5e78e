package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hyperengineering/marquee"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Migrate the library to a schema generation",
	Long: `Migrate the library forward to a schema generation (default: latest).

Reshaping stages export the library to an intermediate file before they
rebuild the tables. If a run is interrupted, rerun with --resume to finish
the stage from that file.`,
	Example: `  marquee migrate
  marquee migrate --to 2.0.0 --backup
  marquee migrate --resume`,
	Args: cobra.NoArgs,
	RunE: runMigrate,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the library's migration status",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

var (
	migrateTo     string
	migrateResume bool
	migrateBackup bool
)

func init() {
	migrateCmd.Flags().StringVar(&migrateTo, "to", "", "Target schema version (default: latest)")
	migrateCmd.Flags().BoolVar(&migrateResume, "resume", false, "Resume an interrupted reshaping stage")
	migrateCmd.Flags().BoolVar(&migrateBackup, "backup", false, "Copy the database aside before migrating")

	rootCmd.AddCommand(migrateCmd, statusCmd)
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if migrateTo != "" {
		cfg.SchemaVersion = migrateTo
	}
	before, err := marquee.Inspect(cmd.Context(), cfg)
	if err != nil {
		return err
	}

	var s *marquee.Store
	err = runWithSpinner(cmd.ErrOrStderr(), "Migrating library", func() error {
		var openErr error
		s, openErr = openLibrary(cmd, func(c *marquee.Config) {
			if migrateTo != "" {
				c.SchemaVersion = migrateTo
			}
			c.ResumeMigration = migrateResume
			c.BackupBeforeMigrate = migrateBackup
		})
		return openErr
	})
	if err != nil {
		return err
	}
	defer s.Close()

	from := before.Current
	if from == "" {
		from = "empty"
	}
	if outputJSON {
		return outputAsJSON(cmd, map[string]string{
			"from": from,
			"to":   s.SchemaVersion(),
			"path": s.Path(),
		})
	}

	out := cmd.OutOrStdout()
	if from == s.SchemaVersion() {
		printInfo(out, "Library already at %s", from)
		return nil
	}
	printSuccess(out, "Migrated %s to %s", from, s.SchemaVersion())
	printField(out, "Path:", s.Path())
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	st, err := marquee.Inspect(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	if outputJSON {
		return outputAsJSON(cmd, st)
	}

	out := cmd.OutOrStdout()
	current := st.Current
	if current == "" {
		current = "(empty)"
	}
	printField(out, "Current:", current)
	printField(out, "Latest: ", st.Latest)
	if len(st.Pending) > 0 {
		printField(out, "Pending:", strings.Join(st.Pending, ", "))
	} else {
		printField(out, "Pending:", "none")
	}
	if st.Interrupted != "" {
		printWarning(out, "Stage %s was interrupted (marker %s)", st.Interrupted, st.Marker)
		fmt.Fprintf(out, "  Export: %s\n", st.ExportPath)
		printMuted(out, "Run 'marquee migrate --resume' to finish it.")
	}
	return nil
}
