package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hyperengineering/marquee"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the library",
	Long: `Export the library as an interchange JSON document or as a copy of
the SQLite database.`,
	Example: `  marquee export -o movies.json
  marquee export --format sqlite -o backup.db`,
	Args: cobra.NoArgs,
	RunE: runExport,
}

var importCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import movies from an interchange JSON document",
	Example: `  marquee import movies.json
  marquee import movies.json --strategy append --dry-run`,
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

var (
	exportOutput string
	exportFormat string

	importStrategy string
	importDryRun   bool
)

func init() {
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "Output file (default: stdout for json)")
	exportCmd.Flags().StringVar(&exportFormat, "format", "json", "Export format: json, sqlite")

	importCmd.Flags().StringVar(&importStrategy, "strategy", string(marquee.MergeStrategySkip), "Merge strategy: skip, append")
	importCmd.Flags().BoolVar(&importDryRun, "dry-run", false, "Report what would be imported without writing")

	rootCmd.AddCommand(exportCmd, importCmd)
}

func runExport(cmd *cobra.Command, args []string) error {
	format := strings.ToLower(exportFormat)
	switch format {
	case "json":
	case "sqlite":
		if exportOutput == "" {
			return fmt.Errorf("--output is required for sqlite exports")
		}
	default:
		return fmt.Errorf("invalid format %q: must be 'json' or 'sqlite'", exportFormat)
	}

	s, err := openLibrary(cmd, nil)
	if err != nil {
		return err
	}
	defer s.Close()
	ctx := cmd.Context()

	if format == "sqlite" {
		if err := runWithSpinner(cmd.ErrOrStderr(), "Copying database", func() error {
			return s.ExportSQLite(ctx, exportOutput)
		}); err != nil {
			return fmt.Errorf("export: %w", err)
		}
		return reportExport(cmd, exportOutput)
	}

	if exportOutput == "" {
		return s.ExportJSON(ctx, cmd.OutOrStdout())
	}

	f, err := os.Create(exportOutput)
	if err != nil {
		return fmt.Errorf("create %s: %w", exportOutput, err)
	}
	if err := s.ExportJSON(ctx, f); err != nil {
		f.Close()
		return fmt.Errorf("export: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", exportOutput, err)
	}
	return reportExport(cmd, exportOutput)
}

func reportExport(cmd *cobra.Command, path string) error {
	var size int64
	if fi, err := os.Stat(path); err == nil {
		size = fi.Size()
	}
	if outputJSON {
		return outputAsJSON(cmd, map[string]interface{}{"path": path, "bytes": size})
	}
	printSuccess(cmd.OutOrStdout(), "Exported to %s (%s)", path, formatBytes(size))
	return nil
}

func runImport(cmd *cobra.Command, args []string) error {
	var r io.Reader
	if args[0] == "-" {
		r = cmd.InOrStdin()
	} else {
		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("open %s: %w", args[0], err)
		}
		defer f.Close()
		r = f
	}

	s, err := openLibrary(cmd, nil)
	if err != nil {
		return err
	}
	defer s.Close()

	var result *marquee.ImportResult
	err = runWithSpinner(cmd.ErrOrStderr(), "Importing movies", func() error {
		var importErr error
		result, importErr = s.ImportJSON(cmd.Context(), r, marquee.MergeStrategy(importStrategy), importDryRun)
		return importErr
	})
	if err != nil {
		return fmt.Errorf("import: %w", err)
	}
	if outputJSON {
		return outputAsJSON(cmd, result)
	}

	out := cmd.OutOrStdout()
	verb := "Imported"
	if importDryRun {
		verb = "Would import"
	}
	printSuccess(out, "%s %d of %d movie(s)", verb, result.Created, result.Total)
	if result.Skipped > 0 {
		printMuted(out, "Skipped %d", result.Skipped)
	}
	if result.ActorsCreated > 0 {
		printMuted(out, "Created %d actor(s)", result.ActorsCreated)
	}
	for _, e := range result.Errors {
		printError(out, "%s", e)
	}
	return nil
}
