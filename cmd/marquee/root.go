package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/hyperengineering/marquee"
)

var (
	cfgFile    string
	outputJSON bool

	// v layers flags over MARQUEE_* environment variables over the
	// optional config file.
	v = newViper()
)

var rootCmd = &cobra.Command{
	Use:   "marquee",
	Short: "Marquee - movie library CLI",
	Long: `Marquee keeps a local library of movies and their casts.

Libraries are SQLite files that are migrated to the current schema
generation when opened.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func newViper() *viper.Viper {
	nv := viper.New()
	nv.SetEnvPrefix("MARQUEE")
	nv.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	nv.AutomaticEnv()
	return nv
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "Config file (yaml, toml or json)")
	pf.String("library", "", `Library ID (default: $MARQUEE_LIBRARY or "default")`)
	pf.String("db-path", "", "Path to the library database (overrides --library)")
	pf.String("schema-version", "", "Schema version to open the library at (default: latest)")
	pf.String("export-path", "", "Where reshaping migrations write their intermediate export")
	pf.Bool("debug", false, "Enable debug logging")
	pf.String("debug-log", "", "Debug log file (default: stderr)")
	pf.BoolVar(&outputJSON, "json", false, "Output as JSON")

	bindGlobalFlags()
}

// bindGlobalFlags binds the persistent library flags into v.
func bindGlobalFlags() {
	pf := rootCmd.PersistentFlags()
	for _, name := range []string{"library", "db-path", "schema-version", "export-path", "debug", "debug-log"} {
		_ = v.BindPFlag(name, pf.Lookup(name))
	}
}

// loadConfig resolves the library configuration from flags, environment
// and the config file, in that order.
func loadConfig() (marquee.Config, error) {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return marquee.Config{}, fmt.Errorf("read config %s: %w", cfgFile, err)
		}
	}

	cfg := marquee.Config{
		DBPath:        v.GetString("db-path"),
		Library:       v.GetString("library"),
		SchemaVersion: v.GetString("schema-version"),
		ExportPath:    v.GetString("export-path"),
		Debug:         v.GetBool("debug"),
		DebugLogPath:  v.GetString("debug-log"),
	}
	return cfg.WithDefaults(), nil
}

// openLibrary opens the configured library. adjust may tweak the config
// first.
func openLibrary(cmd *cobra.Command, adjust func(*marquee.Config)) (*marquee.Store, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if adjust != nil {
		adjust(&cfg)
	}

	logger, err := marquee.NewLogger(cfg.Debug, cfg.DebugLogPath)
	if err != nil {
		return nil, err
	}
	cfg.Logger = logger.With(zap.String("command", cmd.Name()))

	s, err := marquee.Open(cmd.Context(), cfg)
	if err != nil {
		return nil, fmt.Errorf("open library: %w", err)
	}
	return s, nil
}
