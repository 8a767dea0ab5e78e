package marquee

import (
	"os"

	"go.uber.org/zap"

	"github.com/hyperengineering/marquee/internal/library"
	"github.com/hyperengineering/marquee/internal/schema"
)

// Config configures Open.
type Config struct {
	// DBPath is the SQLite database file. Derived from Library when empty.
	DBPath string

	// Library is the library ID. If empty, resolved as explicit >
	// MARQUEE_LIBRARY env > "default".
	Library string

	// SchemaVersion is the generation to migrate to, "M.m.p".
	// Defaults to the latest shipped generation.
	SchemaVersion string

	// ExportPath is where a reshaping migration writes its intermediate
	// export. Defaults to a file next to the database.
	ExportPath string

	// ResumeMigration continues a reshaping migration an earlier run left
	// half-applied instead of failing.
	ResumeMigration bool

	// BackupBeforeMigrate copies the database file aside before any stage
	// runs.
	BackupBeforeMigrate bool

	// Debug enables development logging.
	Debug bool

	// DebugLogPath is the path to write debug logs.
	// Defaults to stderr if empty.
	DebugLogPath string

	// Logger overrides Debug and DebugLogPath.
	Logger *zap.Logger
}

// DefaultConfig returns a Config for the default library at the latest
// schema version.
func DefaultConfig() Config {
	return Config{
		Library:       library.DefaultID,
		DBPath:        library.DBPath(library.DefaultID),
		SchemaVersion: schema.Latest().Version.String(),
	}
}

// ConfigFromEnv reads configuration from environment variables.
//
//	MARQUEE_DB_PATH          → DBPath
//	MARQUEE_LIBRARY          → Library
//	MARQUEE_SCHEMA_VERSION   → SchemaVersion
//	MARQUEE_EXPORT_PATH      → ExportPath
//	MARQUEE_DEBUG            → Debug (any non-empty value enables)
//	MARQUEE_DEBUG_LOG        → DebugLogPath
func ConfigFromEnv() Config {
	return Config{
		DBPath:        os.Getenv("MARQUEE_DB_PATH"),
		Library:       os.Getenv(library.EnvLibrary),
		SchemaVersion: os.Getenv("MARQUEE_SCHEMA_VERSION"),
		ExportPath:    os.Getenv("MARQUEE_EXPORT_PATH"),
		Debug:         os.Getenv("MARQUEE_DEBUG") != "",
		DebugLogPath:  os.Getenv("MARQUEE_DEBUG_LOG"),
	}
}

// Validate checks the configuration for errors.
// Returns *ValidationError for invalid fields.
func (c *Config) Validate() error {
	if c.DBPath == "" {
		return &ValidationError{Field: "DBPath", Message: "required: path to SQLite database"}
	}

	if c.Library != "" {
		if err := library.ValidateID(c.Library); err != nil {
			return &ValidationError{Field: "Library", Message: err.Error()}
		}
	}

	if c.SchemaVersion != "" {
		v, err := schema.ParseVersion(c.SchemaVersion)
		if err != nil {
			return &ValidationError{Field: "SchemaVersion", Message: err.Error()}
		}
		if _, ok := schema.Lookup(v); !ok {
			return &ValidationError{Field: "SchemaVersion", Message: "no shipped generation " + v.String()}
		}
	}

	return nil
}

// WithDefaults fills in default values for unset fields.
func (c Config) WithDefaults() Config {
	if c.Library == "" {
		resolved, err := library.Resolve("")
		if err == nil {
			c.Library = resolved
		} else {
			c.Library = library.DefaultID
		}
	}

	if c.DBPath == "" {
		c.DBPath = library.DBPath(c.Library)
	}
	if c.ExportPath == "" {
		c.ExportPath = library.ExportPathFor(c.DBPath)
	}
	if c.SchemaVersion == "" {
		c.SchemaVersion = schema.Latest().Version.String()
	}

	return c
}

func (c Config) targetVersion() schema.Version {
	v, err := schema.ParseVersion(c.SchemaVersion)
	if err != nil {
		return schema.Latest().Version
	}
	return v
}

// LatestSchemaVersion returns the newest schema generation Open can migrate to.
func LatestSchemaVersion() string {
	return schema.Latest().Version.String()
}

// SchemaVersions lists every schema generation in ascending order.
func SchemaVersions() []string {
	cat := schema.Catalogue()
	out := make([]string, len(cat))
	for i, m := range cat {
		out[i] = m.Version.String()
	}
	return out
}

// Libraries lists the library IDs under the data root, sorted.
func Libraries() ([]string, error) {
	return library.List(library.DefaultRoot())
}
