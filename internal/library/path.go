package library

import (
	"os"
	"path/filepath"
	"strings"
)

const (
	dbFile     = "library.db"
	exportFile = "reshape-export.json"
)

// EnvHome overrides the marquee home directory.
const EnvHome = "MARQUEE_HOME"

// DefaultRoot returns the directory holding all libraries:
// $MARQUEE_HOME/libraries when set, else ~/.marquee/libraries, or
// ./.marquee/libraries when there is no home directory.
func DefaultRoot() string {
	if h := os.Getenv(EnvHome); h != "" {
		return filepath.Join(h, "libraries")
	}
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		cwd, _ := os.Getwd()
		return filepath.Join(cwd, ".marquee", "libraries")
	}
	return filepath.Join(home, ".marquee", "libraries")
}

// Encode maps a library ID to a directory name ("family/kids" -> "family__kids").
func Encode(id string) string {
	return strings.ReplaceAll(id, "/", "__")
}

// Decode reverses Encode.
func Decode(encoded string) string {
	return strings.ReplaceAll(encoded, "__", "/")
}

// Dir returns the directory of library id under root.
func Dir(root, id string) string {
	return filepath.Join(root, Encode(id))
}

// DBPath returns the database path of library id under the default root.
func DBPath(id string) string {
	return filepath.Join(Dir(DefaultRoot(), id), dbFile)
}

// ExportPath returns where migrations of library id stage their export
// artifact.
func ExportPath(id string) string {
	return filepath.Join(Dir(DefaultRoot(), id), exportFile)
}

// ExportPathFor returns the export artifact path next to an explicit
// database path.
func ExportPathFor(dbPath string) string {
	return filepath.Join(filepath.Dir(dbPath), strings.TrimSuffix(filepath.Base(dbPath), filepath.Ext(dbPath))+"-"+exportFile)
}

// List returns the IDs of the libraries found under root, sorted by
// directory name. A missing root yields no libraries.
func List(root string) ([]string, error) {
	entries, err := os.ReadDir(root)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if _, err := os.Stat(filepath.Join(root, e.Name(), dbFile)); err != nil {
			continue
		}
		ids = append(ids, Decode(e.Name()))
	}
	return ids, nil
}
