package library

import (
	"fmt"
	"io"
	"os"
)

// Backup copies the database at dbPath to dest with durability guarantees.
// A missing source is not an error and reports copied false. On failure
// the partial destination is removed.
func Backup(dbPath, dest string) (copied bool, err error) {
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		return false, nil
	}
	if err := copyFile(dbPath, dest); err != nil {
		return false, fmt.Errorf("library: backup %s: %w", dbPath, err)
	}
	return true, nil
}

// BackupPath returns the backup location for dbPath taken before a
// migration away from version.
func BackupPath(dbPath, version string) string {
	return dbPath + ".pre-" + version + ".bak"
}

func copyFile(src, dst string) error {
	source, err := os.Open(src)
	if err != nil {
		return err
	}
	defer source.Close()

	dest, err := os.Create(dst)
	if err != nil {
		return err
	}

	success := false
	defer func() {
		dest.Close()
		if !success {
			_ = os.Remove(dst)
		}
	}()

	if _, err = io.Copy(dest, source); err != nil {
		return err
	}
	if err := dest.Sync(); err != nil {
		return err
	}

	success = true
	return nil
}
