// Package library locates movie libraries on disk.
//
// A library is one SQLite database identified by a short path-like ID such
// as "home" or "family/kids". Each library lives in its own directory under
// the library root together with its transient migration artifacts.
package library

import (
	"errors"
	"regexp"
	"strings"
)

// ErrInvalidID indicates the library ID format is invalid.
var ErrInvalidID = errors.New("invalid library ID: must be lowercase alphanumeric with hyphens, 1-4 path segments")

// DefaultID is the library used when none is configured.
const DefaultID = "default"

// idRegex validates library IDs: 1-4 "/"-separated segments of lowercase
// alphanumerics and single hyphens, 1-64 characters each.
var idRegex = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]{0,62}[a-z0-9])?(\/[a-z0-9]([a-z0-9-]{0,62}[a-z0-9])?){0,3}$`)

// ValidateID checks the format of a library ID.
func ValidateID(id string) error {
	if id == "" || len(id) > 256 {
		return ErrInvalidID
	}
	if strings.Contains(id, "--") || !idRegex.MatchString(id) {
		return ErrInvalidID
	}
	return nil
}
