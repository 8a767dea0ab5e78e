package library

import (
	"fmt"
	"os"
)

// EnvLibrary names the environment variable consulted by Resolve.
const EnvLibrary = "MARQUEE_LIBRARY"

// Resolve picks the library ID: explicit, then MARQUEE_LIBRARY, then
// DefaultID.
func Resolve(explicit string) (string, error) {
	if explicit != "" {
		if err := ValidateID(explicit); err != nil {
			return "", fmt.Errorf("invalid library ID %q: %w", explicit, err)
		}
		return explicit, nil
	}

	if env := os.Getenv(EnvLibrary); env != "" {
		if err := ValidateID(env); err != nil {
			return "", fmt.Errorf("invalid %s %q: %w", EnvLibrary, env, err)
		}
		return env, nil
	}

	return DefaultID, nil
}
