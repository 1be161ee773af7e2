// Package fileutil provides the local file helpers exposed to the UI
// caller: content checksumming and temp-file naming. Pure utility, no
// session state.
package fileutil

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// ErrUnsupported is returned for checksum algorithms this build does not
// implement.
var ErrUnsupported = errors.New("fileutil: unsupported algorithm")

// Checksum reads the file at path and returns the hex digest of its
// contents. Only "sha256" is supported; anything else yields
// ErrUnsupported.
func Checksum(path, algorithm string) (string, error) {
	if algorithm != "sha256" {
		return "", ErrUnsupported
	}

	contents, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	sum := sha256.Sum256(contents)
	return hex.EncodeToString(sum[:]), nil
}

// TempPath returns a fresh path in the system temp directory with the given
// extension (including its dot, e.g. ".ipk"). The file is not created.
func TempPath(extension string) string {
	name := fmt.Sprintf("shellmux-tmp-%s%s", uuid.New(), extension)
	return filepath.Join(os.TempDir(), name)
}
