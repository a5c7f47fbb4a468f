// Package filesystem holds the small set of file operations the library
// layout depends on: name sanitization, directory creation and collision-free
// destination paths.
package filesystem

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"github.com/mpetrov/harmonia/internal/constants"
)

// SafeName reduces a title to a filesystem-safe directory or file name.
// Letters, digits and a small set of punctuation survive; everything else is
// dropped. A name that sanitizes to nothing becomes "Unknown".
func SafeName(name string) string {
	mapped := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return r
		}
		if strings.ContainsRune(constants.SafeNameChars, r) {
			return r
		}
		return -1
	}, name)

	mapped = strings.TrimSpace(mapped)
	if mapped == "" {
		return "Unknown"
	}
	return mapped
}

func EnsureDir(path string) error {
	return os.MkdirAll(path, constants.DirPermissions)
}

// UniquePath returns path unchanged when nothing occupies it, otherwise a
// variant with a timestamp suffix before the extension.
func UniquePath(path string) string {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return path
	}

	ext := filepath.Ext(path)
	base := strings.TrimSuffix(path, ext)
	return fmt.Sprintf("%s-%d%s", base, time.Now().Unix(), ext)
}

// MoveFile renames src to dst, falling back to copy-and-delete across
// filesystems. Download staging and the music library often sit on different
// mounts.
func MoveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}

	data, err := os.ReadFile(src)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", src, err)
	}
	if err := os.WriteFile(dst, data, constants.FilePermissions); err != nil {
		return fmt.Errorf("failed to write %s: %w", dst, err)
	}
	return os.Remove(src)
}

func WriteFile(path string, data []byte) error {
	if err := EnsureDir(filepath.Dir(path)); err != nil {
		return err
	}
	return os.WriteFile(path, data, constants.FilePermissions)
}

func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
