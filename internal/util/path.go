package util

import (
	"fmt"
	"path/filepath"
	"strings"
)

// RestoreDirName is the directory under the backup root that receives downloads.
const RestoreDirName = "to_restore"

// ElementDir returns the staging directory of one element under root.
func ElementDir(root, title string) (string, error) {
	if err := CheckPathComponent(title); err != nil {
		return "", err
	}
	return filepath.Join(root, title), nil
}

// RestoreDir returns the download area for restores under root.
func RestoreDir(root string) string {
	return filepath.Join(root, RestoreDirName)
}

// CheckPathComponent rejects names that would escape their parent directory
// when used as a single path element.
func CheckPathComponent(name string) error {
	switch {
	case name == "" || name == "." || name == "..":
		return fmt.Errorf("invalid name %q", name)
	case strings.ContainsAny(name, `/\`):
		return fmt.Errorf("name %q must not contain path separators", name)
	case name == RestoreDirName:
		return fmt.Errorf("name %q is reserved", name)
	}
	return nil
}

// WithinDir reports whether target resolves to a location inside dir.
func WithinDir(dir, target string) bool {
	rel, err := filepath.Rel(filepath.Clean(dir), filepath.Clean(target))
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
