package datasets

import (
	"fmt"
	"os"
	"path/filepath"
)

// resolvePath interprets p relative to the manifest directory unless it is
// absolute.
func resolvePath(manifestDir, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(manifestDir, p)
}

// Auto-discovery helpers

func autoFindManifest(patterns []string) (string, error) {
	for _, pattern := range patterns {
		matches, err := filepath.Glob(pattern)
		if err == nil && len(matches) > 0 {
			return matches[0], nil
		}
	}
	return "", fmt.Errorf("no manifest found in common locations")
}

// FindManifest finds a CSV manifest in a specified directory
func FindManifest(dir string) (string, error) {
	pattern := filepath.Join(dir, "*.csv")
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return "", err
	}
	if len(matches) == 0 {
		return "", fmt.Errorf("no CSV manifest found in %s", dir)
	}
	return matches[0], nil
}

// AutoFindManifest tries the usual locations relative to the working
// directory.
func AutoFindManifest() (string, error) {
	return autoFindManifest([]string{
		"assets/manifest*.csv",
		"../assets/manifest*.csv",
		"../../assets/manifest*.csv",
	})
}

// ResolveManifest turns a -manifest style argument into a manifest file. An
// empty path is auto-discovered, a directory is searched with FindManifest and
// anything else is returned unchanged.
func ResolveManifest(path string) (string, error) {
	if path == "" {
		return AutoFindManifest()
	}
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("failed to stat manifest %s: %w", path, err)
	}
	if info.IsDir() {
		return FindManifest(path)
	}
	return path, nil
}
