package backup

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// List returns the session's archives under dest, oldest first. Archive
// names embed a UTC timestamp, so lexical order is creation order.
func List(dest, session string) ([]string, error) {
	dir := filepath.Join(dest, session)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("listing backups: %w", err)
	}

	prefix := session + "-"
	var out []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, prefix) || strings.HasSuffix(name, manifestSuffix) {
			continue
		}
		if !strings.Contains(name, ".tar") {
			continue
		}
		out = append(out, filepath.Join(dir, name))
	}
	sort.Strings(out)
	return out, nil
}

// Prune removes the oldest archives of session, and their manifests, until
// at most keep remain. It returns the removed archive paths.
func Prune(dest, session string, keep int) ([]string, error) {
	if keep < 1 {
		return nil, fmt.Errorf("invalid retention %d", keep)
	}
	archives, err := List(dest, session)
	if err != nil {
		return nil, err
	}
	if len(archives) <= keep {
		return nil, nil
	}

	var removed []string
	var errs []error
	for _, path := range archives[:len(archives)-keep] {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
			continue
		}
		if err := os.Remove(ManifestPath(path)); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
		}
		removed = append(removed, path)
	}
	return removed, errors.Join(errs...)
}
