package backup

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/zeebo/blake3"
)

const manifestSuffix = ".manifest.json"

// ErrDigestMismatch is returned by Verify when an archive no longer
// matches its manifest.
var ErrDigestMismatch = errors.New("archive digest mismatch")

// Manifest describes one archive. It is stored next to the archive as
// <archive>.manifest.json.
type Manifest struct {
	Session     string    `json:"session"`
	Source      string    `json:"source"`
	Archive     string    `json:"archive"`
	Compression string    `json:"compression"`
	Size        int64     `json:"size"`
	Digest      string    `json:"blake3"`
	Interval    int       `json:"interval"`
	Keep        int       `json:"keep,omitempty"`
	CreatedAt   time.Time `json:"created"`
}

// ManifestPath returns the manifest path for an archive.
func ManifestPath(archive string) string {
	return archive + manifestSuffix
}

// ReadManifest loads a manifest file.
func ReadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading manifest: %w", err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing manifest %s: %w", path, err)
	}
	return &m, nil
}

// writeManifest writes m next to its archive using a temp file and rename.
func writeManifest(m *Manifest, archivePath string) (string, error) {
	dir := filepath.Dir(archivePath)
	path := ManifestPath(archivePath)

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshaling manifest: %w", err)
	}
	data = append(data, '\n')

	tmp, err := os.CreateTemp(dir, ".manifest-*.tmp")
	if err != nil {
		return "", fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return "", fmt.Errorf("renaming manifest: %w", err)
	}
	committed = true
	return path, nil
}

// Verify recomputes the BLAKE3 digest of the archive a manifest points at
// and compares it with the recorded one. The archive is looked up next to
// the manifest.
func Verify(manifestPath string) (*Manifest, error) {
	m, err := ReadManifest(manifestPath)
	if err != nil {
		return nil, err
	}
	archive := filepath.Join(filepath.Dir(manifestPath), filepath.Base(m.Archive))

	f, err := os.Open(archive)
	if err != nil {
		return m, fmt.Errorf("opening archive: %w", err)
	}
	defer f.Close()

	h := blake3.New()
	n, err := io.Copy(h, f)
	if err != nil {
		return m, fmt.Errorf("hashing archive: %w", err)
	}
	if n != m.Size {
		return m, fmt.Errorf("%w: size %d, manifest says %d", ErrDigestMismatch, n, m.Size)
	}
	if got := hex.EncodeToString(h.Sum(nil)); got != m.Digest {
		return m, fmt.Errorf("%w: got %s, manifest says %s", ErrDigestMismatch, got, m.Digest)
	}
	return m, nil
}
