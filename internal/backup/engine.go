// Package backup archives game world files into compressed tarballs with a
// BLAKE3 manifest and prunes old archives per session.
package backup

import (
	"archive/tar"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/zeebo/blake3"

	"github.com/lupus-manager/lupus/internal/logging"
	"github.com/lupus-manager/lupus/internal/session"
)

// Unbounded is the retention used when a session sets no keep count.
const Unbounded = session.UnboundedKeep

const timeLayout = "20060102T150405Z"

// ErrNoSource is returned when a request carries no source path.
var ErrNoSource = errors.New("backup source not set")

// Request asks for one backup of Source into Destination.
type Request struct {
	Session     string
	Source      string
	Destination string
	Interval    int
	Keep        int
}

// Archive is the result of a completed backup.
type Archive struct {
	Path         string
	ManifestPath string
	Size         int64
	Digest       string
	Pruned       []string
}

// Engine writes archives. The zero value is not usable; use NewEngine.
type Engine struct {
	compression Compression
	now         func() time.Time
	log         *logrus.Entry
}

func NewEngine(c Compression) *Engine {
	return &Engine{
		compression: c,
		now:         time.Now,
		log:         logging.NewLogger("backup"),
	}
}

// Compression returns the compression the engine writes with.
func (e *Engine) Compression() Compression {
	return e.compression
}

// Backup archives req.Source, writes its manifest and then prunes the
// session's older archives down to req.Keep. A Keep below 1 is treated as
// Unbounded.
func (e *Engine) Backup(ctx context.Context, req Request) (*Archive, error) {
	if req.Source == "" {
		return nil, ErrNoSource
	}
	if req.Session == "" || filepath.Base(req.Session) != req.Session {
		return nil, fmt.Errorf("invalid session name %q", req.Session)
	}
	if _, err := os.Stat(req.Source); err != nil {
		return nil, fmt.Errorf("backup source: %w", err)
	}

	dir := filepath.Join(req.Destination, req.Session)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating backup dir: %w", err)
	}

	created := e.now().UTC()
	name := fmt.Sprintf("%s-%s.tar%s", req.Session, created.Format(timeLayout), e.compression.Ext())
	path := filepath.Join(dir, name)

	size, digest, err := e.writeArchive(ctx, req.Source, path)
	if err != nil {
		return nil, err
	}

	m := &Manifest{
		Session:     req.Session,
		Source:      req.Source,
		Archive:     name,
		Compression: e.compression.String(),
		Size:        size,
		Digest:      digest,
		Interval:    req.Interval,
		CreatedAt:   created,
	}
	if req.Keep > 0 && req.Keep != Unbounded {
		m.Keep = req.Keep
	}
	manifestPath, err := writeManifest(m, path)
	if err != nil {
		return nil, err
	}

	a := &Archive{Path: path, ManifestPath: manifestPath, Size: size, Digest: digest}

	keep := req.Keep
	if keep < 1 {
		keep = Unbounded
	}
	pruned, err := Prune(req.Destination, req.Session, keep)
	a.Pruned = pruned
	if err != nil {
		// The new archive is complete; a failed prune is retried on the
		// next backup.
		e.log.WithError(err).WithField("session", req.Session).Warn("Pruning old backups failed")
	}
	return a, nil
}

// writeArchive streams a tar of source through the compressor into a temp
// file, hashing the compressed bytes on the way, then renames it to path.
func (e *Engine) writeArchive(ctx context.Context, source, path string) (int64, string, error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".archive-*.tmp")
	if err != nil {
		return 0, "", fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			tmp.Close()
			os.Remove(tmpPath)
		}
	}()

	h := blake3.New()
	counter := &countingWriter{}
	cw, err := newWriter(io.MultiWriter(tmp, h, counter), e.compression)
	if err != nil {
		return 0, "", err
	}
	tw := tar.NewWriter(cw)

	if err := addTree(ctx, tw, source); err != nil {
		return 0, "", err
	}
	if err := tw.Close(); err != nil {
		return 0, "", fmt.Errorf("closing tar: %w", err)
	}
	if err := cw.Close(); err != nil {
		return 0, "", fmt.Errorf("closing compressor: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return 0, "", fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return 0, "", fmt.Errorf("renaming archive: %w", err)
	}
	committed = true

	return counter.n, hex.EncodeToString(h.Sum(nil)), nil
}

// addTree adds source to tw. Entry names are relative to source's parent,
// so a world directory "world" is stored as "world/...".
func addTree(ctx context.Context, tw *tar.Writer, source string) error {
	root := filepath.Dir(filepath.Clean(source))
	return filepath.WalkDir(source, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		link := ""
		if info.Mode()&fs.ModeSymlink != 0 {
			if link, err = os.Readlink(p); err != nil {
				return err
			}
		} else if !info.Mode().IsRegular() && !info.IsDir() {
			return nil
		}

		hdr, err := tar.FileInfoHeader(info, link)
		if err != nil {
			return fmt.Errorf("tar header %s: %w", p, err)
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		hdr.Name = filepath.ToSlash(rel)
		if info.IsDir() {
			hdr.Name += "/"
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return fmt.Errorf("writing tar header %s: %w", p, err)
		}
		if !info.Mode().IsRegular() {
			return nil
		}

		f, err := os.Open(p)
		if err != nil {
			return err
		}
		defer f.Close()
		if _, err := io.CopyN(tw, f, hdr.Size); err != nil {
			return fmt.Errorf("archiving %s: %w", p, err)
		}
		return nil
	})
}

type countingWriter struct{ n int64 }

func (c *countingWriter) Write(p []byte) (int, error) {
	c.n += int64(len(p))
	return len(p), nil
}
