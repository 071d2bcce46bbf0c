package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/lupus-manager/lupus/internal/session"
	"github.com/pelletier/go-toml/v2"
	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// sessionFile mirrors a session definition on disk. Optional numbers are
// pointers so explicit zeroes can be told apart from absent values.
type sessionFile struct {
	Name string    `json:"name" yaml:"name" toml:"name"`
	Game *gameFile `json:"game" yaml:"game" toml:"game"`
}

type gameFile struct {
	FilePath       string `json:"file_path" yaml:"file_path" toml:"file_path"`
	BackupInterval *int   `json:"backup_interval" yaml:"backup_interval" toml:"backup_interval"`
	BackupKeep     *int   `json:"backup_keep" yaml:"backup_keep" toml:"backup_keep"`
}

// LoadSessions reads every session definition in dir, in lexical file order.
// Supported formats are JSON (comments and trailing commas allowed), YAML
// and TOML; other files are ignored. All problems are reported together.
func LoadSessions(dir string) ([]session.Session, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading sessions dir: %w", err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") || !isSessionFile(e.Name()) {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	var (
		sessions []session.Session
		errs     []error
		seen     = make(map[string]string)
	)
	for _, name := range names {
		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		s, err := ParseSession(path, data)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if prev, dup := seen[s.Name]; dup {
			errs = append(errs, fmt.Errorf("%s: session name %q already defined in %s", name, s.Name, prev))
			continue
		}
		seen[s.Name] = name
		sessions = append(sessions, s)
	}

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return sessions, nil
}

// ParseSession decodes one session definition. The format is chosen by the
// file extension and the name defaults to the file's base name.
func ParseSession(path string, data []byte) (session.Session, error) {
	var f sessionFile
	var err error
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".jsonc":
		err = json.Unmarshal(jsonc.ToJSON(data), &f)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &f)
	case ".toml":
		err = toml.Unmarshal(data, &f)
	default:
		return session.Session{}, fmt.Errorf("%s: unsupported session file type", path)
	}
	if err != nil {
		return session.Session{}, fmt.Errorf("parsing %s: %w", path, err)
	}

	if f.Name == "" {
		f.Name = nameFromPath(path)
	}
	s := session.Session{Name: f.Name}
	if f.Game == nil {
		return s, nil
	}

	g := &session.GameConfig{FilePath: f.Game.FilePath}
	if f.Game.BackupInterval != nil {
		if *f.Game.BackupInterval <= 0 {
			return session.Session{}, fmt.Errorf("%s: backup_interval must be positive, got %d", path, *f.Game.BackupInterval)
		}
		g.BackupInterval = *f.Game.BackupInterval
	}
	if f.Game.BackupKeep != nil {
		if *f.Game.BackupKeep < 1 {
			return session.Session{}, fmt.Errorf("%s: backup_keep must be at least 1, got %d", path, *f.Game.BackupKeep)
		}
		g.BackupKeep = *f.Game.BackupKeep
	}
	s.Game = g
	return s, nil
}

func isSessionFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".json", ".jsonc", ".yaml", ".yml", ".toml":
		return true
	}
	return false
}

// nameFromPath returns the file name without directory or extension:
// "sessions/alpha.json" becomes "alpha".
func nameFromPath(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
