package session

import "math"

// UnboundedKeep is the retention of a session that sets no backup_keep:
// archives are never pruned.
const UnboundedKeep = math.MaxInt

// Session is one supervised game-server definition. Sessions are loaded once
// at startup and never modified afterwards.
type Session struct {
	Name string      `json:"name" yaml:"name" toml:"name"`
	Game *GameConfig `json:"game,omitempty" yaml:"game,omitempty" toml:"game,omitempty"`
}

// GameConfig describes the world a session runs and how it is backed up.
// Zero values mean the setting is absent.
type GameConfig struct {
	FilePath       string `json:"file_path,omitempty" yaml:"file_path,omitempty" toml:"file_path,omitempty"`
	BackupInterval int    `json:"backup_interval,omitempty" yaml:"backup_interval,omitempty" toml:"backup_interval,omitempty"`
	BackupKeep     int    `json:"backup_keep,omitempty" yaml:"backup_keep,omitempty" toml:"backup_keep,omitempty"`
}

// HasGame reports whether the session has a game configured. Sessions
// without one are never piped or scheduled.
func (s Session) HasGame() bool {
	return s.Game != nil
}

// BackupPolicy returns the backup interval (in scheduler ticks) and the
// retention count. ok is false when the session has no game or no interval.
// keep is UnboundedKeep when no retention limit was configured.
func (s Session) BackupPolicy() (interval, keep int, ok bool) {
	if s.Game == nil || s.Game.BackupInterval <= 0 {
		return 0, 0, false
	}
	keep = s.Game.BackupKeep
	if keep <= 0 {
		keep = UnboundedKeep
	}
	return s.Game.BackupInterval, keep, true
}

// Names returns the session names in list order.
func Names(sessions []Session) []string {
	names := make([]string, len(sessions))
	for i, s := range sessions {
		names[i] = s.Name
	}
	return names
}
