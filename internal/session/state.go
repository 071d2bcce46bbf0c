package session

import (
	"encoding/json"
	"time"
)

// Status is the scheduling status of a session as seen from the outside.
type Status int

const (
	Pending Status = iota
	Active
	Excluded
	Failed
)

var statusNames = map[Status]string{
	Pending:  "pending",
	Active:   "active",
	Excluded: "excluded",
	Failed:   "failed",
}

var statusFromName = map[string]Status{
	"pending":  Pending,
	"active":   Active,
	"excluded": Excluded,
	"failed":   Failed,
}

func (s Status) String() string {
	if n, ok := statusNames[s]; ok {
		return n
	}
	return "unknown"
}

func (s Status) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *Status) UnmarshalJSON(data []byte) error {
	var n string
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	if v, ok := statusFromName[n]; ok {
		*s = v
	}
	return nil
}

// SessionState is the introspection view of a session: what the control
// plane did with it and when. It is not consulted for scheduling decisions.
type SessionState struct {
	Name           string     `json:"name"`
	Status         Status     `json:"status"`
	Reason         string     `json:"reason,omitempty"`
	FilePath       string     `json:"filePath,omitempty"`
	BackupInterval int        `json:"backupInterval,omitempty"`
	BackupKeep     int        `json:"backupKeep,omitempty"`
	OpenedAt       *time.Time `json:"openedAt,omitempty"`
	LinesRelayed   int        `json:"linesRelayed"`
	LastLineAt     *time.Time `json:"lastLineAt,omitempty"`
	BackupCount    int        `json:"backupCount"`
	LastBackupAt   *time.Time `json:"lastBackupAt,omitempty"`
	LastBackupPath string     `json:"lastBackupPath,omitempty"`
	LastError      string     `json:"lastError,omitempty"`
	Order          int        `json:"order"`
}

// NewState builds the initial state for a loaded session.
func NewState(s Session) *SessionState {
	st := &SessionState{Name: s.Name, Status: Pending}
	if s.Game != nil {
		st.FilePath = s.Game.FilePath
		st.BackupInterval = s.Game.BackupInterval
		st.BackupKeep = s.Game.BackupKeep
	}
	return st
}

// Clone returns a deep copy of the state.
func (s *SessionState) Clone() *SessionState {
	c := *s
	c.OpenedAt = cloneTime(s.OpenedAt)
	c.LastLineAt = cloneTime(s.LastLineAt)
	c.LastBackupAt = cloneTime(s.LastBackupAt)
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
