package session

// CursorTable maps a session name to the last line count observed for it.
//
// The table has a single writer (the broadcast scheduler) and is not safe for
// concurrent use. Entries only ever move forward.
type CursorTable map[string]int

// NewCursorTable returns an empty table.
func NewCursorTable() CursorTable {
	return make(CursorTable)
}

// Set records the baseline cursor for a session.
func (c CursorTable) Set(name string, lines int) {
	c[name] = lines
}

// Get returns the cursor for name and whether the session is tracked.
func (c CursorTable) Get(name string) (int, bool) {
	n, ok := c[name]
	return n, ok
}

// Advance moves the cursor for name to lines. Untracked names and values
// lower than the current cursor are ignored. It reports whether the cursor
// moved.
func (c CursorTable) Advance(name string, lines int) bool {
	cur, ok := c[name]
	if !ok || lines <= cur {
		return false
	}
	c[name] = lines
	return true
}
