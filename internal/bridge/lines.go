package bridge

import (
	"bufio"
	"io"
	"os"
	"strings"
)

// logFile caches how far a session's log has been counted so that the
// next fetch can seek instead of rescanning from the start.
type logFile struct {
	path   string
	lines  int   // complete lines before offset
	offset int64 // byte offset just past the last counted newline
}

// fetch returns the complete lines with index >= cursor and the total line
// count. A trailing line without a newline is left for the next call.
func (lf *logFile) fetch(cursor int) ([]string, int, error) {
	f, err := os.Open(lf.path)
	if err != nil {
		return nil, 0, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, 0, err
	}
	if info.Size() < lf.offset {
		// Truncated or replaced; count again from the start.
		lf.lines, lf.offset = 0, 0
	}

	start, line := int64(0), 0
	if lf.lines <= cursor {
		start, line = lf.offset, lf.lines
	}
	if start > 0 {
		if _, err := f.Seek(start, io.SeekStart); err != nil {
			return nil, 0, err
		}
	}

	var out []string
	offset := start
	reader := bufio.NewReader(f)
	for {
		text, err := reader.ReadString('\n')
		if err != nil && err != io.EOF {
			return nil, 0, err
		}
		if len(text) == 0 || text[len(text)-1] != '\n' {
			break
		}
		offset += int64(len(text))
		if line >= cursor {
			out = append(out, strings.TrimRight(text, "\r\n"))
		}
		line++
		if err == io.EOF {
			break
		}
	}

	lf.lines, lf.offset = line, offset
	return out, line, nil
}

// count returns the number of complete lines without collecting them.
func (lf *logFile) count() (int, error) {
	_, n, err := lf.fetch(int(^uint(0) >> 1))
	return n, err
}
