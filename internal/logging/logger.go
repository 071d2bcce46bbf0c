// Package logging hands out component loggers that share one configured
// logrus base logger.
package logging

import (
	"io"
	"os"
	"sync"

	"github.com/sirupsen/logrus"
)

// LevelEnv overrides the configured log level, but not an explicit flag.
const LevelEnv = "LUPUS_LOG_LEVEL"

var (
	base      = logrus.New()
	loggers   = make(map[string]*logrus.Entry)
	loggersMu sync.Mutex
)

func init() {
	base.SetOutput(os.Stderr)
	base.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
}

// ResolveLevel picks the effective level: flag if given, then
// LUPUS_LOG_LEVEL, then the configured level.
func ResolveLevel(flag, configured string) string {
	if flag != "" {
		return flag
	}
	if env := os.Getenv(LevelEnv); env != "" {
		return env
	}
	return configured
}

// Configure applies level and format ("text" or "json") to every component
// logger. An unknown level falls back to info.
func Configure(level, format string) {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	base.SetLevel(lvl)

	switch format {
	case "json":
		base.SetFormatter(&logrus.JSONFormatter{})
	default:
		base.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
}

// SetOutput redirects all component loggers.
func SetOutput(w io.Writer) {
	base.SetOutput(w)
}

// NewLogger returns the logger for a component. Loggers are cached, so
// repeated calls with the same component return the same entry.
func NewLogger(component string) *logrus.Entry {
	loggersMu.Lock()
	defer loggersMu.Unlock()

	if logger, ok := loggers[component]; ok {
		return logger
	}
	entry := base.WithField("component", component)
	loggers[component] = entry
	return entry
}
