package core

import (
	"os"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

var once sync.Once

type logger struct {
	*log.Logger
}

var singleton *logger

func getLogger() *logger {
	if singleton == nil {
		once.Do(
			func() {
				l := log.NewWithOptions(os.Stderr, log.Options{
					ReportCaller:    true,
					ReportTimestamp: true,
					TimeFormat:      time.RFC3339,
					Prefix:          "vizcore",
				})
				l.SetLevel(log.DebugLevel)
				singleton = &logger{l}
			})
	}
	return singleton
}

// SetLevelFromEnv reads DVZ_LOG_LEVEL (debug, info, warn, error, fatal,
// case-insensitive) and applies it to the logger singleton, initializing it
// first if needed. An unset or unrecognized value leaves the level
// unchanged. Called once at Host construction.
func SetLevelFromEnv() {
	raw := strings.TrimSpace(os.Getenv("DVZ_LOG_LEVEL"))
	if raw == "" {
		return
	}
	lvl, err := log.ParseLevel(strings.ToLower(raw))
	if err != nil {
		LogWarn("unrecognized DVZ_LOG_LEVEL %q, ignoring", raw)
		return
	}
	getLogger().SetLevel(lvl)
}

func LogDebug(msg string, args ...interface{}) {
	getLogger().Debugf(msg, args...)
}

func LogInfo(msg string, args ...interface{}) {
	getLogger().Infof(msg, args...)
}

func LogWarn(msg string, args ...interface{}) {
	getLogger().Warnf(msg, args...)
}

func LogError(msg string, args ...interface{}) {
	getLogger().Errorf(msg, args...)
}

func LogFatal(msg string, args ...interface{}) {
	getLogger().Fatalf(msg, args...)
}
