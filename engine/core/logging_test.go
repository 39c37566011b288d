package core

import (
	"testing"

	"github.com/charmbracelet/log"
)

func TestSetLevelFromEnv(t *testing.T) {
	t.Setenv("DVZ_LOG_LEVEL", "warn")
	SetLevelFromEnv()
	if got := getLogger().GetLevel(); got != log.WarnLevel {
		t.Errorf("expected WarnLevel after DVZ_LOG_LEVEL=warn, got %v", got)
	}

	t.Setenv("DVZ_LOG_LEVEL", "debug")
	SetLevelFromEnv()
	if got := getLogger().GetLevel(); got != log.DebugLevel {
		t.Errorf("expected DebugLevel after DVZ_LOG_LEVEL=debug, got %v", got)
	}
}

func TestSetLevelFromEnvIgnoresUnsetAndInvalid(t *testing.T) {
	getLogger().SetLevel(log.InfoLevel)

	t.Setenv("DVZ_LOG_LEVEL", "")
	SetLevelFromEnv()
	if got := getLogger().GetLevel(); got != log.InfoLevel {
		t.Errorf("expected level unchanged on unset DVZ_LOG_LEVEL, got %v", got)
	}

	t.Setenv("DVZ_LOG_LEVEL", "not-a-level")
	SetLevelFromEnv()
	if got := getLogger().GetLevel(); got != log.InfoLevel {
		t.Errorf("expected level unchanged on invalid DVZ_LOG_LEVEL, got %v", got)
	}
}
