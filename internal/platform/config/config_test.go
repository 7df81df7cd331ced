package config

import (
	"testing"
	"time"
)

func TestGetEnv(t *testing.T) {
	t.Setenv("CFG_TEST_STR", "value")
	if got := GetEnv("CFG_TEST_STR", "fallback"); got != "value" {
		t.Errorf("expected value, got %q", got)
	}
	if got := GetEnv("CFG_TEST_MISSING", "fallback"); got != "fallback" {
		t.Errorf("expected fallback, got %q", got)
	}
}

func TestGetEnvInt(t *testing.T) {
	t.Setenv("CFG_TEST_INT", "42")
	if got := GetEnvInt("CFG_TEST_INT", 7); got != 42 {
		t.Errorf("expected 42, got %d", got)
	}
	t.Setenv("CFG_TEST_BAD_INT", "not a number")
	if got := GetEnvInt("CFG_TEST_BAD_INT", 7); got != 7 {
		t.Errorf("expected fallback 7, got %d", got)
	}
}

func TestGetEnvBool(t *testing.T) {
	t.Setenv("CFG_TEST_BOOL", "true")
	if !GetEnvBool("CFG_TEST_BOOL", false) {
		t.Error("expected true")
	}
	if GetEnvBool("CFG_TEST_MISSING_BOOL", false) {
		t.Error("expected fallback false")
	}
}

func TestGetEnvDuration(t *testing.T) {
	t.Setenv("CFG_TEST_DUR", "1500ms")
	if got := GetEnvDuration("CFG_TEST_DUR", time.Second); got != 1500*time.Millisecond {
		t.Errorf("expected 1.5s, got %v", got)
	}
	t.Setenv("CFG_TEST_BAD_DUR", "soon")
	if got := GetEnvDuration("CFG_TEST_BAD_DUR", time.Second); got != time.Second {
		t.Errorf("expected fallback 1s, got %v", got)
	}
}
