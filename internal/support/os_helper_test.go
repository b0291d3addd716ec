package support

import (
	"testing"
	"time"
)

func TestGetEnv(t *testing.T) {
	t.Setenv("GREENWEB_TEST_ENV", "value")
	if got := GetEnv("GREENWEB_TEST_ENV", "fallback"); got != "value" {
		t.Fatalf("GetEnv returned %s, want value", got)
	}

	if got := GetEnv("GREENWEB_TEST_ENV_MISSING", "fallback"); got != "fallback" {
		t.Fatalf("GetEnv returned %s, want fallback", got)
	}
}

func TestGetEnvInt(t *testing.T) {
	t.Setenv("GREENWEB_TEST_INT", " 42 ")
	if got := GetEnvInt("GREENWEB_TEST_INT", 7); got != 42 {
		t.Fatalf("GetEnvInt returned %d, want 42", got)
	}

	t.Setenv("GREENWEB_TEST_INT_BAD", "forty-two")
	if got := GetEnvInt("GREENWEB_TEST_INT_BAD", 7); got != 7 {
		t.Fatalf("GetEnvInt returned %d, want fallback 7", got)
	}
}

func TestGetEnvDuration(t *testing.T) {
	t.Setenv("GREENWEB_TEST_SECONDS", "30")
	if got := GetEnvDuration("GREENWEB_TEST_SECONDS", time.Minute); got != 30*time.Second {
		t.Fatalf("GetEnvDuration returned %s, want 30s", got)
	}

	t.Setenv("GREENWEB_TEST_DURATION", "2m")
	if got := GetEnvDuration("GREENWEB_TEST_DURATION", time.Minute); got != 2*time.Minute {
		t.Fatalf("GetEnvDuration returned %s, want 2m", got)
	}

	t.Setenv("GREENWEB_TEST_DURATION_BAD", "soon")
	if got := GetEnvDuration("GREENWEB_TEST_DURATION_BAD", time.Minute); got != time.Minute {
		t.Fatalf("GetEnvDuration returned %s, want fallback", got)
	}
}
