package config

import (
	"os"
	"testing"
)

func TestFirstNonEmpty(t *testing.T) {
	if v := firstNonEmpty("", "foo", "bar"); v != "foo" {
		t.Fatalf("expected 'foo', got %q", v)
	}
	if v := firstNonEmpty(); v != "" {
		t.Fatalf("expected empty, got %q", v)
	}
}

func TestParseInt(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		n, err := parseInt("42")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if n != 42 {
			t.Fatalf("expected 42, got %d", n)
		}
	})
	t.Run("invalid", func(t *testing.T) {
		if _, err := parseInt("notanint"); err == nil {
			t.Fatalf("expected error for invalid int")
		}
	})
}

func withEnv(t *testing.T, key, value string) {
	t.Helper()
	old, had := os.LookupEnv(key)
	t.Cleanup(func() {
		if had {
			_ = os.Setenv(key, old)
		} else {
			_ = os.Unsetenv(key)
		}
	})
	_ = os.Setenv(key, value)
}

func TestIntFromEnv(t *testing.T) {
	key := "HOMERAG_TEST_INT_FROM_ENV"
	_ = os.Unsetenv(key)
	if got := intFromEnv(key, 7); got != 7 {
		t.Fatalf("expected default 7, got %d", got)
	}
	withEnv(t, key, "123")
	if got := intFromEnv(key, 7); got != 123 {
		t.Fatalf("expected 123, got %d", got)
	}
}

func TestBoolFromEnv(t *testing.T) {
	key := "HOMERAG_TEST_BOOL_FROM_ENV"
	_ = os.Unsetenv(key)
	if got := boolFromEnv(key, true); got != true {
		t.Fatalf("expected default true, got %v", got)
	}
	withEnv(t, key, "false")
	// boolFromEnv only recognizes true/1/yes as true; anything else falls
	// through to false, matching the rest of the codebase's env parsing.
	if got := boolFromEnv(key, true); got != false {
		t.Fatalf("expected false, got %v", got)
	}
}

func TestFloatFromEnv(t *testing.T) {
	key := "HOMERAG_TEST_FLOAT_FROM_ENV"
	_ = os.Unsetenv(key)
	if got := floatFromEnv(key, 0.7); got != 0.7 {
		t.Fatalf("expected default 0.7, got %v", got)
	}
	withEnv(t, key, "0.3")
	if got := floatFromEnv(key, 0.7); got != 0.3 {
		t.Fatalf("expected 0.3, got %v", got)
	}
}

func TestLoad_EnvOverridesApplyAndDefaultsFillGaps(t *testing.T) {
	withEnv(t, "EMBEDDING_DIMENSION", "512")
	withEnv(t, "MEMORY_TTL_SECONDS", "60")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Embedding.Dimension != 512 {
		t.Fatalf("expected embedding dimension 512, got %d", cfg.Embedding.Dimension)
	}
	if cfg.Memory.TTLSeconds != 60 {
		t.Fatalf("expected memory ttl 60, got %d", cfg.Memory.TTLSeconds)
	}
	if cfg.Formatter.MaxChars != 4096 {
		t.Fatalf("expected default formatter max_chars, got %d", cfg.Formatter.MaxChars)
	}
}
