package core

import (
	"testing"
	"time"
)

func TestParseIntEnv(t *testing.T) {
	tests := []struct {
		value string
		want  int
	}{
		{"", 7},
		{"42", 42},
		{" 12 ", 12},
		{"-3", -3},
		{"abc", 7},
		{"4.5", 7},
	}
	for _, tt := range tests {
		t.Setenv("TEST_INT", tt.value)
		if got := ParseIntEnv("TEST_INT", 7); got != tt.want {
			t.Errorf("ParseIntEnv(%q) = %d, want %d", tt.value, got, tt.want)
		}
	}
}

func TestParseFloat64Env(t *testing.T) {
	t.Setenv("TEST_FLOAT", "0.75")
	if got := ParseFloat64Env("TEST_FLOAT", 1); got != 0.75 {
		t.Errorf("ParseFloat64Env() = %v, want 0.75", got)
	}
	t.Setenv("TEST_FLOAT", "nope")
	if got := ParseFloat64Env("TEST_FLOAT", 1); got != 1 {
		t.Errorf("ParseFloat64Env(invalid) = %v, want default", got)
	}
}

func TestParseBoolEnv(t *testing.T) {
	tests := []struct {
		value string
		def   bool
		want  bool
	}{
		{"", true, true},
		{"true", false, true},
		{"ON", false, true},
		{"1", false, true},
		{"no", true, false},
		{"0", true, false},
		{"maybe", true, true},
	}
	for _, tt := range tests {
		t.Setenv("TEST_BOOL", tt.value)
		if got := ParseBoolEnv("TEST_BOOL", tt.def); got != tt.want {
			t.Errorf("ParseBoolEnv(%q, %v) = %v, want %v", tt.value, tt.def, got, tt.want)
		}
	}
}

func TestParseDurationEnv(t *testing.T) {
	t.Setenv("TEST_DURATION", "90")
	if got := ParseDurationEnv("TEST_DURATION", 5); got != 90*time.Second {
		t.Errorf("ParseDurationEnv() = %v, want 90s", got)
	}
}

func TestGetEnvOrDefault(t *testing.T) {
	t.Setenv("TEST_STRING", "   ")
	if got := GetEnvOrDefault("TEST_STRING", "fallback"); got != "fallback" {
		t.Errorf("GetEnvOrDefault(blank) = %q, want fallback", got)
	}
	t.Setenv("TEST_STRING", "value")
	if got := GetEnvOrDefault("TEST_STRING", "fallback"); got != "value" {
		t.Errorf("GetEnvOrDefault() = %q, want value", got)
	}
}
