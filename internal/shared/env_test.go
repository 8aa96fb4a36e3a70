// Copyright 2025 Castle Bravo Project
// SPDX-License-Identifier: MIT

package shared

import (
	"log/slog"
	"testing"
)

func TestGetEnvDefault(t *testing.T) {
	t.Setenv("IGNITION_TEST_VAR", "from-env")
	if got := GetEnvDefault("IGNITION_TEST_VAR", "fallback"); got != "from-env" {
		t.Errorf("GetEnvDefault() = %q, want from-env", got)
	}

	t.Setenv("IGNITION_TEST_VAR", "")
	if got := GetEnvDefault("IGNITION_TEST_VAR", "fallback"); got != "fallback" {
		t.Errorf("GetEnvDefault() = %q, want fallback for empty value", got)
	}
}

func TestNewSlogHandler(t *testing.T) {
	t.Setenv(EnvLogFormat, "text")
	if _, ok := NewSlogHandler().(*slog.TextHandler); !ok {
		t.Error("LOG_FORMAT=text did not produce a text handler")
	}

	t.Setenv(EnvLogFormat, "")
	if _, ok := NewSlogHandler().(*slog.JSONHandler); !ok {
		t.Error("default format is not JSON")
	}
}
