package main

import (
	"testing"

	"github.com/rs/zerolog"

	"github.com/web3guy0/polywhale/internal/config"
)

func TestLogLevel(t *testing.T) {
	t.Parallel()
	cases := []struct {
		debug bool
		level string
		want  zerolog.Level
	}{
		{false, "info", zerolog.InfoLevel},
		{false, "warn", zerolog.WarnLevel},
		{false, "trace", zerolog.TraceLevel},
		{false, "bogus", zerolog.InfoLevel},
		{false, "", zerolog.InfoLevel},
		{true, "error", zerolog.DebugLevel}, // DEBUG overrides LOG_LEVEL
	}
	for _, c := range cases {
		got := logLevel(&config.Config{Debug: c.debug, LogLevel: c.level})
		if got != c.want {
			t.Errorf("logLevel(debug=%v, %q) = %v, want %v", c.debug, c.level, got, c.want)
		}
	}
}
