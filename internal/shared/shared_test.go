package shared

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/charmbracelet/log"
)

func TestParseLogLevel(t *testing.T) {
	tc := []struct {
		in   string
		want log.Level
	}{
		{in: "debug", want: log.DebugLevel},
		{in: "INFO", want: log.InfoLevel},
		{in: " warn ", want: log.WarnLevel},
		{in: "warning", want: log.WarnLevel},
		{in: "error", want: log.ErrorLevel},
		{in: "", want: log.InfoLevel},
		{in: "verbose", want: log.InfoLevel},
	}

	for _, tt := range tc {
		t.Run(tt.in, func(t *testing.T) {
			if got := ParseLogLevel(tt.in); got != tt.want {
				t.Errorf("ParseLogLevel(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := WithLogger(NewLogger(&buf), "batch", "b-1")
	logger.Info("batch submitted", "tracks", 3)

	out := buf.String()
	for _, want := range []string{"batch submitted", "batch=b-1", "tracks=3"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected log output to contain %q, got %q", want, out)
		}
	}

	buf.Reset()
	SetLogLevel(logger, log.ErrorLevel)
	logger.Info("suppressed")
	if buf.Len() != 0 {
		t.Errorf("expected info to be suppressed at error level, got %q", buf.String())
	}
}

func TestNewFileLogger(t *testing.T) {
	if _, err := NewFileLogger("", LoggingConfig{}); err == nil {
		t.Error("expected error for empty path")
	}

	path := filepath.Join(t.TempDir(), "logs", "beatq.log")
	logger, err := NewFileLogger(path, LoggingConfig{MaxSizeMB: 1})
	if err != nil {
		t.Fatalf("failed to create file logger: %v", err)
	}
	logger.Info("hello")
}

func TestFormatDuration(t *testing.T) {
	tc := []struct {
		seconds int
		want    string
	}{
		{seconds: 0, want: "--:--"},
		{seconds: -4, want: "--:--"},
		{seconds: 5, want: "0:05"},
		{seconds: 200, want: "3:20"},
		{seconds: 3725, want: "1:02:05"},
	}

	for _, tt := range tc {
		t.Run(tt.want, func(t *testing.T) {
			if got := FormatDuration(tt.seconds); got != tt.want {
				t.Errorf("FormatDuration(%d) = %q, want %q", tt.seconds, got, tt.want)
			}
		})
	}
}

func TestFormatBytes(t *testing.T) {
	tc := []struct {
		in   int64
		want string
	}{
		{in: 0, want: "0 B"},
		{in: 1023, want: "1023 B"},
		{in: 1024, want: "1.0 KiB"},
		{in: 1536 * 1024, want: "1.5 MiB"},
		{in: 3 * 1024 * 1024 * 1024, want: "3.0 GiB"},
	}

	for _, tt := range tc {
		t.Run(tt.want, func(t *testing.T) {
			if got := FormatBytes(tt.in); got != tt.want {
				t.Errorf("FormatBytes(%d) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestGenerateID(t *testing.T) {
	a, b := GenerateID(), GenerateID()
	if a == b {
		t.Error("expected distinct ids")
	}
	if len(a) != 36 {
		t.Errorf("expected uuid string length 36, got %d", len(a))
	}
}
