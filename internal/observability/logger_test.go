package observability

import (
	"context"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// TestParseLogLevel verifies that parseLogLevel correctly parses log level
// strings from environment variables, handling case-insensitivity and whitespace.
func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		env    string
		expect zapcore.Level
	}{
		{"", zap.InfoLevel},
		{"INFO", zap.InfoLevel},
		{"DEBUG", zap.DebugLevel},
		{"WARN", zap.WarnLevel},
		{"ERROR", zap.ErrorLevel},
		{"debug", zap.DebugLevel},
		{"  warn  ", zap.WarnLevel},
		{"invalid", zap.InfoLevel},
	}
	for _, tt := range tests {
		level := parseLogLevel(tt.env)
		if got := level.Level(); got != tt.expect {
			t.Errorf("parseLogLevel(%q) = %v, want %v", tt.env, got, tt.expect)
		}
	}
}

func TestNewLogger(t *testing.T) {
	logger, err := NewLogger()
	if err != nil {
		t.Fatalf("NewLogger() error = %v", err)
	}
	if logger == nil {
		t.Fatal("NewLogger() returned nil logger")
	}
	logger.Info("test message")
	_ = logger.Sync() // can fail on /dev/stderr in test env
}

// TestContextHelpers verifies logger and correlation id round-trip through a context and
// that lookups on a bare context return safe defaults.
func TestContextHelpers(t *testing.T) {
	bare := context.Background()
	if LoggerFromContext(bare) == nil {
		t.Fatal("LoggerFromContext(bare) = nil, want no-op logger")
	}
	if got := CorrelationID(bare); got != "" {
		t.Errorf("CorrelationID(bare) = %q, want empty", got)
	}

	logger := zap.NewExample()
	ctx := WithCorrelationID(WithLogger(bare, logger), "abc-123")
	if LoggerFromContext(ctx) != logger {
		t.Error("LoggerFromContext did not return the stored logger")
	}
	if got := CorrelationID(ctx); got != "abc-123" {
		t.Errorf("CorrelationID() = %q, want abc-123", got)
	}
}
