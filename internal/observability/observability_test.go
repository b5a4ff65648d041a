package observability

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	"go.opentelemetry.io/contrib/processors/minsev"
)

func TestSeverity(t *testing.T) {
	tests := []struct {
		level slog.Level
		want  minsev.Severity
	}{
		{slog.LevelDebug - 4, minsev.SeverityDebug},
		{slog.LevelDebug, minsev.SeverityDebug},
		{slog.LevelInfo, minsev.SeverityInfo},
		{slog.LevelWarn, minsev.SeverityWarn},
		{slog.LevelError, minsev.SeverityError},
	}

	for _, tt := range tests {
		if got := severity(tt.level); got != tt.want {
			t.Errorf("severity(%v) = %v, want %v", tt.level, got, tt.want)
		}
	}
}

func TestNewLocalHandler(t *testing.T) {
	var buf bytes.Buffer

	slog.New(newLocalHandler(&buf, slog.LevelInfo, "json")).Info("hello", "k", "v")
	if !strings.HasPrefix(buf.String(), "{") {
		t.Errorf("json handler wrote %q, want JSON object", buf.String())
	}

	buf.Reset()
	logger := slog.New(newLocalHandler(&buf, slog.LevelWarn, "text"))
	logger.Info("dropped")
	logger.Warn("kept")
	if strings.Contains(buf.String(), "dropped") || !strings.Contains(buf.String(), "kept") {
		t.Errorf("text handler wrote %q, want only warn record", buf.String())
	}
}

func TestInstrumentRejectsUnknownExporter(t *testing.T) {
	if _, err := Instrument(context.Background(), slog.LevelInfo, "text", "carrier-pigeon"); err == nil {
		t.Error("Instrument() with unknown exporter succeeded, want error")
	}
}

func TestInstrumentWithoutExporter(t *testing.T) {
	original := slog.Default()
	t.Cleanup(func() { slog.SetDefault(original) })

	shutdown, err := Instrument(context.Background(), slog.LevelInfo, "text", ExporterNone)
	if err != nil {
		t.Fatalf("Instrument() error = %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("shutdown() error = %v", err)
	}
}
