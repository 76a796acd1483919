package logger_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/capstan/capstan/pkg/logger"
)

func TestLogger_Levels(t *testing.T) {
	var buf bytes.Buffer
	log := logger.CreateLoggerWithOutput("", "debug", &buf)

	log.Debug("debug message")
	log.Info("info message")
	log.Warn("warn message")
	log.Error("error message")

	out := buf.String()
	for _, want := range []string{"debug message", "info message", "warn message", "error message"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected output to contain %q, got:\n%s", want, out)
		}
	}
}

func TestLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log := logger.CreateLoggerWithOutput("", "warn", &buf)

	log.Debug("hidden debug")
	log.Info("hidden info")
	log.Warn("visible warn")

	out := buf.String()
	if strings.Contains(out, "hidden debug") || strings.Contains(out, "hidden info") {
		t.Errorf("expected debug/info to be filtered at warn level, got:\n%s", out)
	}
	if !strings.Contains(out, "visible warn") {
		t.Errorf("expected warn to be logged, got:\n%s", out)
	}
}

func TestLogger_WithPackage(t *testing.T) {
	var buf bytes.Buffer
	log := logger.CreateLoggerWithOutput("", "info", &buf)

	log.WithPackage("core").Info("building")

	if !strings.Contains(buf.String(), "core") {
		t.Errorf("expected package prefix in output, got:\n%s", buf.String())
	}
}

func TestLogger_Fields(t *testing.T) {
	var buf bytes.Buffer
	log := logger.CreateLoggerWithOutput("", "info", &buf)

	log.Info("publishing", logger.WithField("version", "1.2.3"))

	if !strings.Contains(buf.String(), "version=1.2.3") {
		t.Errorf("expected structured field in output, got:\n%s", buf.String())
	}
}
