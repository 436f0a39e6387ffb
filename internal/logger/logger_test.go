package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"

	"flashcard-backend/internal/config"
)

func TestInit_ParsesLevel(t *testing.T) {
	defer logrus.SetOutput(os.Stderr)

	Init(&config.Config{LogLevel: "debug"})
	if logrus.GetLevel() != logrus.DebugLevel {
		t.Fatalf("expected debug level, got %s", logrus.GetLevel())
	}

	Init(&config.Config{LogLevel: "nonsense"})
	if logrus.GetLevel() != logrus.InfoLevel {
		t.Fatalf("expected fallback to info level, got %s", logrus.GetLevel())
	}
}

func TestInit_WritesToFile(t *testing.T) {
	defer logrus.SetOutput(os.Stderr)

	path := filepath.Join(t.TempDir(), "app.log")
	Init(&config.Config{LogLevel: "info", LogPath: path, LogJSON: true})

	logrus.WithField("component", "test").Info("hello")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("expected log file to exist: %v", err)
	}
	if len(data) == 0 {
		t.Fatalf("expected log file to contain output")
	}
}
