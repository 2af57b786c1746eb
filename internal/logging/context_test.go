package logging_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"reshelve/internal/logging"
	"reshelve/internal/services"
)

func TestWithContextAddsFields(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "context.log")

	logger, err := logging.New(logging.Options{
		Format:           "console",
		Level:            "info",
		OutputPaths:      []string{logPath},
		ErrorOutputPaths: []string{logPath},
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	ctx := services.WithStage(services.WithGroupKey(context.Background(), "5__pc__game.7z"), "download")
	logging.WithContext(ctx, logger).Info("contextual log")

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	line := string(content)
	if !strings.Contains(line, "group=5__pc__game.7z") {
		t.Fatalf("group field missing: %q", line)
	}
	if !strings.Contains(line, "stage=download") {
		t.Fatalf("stage field missing: %q", line)
	}
}

func TestWithContextWithoutFieldsReturnsSameLogger(t *testing.T) {
	t.Parallel()

	logger := logging.NewNop()
	if got := logging.WithContext(context.Background(), logger); got != logger {
		t.Fatal("expected the original logger when the context carries no fields")
	}
}
