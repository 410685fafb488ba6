package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewWritesJSONWithProfile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "huddled.log")
	logger, err := New(path, "work", true)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	logger.Debug("dropping inbound message")
	_ = logger.Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	line := string(data)
	if !strings.Contains(line, `"profile":"work"`) {
		t.Errorf("log line missing profile field: %s", line)
	}
	if !strings.Contains(line, `"level":"debug"`) {
		t.Errorf("debug entry not written: %s", line)
	}
}
