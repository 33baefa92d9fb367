package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLevelFiltering(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	if err := Init(path, "warn"); err != nil {
		t.Fatalf("Init() error = %v", err)
	}

	Errorf("test", "boom %d", 1)
	Warnf("test", "careful")
	Infof("test", "ignored")
	Debugf("test", "ignored too")
	Close()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	out := string(data)
	if !strings.Contains(out, "ERROR [test] boom 1") {
		t.Errorf("missing error line in %q", out)
	}
	if !strings.Contains(out, "WARN [test] careful") {
		t.Errorf("missing warn line in %q", out)
	}
	if strings.Contains(out, "ignored") {
		t.Errorf("level filter leaked: %q", out)
	}
}

func TestInitRejectsUnknownLevel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	if err := Init(path, "chatty"); err == nil {
		t.Error("expected error for unknown level")
	}
}

func TestDisabledLoggerIsNoop(t *testing.T) {
	// Without Init every call must be safe.
	Close()
	Infof("test", "dropped")
}
