package logging

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]logrus.Level{
		"debug":   logrus.DebugLevel,
		" warn ":  logrus.WarnLevel,
		"error":   logrus.ErrorLevel,
		"":        logrus.InfoLevel,
		"verbose": logrus.InfoLevel,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestNew_WritesJSONToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pmt.log")
	log, closer := New(Options{Level: "info", File: path, Service: "pmt-test"})
	log.WithField("task_id", int64(3)).Info("task edited")
	if err := closer.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	var line map[string]any
	if err := json.Unmarshal(raw, &line); err != nil {
		t.Fatalf("log line is not JSON: %v (%q)", err, raw)
	}
	if line["msg"] != "task edited" {
		t.Errorf("msg = %v, want %q", line["msg"], "task edited")
	}
	if line["service"] != "pmt-test" {
		t.Errorf("service = %v, want pmt-test", line["service"])
	}
	if line["task_id"] != float64(3) {
		t.Errorf("task_id = %v, want 3", line["task_id"])
	}
}

func TestNew_LevelFiltersEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pmt.log")
	log, closer := New(Options{Level: "error", File: path})
	log.Info("dropped")
	_ = closer.Close()

	raw, _ := os.ReadFile(path)
	if len(raw) != 0 {
		t.Errorf("expected no output below error level, got %q", raw)
	}
}
