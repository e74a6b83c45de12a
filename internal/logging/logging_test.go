package logging_test

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/medx/lab-extractor/internal/config"
	"github.com/medx/lab-extractor/internal/logging"
)

func TestNewWithWriter_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.NewWithWriter(&config.LoggingConfig{Level: "info", Format: config.LogFormatJSON}, &buf)

	logger.Info("server started", "addr", "0.0.0.0:3000")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if entry["msg"] != "server started" {
		t.Errorf("msg = %v, want server started", entry["msg"])
	}
	if entry["addr"] != "0.0.0.0:3000" {
		t.Errorf("addr = %v, want 0.0.0.0:3000", entry["addr"])
	}
}

func TestNewWithWriter_Text(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.NewWithWriter(&config.LoggingConfig{Level: "info", Format: config.LogFormatText}, &buf)

	logger.Info("server started")

	if !strings.Contains(buf.String(), "msg=\"server started\"") {
		t.Errorf("text output missing message: %q", buf.String())
	}
}

func TestNewWithWriter_LevelFilter(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.NewWithWriter(&config.LoggingConfig{Level: "warn", Format: config.LogFormatJSON}, &buf)

	logger.Info("ignored")
	if buf.Len() != 0 {
		t.Errorf("info record emitted at warn level: %q", buf.String())
	}

	logger.Warn("kept")
	if buf.Len() == 0 {
		t.Error("warn record not emitted at warn level")
	}
}
