package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func capture(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	orig := Output
	Output = &buf
	t.Cleanup(func() { Output = orig })
	return &buf
}

func TestNewJSON(t *testing.T) {
	buf := capture(t)
	log, err := New("kfxc", "debug", true)
	if err != nil {
		t.Fatal(err)
	}
	log.Debug().Int("entities", 3).Msg("built")
	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("%v: %q", err, buf.String())
	}
	if line["app"] != "kfxc" || line["message"] != "built" || line["entities"] != float64(3) || line["level"] != "debug" {
		t.Fatalf("line = %v", line)
	}
	if _, ok := line["time"]; !ok {
		t.Fatal("no timestamp")
	}
}

func TestNewConsoleFiltersByLevel(t *testing.T) {
	buf := capture(t)
	log, err := New("kfxc", "WARN", false)
	if err != nil {
		t.Fatal(err)
	}
	log.Info().Msg("quiet")
	log.Warn().Msg("loud")
	out := buf.String()
	if strings.Contains(out, "quiet") || !strings.Contains(out, "loud") || !strings.Contains(out, "app=kfxc") {
		t.Fatalf("output = %q", out)
	}
}

func TestNewDefaultsToInfo(t *testing.T) {
	buf := capture(t)
	log, err := New("kfxc", "", true)
	if err != nil {
		t.Fatal(err)
	}
	log.Debug().Msg("hidden")
	log.Info().Msg("shown")
	if strings.Contains(buf.String(), "hidden") || !strings.Contains(buf.String(), "shown") {
		t.Fatalf("output = %q", buf.String())
	}
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	if _, err := New("kfxc", "chatty", false); err == nil {
		t.Fatal("expected error")
	}
}
