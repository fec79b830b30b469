package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/friendsincode/mixtape/internal/models"
)

func TestParseMoods(t *testing.T) {
	got, err := parseMoods([]string{"hype=80", " Melodic = 20 "})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if got[models.MoodHype] != 80 || got[models.MoodMelodic] != 20 {
		t.Fatalf("unexpected moods %v", got)
	}

	for _, bad := range []string{"hype", "sleepy=10", "hype=101", "hype=x"} {
		if _, err := parseMoods([]string{bad}); err == nil {
			t.Fatalf("expected error for %q", bad)
		}
	}

	if got, err := parseMoods(nil); err != nil || got != nil {
		t.Fatalf("expected nil moods, got %v %v", got, err)
	}
}

func TestPrintTracks(t *testing.T) {
	var buf bytes.Buffer
	if err := printTracks(&buf, nil); err != nil {
		t.Fatalf("print: %v", err)
	}
	if !strings.Contains(buf.String(), "no recommendations") {
		t.Fatalf("unexpected output %q", buf.String())
	}

	buf.Reset()
	tracks := []models.Track{{Path: "/a.mp3", Title: "A", Artist: "X", Genre: "rock", Score: 0.5}}
	if err := printTracks(&buf, tracks); err != nil {
		t.Fatalf("print: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 || !strings.Contains(lines[1], "0.500") || !strings.Contains(lines[1], "/a.mp3") {
		t.Fatalf("unexpected output %q", buf.String())
	}
}

func TestPresetListNeedsNoConfig(t *testing.T) {
	var buf bytes.Buffer
	presetCmd.SetOut(&buf)
	if err := runPreset(presetCmd, nil); err != nil {
		t.Fatalf("list presets: %v", err)
	}
	for _, name := range []string{"chill", "energetic", "focus", "party", "workout"} {
		if !strings.Contains(buf.String(), name) {
			t.Fatalf("missing preset %q in %q", name, buf.String())
		}
	}
}
