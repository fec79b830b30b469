package logbuffer

import (
	"testing"
	"time"
)

func TestWriterCapturesJSONLines(t *testing.T) {
	buf := New(10)
	w := NewWriter(buf, nil)

	line := []byte(`{"level":"warn","component":"ledger","message":"persist failed","time":1760000000,"path":"a.mp3"}`)
	if _, err := w.Write(line); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := w.Write([]byte("not json\n")); err != nil {
		t.Fatalf("write plain: %v", err)
	}

	entries := buf.Query(QueryParams{})
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	got := entries[0]
	if got.Level != "warn" || got.Component != "ledger" || got.Message != "persist failed" {
		t.Fatalf("unexpected entry %+v", got)
	}
	if got.Fields["path"] != "a.mp3" {
		t.Fatalf("expected path field, got %v", got.Fields)
	}
	if got.Timestamp.Unix() != 1760000000 {
		t.Fatalf("unexpected timestamp %v", got.Timestamp)
	}
}

func TestQueryFilters(t *testing.T) {
	buf := New(3)
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	buf.Add(LogEntry{Timestamp: base, Level: "info", Component: "api", Message: "dropped by capacity"})
	buf.Add(LogEntry{Timestamp: base.Add(time.Minute), Level: "info", Component: "api", Message: "request served"})
	buf.Add(LogEntry{Timestamp: base.Add(2 * time.Minute), Level: "warn", Component: "autoplay", Message: "fallback used"})
	buf.Add(LogEntry{Timestamp: base.Add(3 * time.Minute), Level: "info", Component: "autoplay", Message: "queue extended"})

	tests := []struct {
		name   string
		params QueryParams
		want   []string
	}{
		{name: "all", params: QueryParams{}, want: []string{"request served", "fallback used", "queue extended"}},
		{name: "level", params: QueryParams{Level: "warn"}, want: []string{"fallback used"}},
		{name: "component", params: QueryParams{Component: "autoplay"}, want: []string{"fallback used", "queue extended"}},
		{name: "since", params: QueryParams{Since: base.Add(150 * time.Second)}, want: []string{"queue extended"}},
		{name: "search", params: QueryParams{Search: "QUEUE"}, want: []string{"queue extended"}},
		{name: "descending limit", params: QueryParams{Descending: true, Limit: 2}, want: []string{"queue extended", "fallback used"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := buf.Query(tt.params)
			if len(got) != len(tt.want) {
				t.Fatalf("expected %d entries, got %d", len(tt.want), len(got))
			}
			for i := range got {
				if got[i].Message != tt.want[i] {
					t.Errorf("entry %d: got %q want %q", i, got[i].Message, tt.want[i])
				}
			}
		})
	}

	stats := buf.Stats()
	if stats.Count != 3 || stats.Capacity != 3 || stats.LevelCount["info"] != 2 {
		t.Fatalf("unexpected stats %+v", stats)
	}
	if len(stats.Components) != 2 {
		t.Fatalf("expected 2 components, got %v", stats.Components)
	}
}
