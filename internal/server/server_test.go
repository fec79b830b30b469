package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/friendsincode/mixtape/internal/config"
	"github.com/friendsincode/mixtape/internal/events"
	"github.com/friendsincode/mixtape/internal/logbuffer"
	"github.com/friendsincode/mixtape/internal/models"
)

func testConfig() *config.Config {
	return &config.Config{
		Environment:       "test",
		HTTPBind:          "127.0.0.1",
		HTTPPort:          0,
		DBBackend:         config.DatabaseSQLite,
		DBDSN:             ":memory:",
		LedgerBackend:     config.LedgerSQL,
		RecommendCooldown: 30 * time.Minute,
		DefaultMaxResults: 20,
		AutoplayThreshold: 5,
		RandomSeed:        11,
		EventBusBackend:   config.BusMemory,
	}
}

func TestCoreRecommendsFromDatabase(t *testing.T) {
	ctx := context.Background()
	core, err := NewCore(ctx, testConfig(), nil, zerolog.Nop())
	if err != nil {
		t.Fatalf("new core: %v", err)
	}
	defer core.Close()

	tracks := []models.Track{
		{Path: "/a.mp3", Title: "A", Genre: "rock", Hype: 90},
		{Path: "/b.mp3", Title: "B", Genre: "jazz", Hype: 10},
		{Path: "/c.mp3", Title: "C", Genre: "rock", Hype: 70},
	}
	if err := core.DB.Create(&tracks).Error; err != nil {
		t.Fatalf("seed: %v", err)
	}

	got, err := core.Recommend.GetPresetRecommendations(ctx, "energetic", 2)
	if err != nil {
		t.Fatalf("preset: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 tracks, got %d", len(got))
	}

	core.Recommend.RecordSongPlayed(ctx, "/a.mp3")
	if core.Ledger.Score("/a.mp3") <= 0 {
		t.Fatal("expected positive score after play")
	}
}

func TestServerRoutes(t *testing.T) {
	srv, err := New(testConfig(), logbuffer.New(32), zerolog.Nop())
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	defer srv.Close()

	tests := []struct {
		path string
		want int
		body string
	}{
		{"/healthz", http.StatusOK, `"ledger_backend":"sql"`},
		{"/api/v1/health", http.StatusOK, `"ok"`},
		{"/api/v1/presets", http.StatusOK, `"energetic"`},
		{"/api/v1/autoplay", http.StatusOK, `"mode":"normal"`},
		{"/metrics", http.StatusOK, "mixtape_"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rr := httptest.NewRecorder()
			srv.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, tt.path, nil))
			if rr.Code != tt.want {
				t.Fatalf("expected %d, got %d", tt.want, rr.Code)
			}
			if !strings.Contains(rr.Body.String(), tt.body) {
				t.Fatalf("expected body to contain %q, got %s", tt.body, rr.Body.String())
			}
		})
	}
}

func TestServerReloadsLibraryOnRemoteInvalidation(t *testing.T) {
	srv, err := New(testConfig(), logbuffer.New(32), zerolog.Nop())
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	defer srv.Close()

	if got := len(srv.autoplay.Library()); got != 0 {
		t.Fatalf("expected empty library, got %d", got)
	}
	if err := srv.core.DB.Create(&models.Track{Path: "/new.mp3", Title: "New"}).Error; err != nil {
		t.Fatalf("seed: %v", err)
	}

	bus := srv.bus.(*events.Bus)
	deadline := time.Now().Add(2 * time.Second)
	for bus.SubscriberCount(events.EventCatalogInvalidated) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("listener never subscribed")
		}
		time.Sleep(10 * time.Millisecond)
	}
	srv.bus.Publish(events.EventCatalogInvalidated, events.Payload{"node": "other-node"})

	for len(srv.autoplay.Library()) != 1 {
		if time.Now().After(deadline) {
			t.Fatal("library was not reloaded")
		}
		time.Sleep(10 * time.Millisecond)
	}
}
