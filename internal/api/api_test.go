package api

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	ws "nhooyr.io/websocket"

	"github.com/friendsincode/mixtape/internal/auth"
	"github.com/friendsincode/mixtape/internal/autoplay"
	"github.com/friendsincode/mixtape/internal/events"
	"github.com/friendsincode/mixtape/internal/ledger"
	"github.com/friendsincode/mixtape/internal/logbuffer"
	"github.com/friendsincode/mixtape/internal/models"
	"github.com/friendsincode/mixtape/internal/recommend"
)

type sliceCatalog []models.Track

func (c sliceCatalog) Tracks(context.Context) ([]models.Track, error) {
	return append([]models.Track(nil), c...), nil
}

func testLibrary(n int) sliceCatalog {
	out := make(sliceCatalog, n)
	for i := range out {
		out[i] = models.Track{
			Path:           fmt.Sprintf("/music/%02d.mp3", i),
			Filename:       fmt.Sprintf("%02d.mp3", i),
			Title:          fmt.Sprintf("Track %d", i),
			Genre:          "electronic",
			Tags:           "upbeat",
			Hype:           (i * 11) % 101,
			AudioEmbedding: []byte{1, 2, 3},
		}
	}
	return out
}

type testEnv struct {
	router  chi.Router
	bus     *events.Bus
	ledger  *ledger.Ledger
	manager *autoplay.Manager
	logs    *logbuffer.Buffer
}

func newTestEnv(t *testing.T, secret []byte) *testEnv {
	t.Helper()
	lib := testLibrary(30)
	bus := events.NewBus()
	l := ledger.New(context.Background(), ledger.NewMemoryStore(), ledger.Options{Backend: "test"}, zerolog.Nop())
	svc := recommend.NewService(lib, l, bus, recommend.Options{Seed: 7}, zerolog.Nop())
	mgr := autoplay.NewManager(svc, svc, bus, autoplay.Options{Seed: 7, Hints: l}, zerolog.Nop())
	logs := logbuffer.New(16)

	a := New(Deps{
		Recommend: svc,
		Autoplay:  mgr,
		Catalog:   lib,
		Bus:       bus,
		LogBuffer: logs,
		JWTSecret: secret,
	}, zerolog.Nop())
	r := chi.NewRouter()
	a.Routes(r)
	return &testEnv{router: r, bus: bus, ledger: l, manager: mgr, logs: logs}
}

func (e *testEnv) do(t *testing.T, method, path, body, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader([]byte(body)))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, req)
	return rr
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder, dst any) {
	t.Helper()
	if err := json.Unmarshal(rr.Body.Bytes(), dst); err != nil {
		t.Fatalf("decode %q: %v", rr.Body.String(), err)
	}
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, nil)
	rr := env.do(t, http.MethodGet, "/api/v1/health", "", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
}

func TestRecommendations(t *testing.T) {
	env := newTestEnv(t, nil)

	rr := env.do(t, http.MethodPost, "/api/v1/recommendations",
		`{"text":"electronic","moods":{"hype":80},"max_results":5,"exclude":["/music/00.mp3"]}`, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if strings.Contains(rr.Body.String(), "audio_blob") {
		t.Fatalf("response leaks embedding blobs: %s", rr.Body.String())
	}

	var resp struct {
		Tracks []trackResponse `json:"tracks"`
		Count  int             `json:"count"`
	}
	decodeBody(t, rr, &resp)
	if resp.Count != 5 || len(resp.Tracks) != 5 {
		t.Fatalf("expected 5 tracks, got count=%d len=%d", resp.Count, len(resp.Tracks))
	}
	for _, tr := range resp.Tracks {
		if tr.Path == "/music/00.mp3" {
			t.Fatal("excluded track returned")
		}
		if len(tr.Moods) != len(models.MoodDimensions) {
			t.Fatalf("expected full mood vector, got %v", tr.Moods)
		}
		if want := strings.TrimPrefix(tr.Path, "/music/"); tr.Filename != want {
			t.Fatalf("expected filename %q, got %q", want, tr.Filename)
		}
	}
}

func TestTrackResponseShape(t *testing.T) {
	data, err := json.Marshal(toTrackResponse(models.Track{Path: "/a.mp3", Filename: "a.mp3"}))
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	for _, key := range []string{"path", "title", "artist", "genre", "tags", "year", "filename", "score"} {
		if _, ok := raw[key]; !ok {
			t.Fatalf("missing %q in %s", key, data)
		}
	}
	if raw["filename"] != "a.mp3" {
		t.Fatalf("unexpected filename %v", raw["filename"])
	}
}

func TestRecommendationsValidation(t *testing.T) {
	env := newTestEnv(t, nil)

	tests := []struct {
		name string
		body string
		want string
	}{
		{"empty exclude path", `{"exclude":[""]}`, "validation_failed"},
		{"text too long", `{"text":"` + strings.Repeat("x", 600) + `"}`, "validation_failed"},
		{"unknown field", `{"genre":"rock"}`, "invalid_request"},
		{"wrong type", `{"text":5}`, "invalid_request"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := env.do(t, http.MethodPost, "/api/v1/recommendations", tt.body, "")
			if rr.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", rr.Code)
			}
			var resp map[string]string
			decodeBody(t, rr, &resp)
			if resp["error"] != tt.want {
				t.Fatalf("expected %q, got %q", tt.want, resp["error"])
			}
		})
	}
}

func TestRecommendationsClampOutOfRangeInput(t *testing.T) {
	env := newTestEnv(t, nil)

	rr := env.do(t, http.MethodPost, "/api/v1/recommendations",
		`{"moods":{"hype":150,"sleepy":10},"max_results":500}`, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var resp struct {
		Count int `json:"count"`
	}
	decodeBody(t, rr, &resp)
	if resp.Count != 30 {
		t.Fatalf("expected the whole library of 30, got %d", resp.Count)
	}
}

func TestPresets(t *testing.T) {
	env := newTestEnv(t, nil)

	rr := env.do(t, http.MethodGet, "/api/v1/presets", "", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var list struct {
		Presets []recommend.Preset `json:"presets"`
	}
	decodeBody(t, rr, &list)
	if len(list.Presets) != 5 {
		t.Fatalf("expected 5 presets, got %d", len(list.Presets))
	}

	rr = env.do(t, http.MethodGet, "/api/v1/presets/chill?max=3", "", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var resp struct {
		Count int `json:"count"`
	}
	decodeBody(t, rr, &resp)
	if resp.Count != 3 {
		t.Fatalf("expected 3 tracks, got %d", resp.Count)
	}

	rr = env.do(t, http.MethodGet, "/api/v1/presets/polka", "", "")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown preset, got %d", rr.Code)
	}
}

func TestFeedback(t *testing.T) {
	env := newTestEnv(t, nil)
	sub := env.bus.Subscribe(events.EventFeedbackRecorded)
	defer env.bus.Unsubscribe(events.EventFeedbackRecorded, sub)

	rr := env.do(t, http.MethodPost, "/api/v1/feedback/played", `{"path":"/music/01.mp3"}`, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if got := env.ledger.Score("/music/01.mp3"); got != ledger.PlayedDelta {
		t.Fatalf("expected score %v, got %v", ledger.PlayedDelta, got)
	}
	select {
	case payload := <-sub:
		if payload["kind"] != recommend.FeedbackPlayed {
			t.Fatalf("unexpected payload %v", payload)
		}
	case <-time.After(time.Second):
		t.Fatal("feedback event not published")
	}

	rr = env.do(t, http.MethodPost, "/api/v1/feedback/loved", `{"path":"/music/01.mp3"}`, "")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown kind, got %d", rr.Code)
	}

	rr = env.do(t, http.MethodPost, "/api/v1/feedback/played", `{}`, "")
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing path, got %d", rr.Code)
	}
}

func TestLearningEndpoints(t *testing.T) {
	env := newTestEnv(t, nil)
	ctx := context.Background()
	env.ledger.RecordPlayed(ctx, "/music/02.mp3")
	env.ledger.RecordPlayed(ctx, "/music/02.mp3")
	env.ledger.RecordPlayed(ctx, "/music/03.mp3")

	rr := env.do(t, http.MethodGet, "/api/v1/learning/stats", "", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var stats struct {
		Stats   ledger.Stats `json:"stats"`
		Summary string       `json:"summary"`
	}
	decodeBody(t, rr, &stats)
	if stats.Stats.TrackedSongs != 2 || stats.Stats.PlayHistory != 3 {
		t.Fatalf("unexpected stats %+v", stats.Stats)
	}
	if !strings.HasPrefix(stats.Summary, "Learning Stats:") {
		t.Fatalf("unexpected summary %q", stats.Summary)
	}

	rr = env.do(t, http.MethodGet, "/api/v1/learning/frequent?limit=1", "", "")
	var freq struct {
		Tracks []ledger.PlayCount `json:"tracks"`
	}
	decodeBody(t, rr, &freq)
	if len(freq.Tracks) != 1 || freq.Tracks[0].Path != "/music/02.mp3" || freq.Tracks[0].Count != 2 {
		t.Fatalf("unexpected frequent plays %+v", freq.Tracks)
	}

	rr = env.do(t, http.MethodPut, "/api/v1/learning/scores", `{"path":"/music/04.mp3","score":9}`, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if got := env.ledger.Score("/music/04.mp3"); got != 1 {
		t.Fatalf("expected clamped score 1, got %v", got)
	}

	rr = env.do(t, http.MethodPut, "/api/v1/learning/scores", `{"path":"/music/04.mp3"}`, "")
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without score, got %d", rr.Code)
	}

	rr = env.do(t, http.MethodPost, "/api/v1/learning/reset", "", "")
	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rr.Code)
	}
	if env.ledger.Stats().TrackedSongs != 0 {
		t.Fatal("ledger not reset")
	}
}

func TestAdminRoutesRequireRole(t *testing.T) {
	secret := []byte("test-secret")
	env := newTestEnv(t, secret)

	listener, err := auth.Issue(secret, auth.Claims{UserID: "l1", Roles: []string{auth.RoleListener}}, time.Hour)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	admin, err := auth.Issue(secret, auth.Claims{UserID: "a1", Roles: []string{auth.RoleAdmin}}, time.Hour)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	tests := []struct {
		name  string
		token string
		want  int
	}{
		{"no token", "", http.StatusUnauthorized},
		{"listener", listener, http.StatusForbidden},
		{"admin", admin, http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := env.do(t, http.MethodPost, "/api/v1/learning/reset", "", tt.token)
			if rr.Code != tt.want {
				t.Fatalf("expected %d, got %d", tt.want, rr.Code)
			}
		})
	}

	rr := env.do(t, http.MethodGet, "/api/v1/learning/stats", "", listener)
	if rr.Code != http.StatusOK {
		t.Fatalf("listener should read stats, got %d", rr.Code)
	}
	rr = env.do(t, http.MethodGet, "/api/v1/health", "", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("health should be public, got %d", rr.Code)
	}
}

func TestAutoplayQueueAndTransport(t *testing.T) {
	env := newTestEnv(t, nil)

	rr := env.do(t, http.MethodPost, "/api/v1/autoplay/queue",
		`{"paths":["/music/01.mp3","/music/02.mp3","/music/03.mp3"]}`, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var st autoplayStateResponse
	decodeBody(t, rr, &st)
	if len(st.Queue) != 3 || st.Current != 0 || !st.Playing {
		t.Fatalf("unexpected state %+v", st)
	}
	if st.SessionID == "" {
		t.Fatal("expected session id")
	}

	rr = env.do(t, http.MethodPost, "/api/v1/autoplay/next", `{"progress":0.1}`, "")
	decodeBody(t, rr, &st)
	if st.Current != 1 {
		t.Fatalf("expected current 1, got %d", st.Current)
	}
	if got := env.ledger.Score("/music/01.mp3"); got >= 0 {
		t.Fatalf("early next should record a skip, score %v", got)
	}

	rr = env.do(t, http.MethodPost, "/api/v1/autoplay/seek", `{"index":2,"progress":0.9}`, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	decodeBody(t, rr, &st)
	if st.Current != 2 {
		t.Fatalf("expected current 2, got %d", st.Current)
	}

	rr = env.do(t, http.MethodPost, "/api/v1/autoplay/seek", `{"index":9}`, "")
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}

	rr = env.do(t, http.MethodPost, "/api/v1/autoplay/previous", "", "")
	decodeBody(t, rr, &st)
	if st.Current != 1 {
		t.Fatalf("expected current 1 after previous, got %d", st.Current)
	}

	rr = env.do(t, http.MethodPost, "/api/v1/autoplay/queue", `{"paths":["/music/nope.mp3"]}`, "")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown track, got %d", rr.Code)
	}

	rr = env.do(t, http.MethodPost, "/api/v1/autoplay/queue", `{"paths":["/music/01.mp3"],"start":4}`, "")
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad start, got %d", rr.Code)
	}
}

func TestAutoplayModeAndThreshold(t *testing.T) {
	env := newTestEnv(t, nil)

	rr := env.do(t, http.MethodPut, "/api/v1/autoplay/mode", `{"mode":"shuffle"}`, "")
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}

	rr = env.do(t, http.MethodPut, "/api/v1/autoplay/mode", `{"mode":"REPEAT_ALL"}`, "")
	var st autoplayStateResponse
	decodeBody(t, rr, &st)
	if st.Mode != autoplay.ModeRepeatAll {
		t.Fatalf("expected repeat_all, got %s", st.Mode)
	}

	rr = env.do(t, http.MethodPost, "/api/v1/autoplay/mode/cycle", "", "")
	decodeBody(t, rr, &st)
	if st.Mode != autoplay.ModeRepeatAll.Next() {
		t.Fatalf("expected %s, got %s", autoplay.ModeRepeatAll.Next(), st.Mode)
	}

	rr = env.do(t, http.MethodPut, "/api/v1/autoplay/threshold", `{"threshold":50}`, "")
	var th map[string]int
	decodeBody(t, rr, &th)
	if th["threshold"] != autoplay.MaxThreshold {
		t.Fatalf("expected clamp to %d, got %d", autoplay.MaxThreshold, th["threshold"])
	}

	rr = env.do(t, http.MethodPut, "/api/v1/autoplay/threshold", `{"threshold":0}`, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 for zero threshold, got %d: %s", rr.Code, rr.Body.String())
	}
	th = nil
	decodeBody(t, rr, &th)
	if th["threshold"] != autoplay.MinThreshold {
		t.Fatalf("expected clamp to %d, got %d", autoplay.MinThreshold, th["threshold"])
	}

	rr = env.do(t, http.MethodPut, "/api/v1/autoplay/threshold", `{}`, "")
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing threshold, got %d", rr.Code)
	}
}

func TestAutoplayExtendsAfterLibraryReload(t *testing.T) {
	env := newTestEnv(t, nil)

	rr := env.do(t, http.MethodPost, "/api/v1/autoplay/library/reload", "", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if got := len(env.manager.Library()); got != 30 {
		t.Fatalf("expected library of 30, got %d", got)
	}

	env.do(t, http.MethodPost, "/api/v1/autoplay/queue", `{"paths":["/music/01.mp3","/music/02.mp3"]}`, "")
	rr = env.do(t, http.MethodPut, "/api/v1/autoplay/mode", `{"mode":"ai_continue"}`, "")
	var st autoplayStateResponse
	decodeBody(t, rr, &st)
	if len(st.Queue) <= 2 {
		t.Fatalf("expected queue to be extended, got %d tracks", len(st.Queue))
	}

	rr = env.do(t, http.MethodPost, "/api/v1/autoplay/advance", "", "")
	var res autoplay.CheckResult
	decodeBody(t, rr, &res)
	if res.Outcome != autoplay.OutcomeNoop {
		t.Fatalf("expected noop once the queue is long enough, got %+v", res)
	}
}

func TestSystemLogs(t *testing.T) {
	env := newTestEnv(t, nil)
	env.logs.Add(logbuffer.LogEntry{Timestamp: time.Now(), Level: "info", Message: "first", Component: "ledger"})
	env.logs.Add(logbuffer.LogEntry{Timestamp: time.Now(), Level: "error", Message: "second", Component: "api"})

	rr := env.do(t, http.MethodGet, "/api/v1/system/logs?level=error", "", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var resp struct {
		Entries []logbuffer.LogEntry `json:"entries"`
		Count   int                  `json:"count"`
	}
	decodeBody(t, rr, &resp)
	if resp.Count != 1 || resp.Entries[0].Message != "second" {
		t.Fatalf("unexpected entries %+v", resp.Entries)
	}
}

func TestEventsStream(t *testing.T) {
	env := newTestEnv(t, nil)
	srv := httptest.NewServer(env.router)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/events?types=" + string(events.EventLedgerReset)
	conn, _, err := ws.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close(ws.StatusNormalClosure, "")

	for env.bus.SubscriberCount(events.EventLedgerReset) == 0 {
		if ctx.Err() != nil {
			t.Fatal("subscriber never registered")
		}
		time.Sleep(10 * time.Millisecond)
	}
	env.bus.Publish(events.EventLedgerReset, events.Payload{"by": "test"})

	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var msg struct {
		Type    string         `json:"type"`
		Payload map[string]any `json:"payload"`
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if msg.Type != string(events.EventLedgerReset) || msg.Payload["by"] != "test" {
		t.Fatalf("unexpected message %+v", msg)
	}
}

func TestParseEventTypes(t *testing.T) {
	got := parseEventTypes(" autoplay.now_playing, ,bogus,learning.reset")
	if len(got) != 2 || got[0] != events.EventNowPlaying || got[1] != events.EventLedgerReset {
		t.Fatalf("unexpected types %v", got)
	}
	if parseEventTypes("") != nil {
		t.Fatal("expected nil for empty input")
	}
}
