package daemon

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/theirongolddev/flamekit/internal/engine"
	"github.com/theirongolddev/flamekit/internal/metric"
	"github.com/theirongolddev/flamekit/internal/model"
	"github.com/theirongolddev/flamekit/internal/pipeline"
	"github.com/theirongolddev/flamekit/internal/store"
)

func openTestDB(t *testing.T) *store.DB {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "profiles.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func seedProfile(t *testing.T, db *store.DB) {
	t.Helper()
	require.NoError(t, db.SaveProfile(model.Profile{
		ID:     "p1",
		Name:   "sample",
		Format: "folded",
		Frames: []model.StoredFrame{
			{ID: 0, ParentID: -1, Name: "A"},
			{ID: 1, ParentID: 0, Name: "B"},
			{ID: 2, ParentID: 1, Name: "C", Samples: 5},
			{ID: 3, ParentID: 1, Name: "D", Samples: 3},
		},
	}))
}

func quietLogger() *log.Logger {
	return log.NewWithOptions(&bytes.Buffer{}, log.Options{Level: log.FatalLevel})
}

func newTestService(t *testing.T, cfg Config) (*Service, *store.DB) {
	t.Helper()
	db := openTestDB(t)
	seedProfile(t, db)
	cfg.Logger = quietLogger()
	return New(cfg, db), db
}

func post(t *testing.T, h http.Handler, req FlamegraphRequest) (*httptest.ResponseRecorder, FlamegraphResponse) {
	t.Helper()
	body, err := json.Marshal(req)
	require.NoError(t, err)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/flamegraph", bytes.NewReader(body)))

	var resp FlamegraphResponse
	_ = json.Unmarshal(rec.Body.Bytes(), &resp)
	return rec, resp
}

func TestPublishEventRingBuffer(t *testing.T) {
	s := New(Config{
		Interval:     10 * time.Second,
		EventsBuffer: 2,
		Logger:       quietLogger(),
	}, nil)

	s.publishEvent(Event{Type: EventImport})
	s.publishEvent(Event{Type: EventImport})
	s.publishEvent(Event{Type: EventFlamegraph, Data: &model.QueryData{}})

	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.events) != 2 {
		t.Fatalf("events len = %d, want 2", len(s.events))
	}
	if s.events[0].ID != 2 || s.events[1].ID != 3 {
		t.Fatalf("events ring contains IDs [%d, %d], want [2, 3]", s.events[0].ID, s.events[1].ID)
	}
	if s.events[1].Data != nil {
		t.Fatal("event log kept flame graph data")
	}
}

func TestPublishEventRoutesBySession(t *testing.T) {
	s := New(Config{Logger: quietLogger()}, nil)
	a := make(chan Event, 4)
	b := make(chan Event, 4)
	s.addSubscriber("a", a)
	s.addSubscriber("b", b)

	s.publishEvent(Event{Type: EventFlamegraph, Session: "a"})
	s.publishEvent(Event{Type: EventImport})

	assert.Len(t, a, 2)
	assert.Len(t, b, 1)
	ev := <-b
	assert.Equal(t, EventImport, ev.Type)
}

func TestFlamegraphEndpoint(t *testing.T) {
	s, _ := newTestService(t, Config{})
	h := s.Handler()

	rec, resp := post(t, h, FlamegraphRequest{Session: "s1", Profile: "p1", Metric: "Samples"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.NotNil(t, resp.Data)
	assert.Equal(t, "s1", resp.Session)
	assert.Equal(t, uint64(1), resp.Generation)
	assert.Equal(t, 8.0, resp.Data.AllRootsCumulativeValue)
	assert.Equal(t, model.ViewTopDown, resp.Data.View.Kind)

	rec, resp = post(t, h, FlamegraphRequest{
		Session: "s1",
		Profile: "p1",
		Filters: model.Filters{HideFrame: []string{"^D$"}},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, uint64(2), resp.Generation)
	assert.Equal(t, 8.0, resp.Data.UnfilteredCumulativeValue)

	s.mu.RLock()
	events := len(s.events)
	s.mu.RUnlock()
	assert.Equal(t, 2, events)
}

func TestFlamegraphEndpointErrors(t *testing.T) {
	s, _ := newTestService(t, Config{})
	h := s.Handler()

	tests := []struct {
		name string
		req  FlamegraphRequest
		want int
	}{
		{"missing profile", FlamegraphRequest{}, http.StatusBadRequest},
		{"unknown profile", FlamegraphRequest{Profile: "nope"}, http.StatusNotFound},
		{"unknown metric", FlamegraphRequest{Profile: "p1", Metric: "Heat"}, http.StatusBadRequest},
		{"pivot without pattern", FlamegraphRequest{
			Profile: "p1",
			Filters: model.Filters{View: model.View{Kind: model.ViewPivot}},
		}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, _ := post(t, h, tt.req)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d (%s)", rec.Code, tt.want, rec.Body.String())
			}
		})
	}

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/flamegraph", strings.NewReader("{")))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestFlamegraphSuperseded(t *testing.T) {
	gate := make(chan struct{})
	reached := make(chan struct{}, 1)
	var calls atomic.Int32
	compute := func(ctx context.Context, eng engine.Engine, m metric.Metric, f model.Filters, opts pipeline.Options) (*model.QueryData, error) {
		if calls.Add(1) == 1 {
			reached <- struct{}{}
			select {
			case <-gate:
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		return pipeline.Compute(ctx, eng, m, f, opts)
	}
	s, _ := newTestService(t, Config{Compute: compute})
	h := s.Handler()

	first := make(chan *httptest.ResponseRecorder, 1)
	go func() {
		rec, _ := post(t, h, FlamegraphRequest{Session: "s", Profile: "p1"})
		first <- rec
	}()
	<-reached

	second := make(chan *httptest.ResponseRecorder, 1)
	go func() {
		rec, _ := post(t, h, FlamegraphRequest{Session: "s", Profile: "p1", Metric: "Samples"})
		second <- rec
	}()
	require.Eventually(t, func() bool {
		return s.session("s").Generation() == 2
	}, 2*time.Second, time.Millisecond)
	close(gate)

	rec := <-first
	assert.Equal(t, http.StatusConflict, rec.Code)
	var resp FlamegraphResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Superseded)
	assert.Nil(t, resp.Data)

	rec = <-second
	assert.Equal(t, http.StatusOK, rec.Code)
	_, gen := s.session("s").Latest()
	assert.Equal(t, uint64(2), gen)
}

func TestFlamegraphRateLimited(t *testing.T) {
	s, _ := newTestService(t, Config{RequestsPerSec: 0.001, Burst: 1})
	h := s.Handler()

	rec, _ := post(t, h, FlamegraphRequest{Profile: "p1"})
	assert.Equal(t, http.StatusOK, rec.Code)
	rec, _ = post(t, h, FlamegraphRequest{Profile: "p1"})
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	// Read-only routes are not limited.
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/profiles", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestProfilesAndMetricsEndpoints(t *testing.T) {
	s, _ := newTestService(t, Config{})
	h := s.Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/profiles", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var profiles []model.ProfileInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &profiles))
	require.Len(t, profiles, 1)
	assert.Equal(t, "p1", profiles[0].ID)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/metrics?profile=p1", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var metrics []MetricInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &metrics))
	assert.Equal(t, []MetricInfo{{Name: "Samples", Unit: "count"}}, metrics)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/metrics?profile=nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, "ok\n", rec.Body.String())

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, rec.Body.String(), "flamekit_http_requests_total")
}

func TestPollOnceImports(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "app.folded"), []byte("main;work 4\nmain;idle 1\n"), 0o600))

	db := openTestDB(t)
	s := New(Config{ProfilesDir: dir, Logger: quietLogger()}, db)

	s.pollOnce()
	st := s.snapshotStatus()
	assert.Equal(t, 1, st.Profiles)
	assert.Equal(t, 1, st.LastImport.Imported)
	assert.Equal(t, int64(1), st.PollCount)
	assert.Empty(t, st.LastError)

	// Nothing changed: no new event.
	s.pollOnce()
	st = s.snapshotStatus()
	assert.Equal(t, 1, st.LastImport.Unchanged)
	assert.Equal(t, 1, st.EventCount)
}

func TestStreamDeliversCommits(t *testing.T) {
	s, _ := newTestService(t, Config{})
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/v1/stream?session=live", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	lines := bufio.NewScanner(resp.Body)
	lines.Buffer(make([]byte, 0, 64*1024), 1<<20)
	next := func() string {
		for lines.Scan() {
			if strings.HasPrefix(lines.Text(), "event: ") {
				return strings.TrimPrefix(lines.Text(), "event: ")
			}
		}
		return ""
	}

	// The greeting arrives once the subscriber is registered.
	require.Equal(t, EventStatus, next())

	body, err := json.Marshal(FlamegraphRequest{Session: "live", Profile: "p1"})
	require.NoError(t, err)
	pr, err := http.Post(srv.URL+"/v1/flamegraph", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	_ = pr.Body.Close()
	require.Equal(t, http.StatusOK, pr.StatusCode)

	require.Equal(t, EventFlamegraph, next())
	require.True(t, lines.Scan())
	data := strings.TrimPrefix(lines.Text(), "data: ")
	var ev Event
	require.NoError(t, json.Unmarshal([]byte(data), &ev))
	assert.Equal(t, "live", ev.Session)
	require.NotNil(t, ev.Data)
	assert.Equal(t, 8.0, ev.Data.AllRootsCumulativeValue)
}

func TestEvictIdleSessions(t *testing.T) {
	gate := make(chan struct{})
	reached := make(chan struct{}, 1)
	var calls atomic.Int32
	compute := func(ctx context.Context, eng engine.Engine, m metric.Metric, f model.Filters, opts pipeline.Options) (*model.QueryData, error) {
		if calls.Add(1) == 1 {
			reached <- struct{}{}
			<-gate
		}
		return pipeline.Compute(ctx, eng, m, f, opts)
	}
	s, _ := newTestService(t, Config{Compute: compute, SessionIdle: time.Minute})
	h := s.Handler()

	busy := make(chan int, 1)
	go func() {
		rec, _ := post(t, h, FlamegraphRequest{Session: "busy", Profile: "p1"})
		busy <- rec.Code
	}()
	<-reached
	for _, name := range []string{"stale", "fresh", "watched"} {
		rec, _ := post(t, h, FlamegraphRequest{Session: name, Profile: "p1"})
		require.Equal(t, http.StatusOK, rec.Code)
	}
	id := s.addSubscriber("watched", make(chan Event, 1))

	s.mu.Lock()
	for _, name := range []string{"busy", "stale", "watched"} {
		s.sessions[name].lastUsed = time.Now().Add(-time.Hour)
	}
	s.mu.Unlock()

	assert.Equal(t, 1, s.evictIdleSessions(time.Now()))
	assert.Nil(t, s.existingSession("stale"))
	assert.NotNil(t, s.existingSession("fresh"))
	assert.NotNil(t, s.existingSession("watched"), "sessions with subscribers are kept")
	assert.NotNil(t, s.existingSession("busy"), "sessions with a computation in flight are kept")

	close(gate)
	assert.Equal(t, http.StatusOK, <-busy)
	s.removeSubscriber(id)

	assert.Equal(t, 2, s.evictIdleSessions(time.Now()))
	assert.Nil(t, s.existingSession("watched"))
	assert.Nil(t, s.existingSession("busy"))
	assert.Equal(t, 1, s.snapshotStatus().Sessions)

	// An evicted session starts over on its next request.
	_, resp := post(t, h, FlamegraphRequest{Session: "stale", Profile: "p1"})
	assert.Equal(t, uint64(1), resp.Generation)
}
