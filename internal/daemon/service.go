// Package daemon provides the long-running flame graph service.
package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/theirongolddev/flamekit/internal/fetch"
	"github.com/theirongolddev/flamekit/internal/metric"
	"github.com/theirongolddev/flamekit/internal/model"
	"github.com/theirongolddev/flamekit/internal/observability"
	"github.com/theirongolddev/flamekit/internal/pipeline"
	"github.com/theirongolddev/flamekit/internal/store"
)

// DefaultSession is used for requests that name no session.
const DefaultSession = "default"

// Config controls the daemon runtime behavior.
type Config struct {
	// ProfilesDir is re-imported on every poll. Empty disables polling.
	ProfilesDir    string
	Interval       time.Duration
	Addr           string
	EventsBuffer   int
	RequestsPerSec float64
	Burst          int
	Width          float64
	Logger         *log.Logger

	// SessionIdle is how long a session without stream subscribers is kept
	// after its last request.
	SessionIdle time.Duration

	// Compute replaces pipeline.Compute for every session.
	Compute fetch.ComputeFunc
}

// ImportSummary is the outcome of one poll of the profiles directory.
type ImportSummary struct {
	TotalFiles  int `json:"total_files"`
	Imported    int `json:"imported"`
	Unchanged   int `json:"unchanged"`
	Removed     int `json:"removed"`
	ParseErrors int `json:"parse_errors"`
	FileErrors  int `json:"file_errors"`
}

func summarize(r *pipeline.ImportResult) ImportSummary {
	return ImportSummary{
		TotalFiles:  r.TotalFiles,
		Imported:    r.Imported,
		Unchanged:   r.Unchanged,
		Removed:     r.Removed,
		ParseErrors: r.ParseErrors,
		FileErrors:  r.FileErrors,
	}
}

// Event types.
const (
	EventStatus     = "status"
	EventImport     = "import"
	EventFlamegraph = "flamegraph"
)

// Event is emitted when profiles are imported or a session commits a
// flame graph. Data is only sent to stream subscribers; the event log keeps
// the summary fields.
type Event struct {
	ID         int64            `json:"id"`
	Type       string           `json:"type"`
	Timestamp  time.Time        `json:"timestamp"`
	Session    string           `json:"session,omitempty"`
	Generation uint64           `json:"generation,omitempty"`
	Metric     string           `json:"metric,omitempty"`
	View       string           `json:"view,omitempty"`
	NodeCount  int              `json:"node_count,omitempty"`
	Import     *ImportSummary   `json:"import,omitempty"`
	Data       *model.QueryData `json:"data,omitempty"`
}

// Status is served at /v1/status.
type Status struct {
	StartedAt       time.Time     `json:"started_at"`
	LastPollAt      time.Time     `json:"last_poll_at"`
	PollIntervalSec int           `json:"poll_interval_sec"`
	PollCount       int64         `json:"poll_count"`
	ProfilesDir     string        `json:"profiles_dir,omitempty"`
	Profiles        int           `json:"profiles"`
	Sessions        int           `json:"sessions"`
	LastImport      ImportSummary `json:"last_import"`
	LastError       string        `json:"last_error,omitempty"`
	EventCount      int           `json:"event_count"`
	SubscriberCount int           `json:"subscriber_count"`
}

// FlamegraphRequest is the body of POST /v1/flamegraph.
type FlamegraphRequest struct {
	Session string        `json:"session"`
	Profile string        `json:"profile"`
	Metric  string        `json:"metric"`
	Filters model.Filters `json:"filters"`
}

// FlamegraphResponse is returned for a committed computation. Superseded
// computations answer 409 with Superseded set and no data.
type FlamegraphResponse struct {
	Session    string           `json:"session"`
	Generation uint64           `json:"generation"`
	Superseded bool             `json:"superseded,omitempty"`
	Data       *model.QueryData `json:"data,omitempty"`
}

// MetricInfo describes one metric of a profile.
type MetricInfo struct {
	Name string `json:"name"`
	Unit string `json:"unit"`
}

// Service provides the daemon runtime and HTTP API.
type Service struct {
	cfg     Config
	db      *store.DB
	logger  *log.Logger
	limiter *rate.Limiter

	mu          sync.RWMutex
	startedAt   time.Time
	lastPollAt  time.Time
	pollCount   int64
	lastError   string
	lastImport  ImportSummary
	nextEventID int64
	events      []Event
	sessions    map[string]*session

	nextSubID int
	subs      map[int]subscriber
}

type session struct {
	orch     *fetch.Orchestrator
	lastUsed time.Time
}

type subscriber struct {
	session string
	ch      chan Event
}

// New returns a new daemon service over db with the provided config.
func New(cfg Config, db *store.DB) *Service {
	if cfg.Interval < 2*time.Second {
		cfg.Interval = 15 * time.Second
	}
	if cfg.EventsBuffer < 1 {
		cfg.EventsBuffer = 200
	}
	if cfg.Addr == "" {
		cfg.Addr = "127.0.0.1:8765"
	}
	if cfg.RequestsPerSec <= 0 {
		cfg.RequestsPerSec = 20
	}
	if cfg.Burst < 1 {
		cfg.Burst = 40
	}
	if cfg.SessionIdle <= 0 {
		cfg.SessionIdle = 30 * time.Minute
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}

	return &Service{
		cfg:       cfg,
		db:        db,
		logger:    logger,
		limiter:   rate.NewLimiter(rate.Limit(cfg.RequestsPerSec), cfg.Burst),
		startedAt: time.Now(),
		sessions:  make(map[string]*session),
		subs:      make(map[int]subscriber),
	}
}

// Handler returns the daemon's HTTP routes.
func (s *Service) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /healthz", s.instrument("healthz", s.handleHealth))
	mux.Handle("GET /v1/status", s.instrument("status", s.handleStatus))
	mux.Handle("GET /v1/events", s.instrument("events", s.handleEvents))
	mux.Handle("GET /v1/profiles", s.instrument("profiles", s.handleProfiles))
	mux.Handle("GET /v1/metrics", s.instrument("metrics", s.handleMetrics))
	mux.Handle("POST /v1/flamegraph", s.instrument("flamegraph", s.limit(s.handleFlamegraph)))
	mux.Handle("GET /v1/stream", s.instrument("stream", s.handleStream))
	mux.Handle("GET /metrics", promhttp.Handler())
	return mux
}

// Run starts HTTP endpoints and polling until ctx is canceled.
func (s *Service) Run(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	s.logger.Info("daemon listening", "addr", s.cfg.Addr, "profiles", s.cfg.ProfilesDir)

	// Seed the store so status is useful immediately.
	s.pollOnce()

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		case now := <-ticker.C:
			s.pollOnce()
			s.evictIdleSessions(now)
		case err := <-errCh:
			return fmt.Errorf("daemon http server: %w", err)
		}
	}
}

func (s *Service) pollOnce() {
	if s.cfg.ProfilesDir == "" {
		return
	}

	start := time.Now()
	result, err := pipeline.LoadWithCache(s.cfg.ProfilesDir, s.db, nil)
	now := time.Now()
	if err != nil {
		s.mu.Lock()
		s.lastError = err.Error()
		s.lastPollAt = now
		s.pollCount++
		s.mu.Unlock()
		s.logger.Error("poll failed", "dir", s.cfg.ProfilesDir, "err", err)
		return
	}

	summary := summarize(result)
	s.mu.Lock()
	first := s.pollCount == 0
	s.lastPollAt = now
	s.pollCount++
	s.lastError = ""
	s.lastImport = summary
	s.mu.Unlock()

	s.logger.Debug("poll finished",
		"imported", summary.Imported, "unchanged", summary.Unchanged,
		"removed", summary.Removed, "took", time.Since(start))

	if first || summary.Imported > 0 || summary.Removed > 0 {
		s.publishEvent(Event{Type: EventImport, Timestamp: now, Import: &summary})
	}
}

// session returns the orchestrator for name, creating it on first use.
func (s *Service) session(name string) *fetch.Orchestrator {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[name]; ok {
		sess.lastUsed = time.Now()
		return sess.orch
	}

	opts := []fetch.Option{
		fetch.WithLogger(s.logger.With("session", name)),
		fetch.WithWidth(s.cfg.Width),
		fetch.WithOnCommit(func(out fetch.Outcome) {
			s.publishEvent(Event{
				Type:       EventFlamegraph,
				Timestamp:  time.Now(),
				Session:    name,
				Generation: out.Generation,
				Metric:     out.Data.Metric,
				View:       out.Data.View.String(),
				NodeCount:  len(out.Data.Nodes),
				Data:       out.Data,
			})
		}),
	}
	if s.cfg.Compute != nil {
		opts = append(opts, fetch.WithCompute(s.cfg.Compute))
	}
	o := fetch.New(s.db, opts...)
	s.sessions[name] = &session{orch: o, lastUsed: time.Now()}
	return o
}

// evictIdleSessions drops sessions unused for longer than cfg.SessionIdle
// that have no stream subscriber and no computation in flight.
func (s *Service) evictIdleSessions(now time.Time) int {
	idle := s.idleSessions(now)

	// Orchestrator state is read without s.mu: commits take the
	// orchestrator's lock before publishing under s.mu.
	var busy []string
	for name, sess := range idle {
		if sess.orch.State() == fetch.StateFetching {
			busy = append(busy, name)
		}
	}
	for _, name := range busy {
		delete(idle, name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	watched := s.watchedLocked()
	evicted := 0
	for name, sess := range idle {
		// Skip sessions used or watched again since the scan.
		if s.sessions[name] != sess || watched[name] || now.Sub(sess.lastUsed) < s.cfg.SessionIdle {
			continue
		}
		delete(s.sessions, name)
		evicted++
	}
	if evicted > 0 {
		s.logger.Debug("evicted idle sessions", "count", evicted, "remaining", len(s.sessions))
	}
	return evicted
}

func (s *Service) idleSessions(now time.Time) map[string]*session {
	s.mu.RLock()
	defer s.mu.RUnlock()

	watched := s.watchedLocked()
	idle := map[string]*session{}
	for name, sess := range s.sessions {
		if !watched[name] && now.Sub(sess.lastUsed) >= s.cfg.SessionIdle {
			idle[name] = sess
		}
	}
	return idle
}

// watchedLocked returns the sessions with a stream subscriber. s.mu must be held.
func (s *Service) watchedLocked() map[string]bool {
	watched := map[string]bool{}
	for _, sub := range s.subs {
		watched[sub.session] = true
	}
	return watched
}

func (s *Service) publishEvent(ev Event) {
	s.mu.Lock()
	s.nextEventID++
	ev.ID = s.nextEventID

	logged := ev
	logged.Data = nil
	s.events = append(s.events, logged)
	if len(s.events) > s.cfg.EventsBuffer {
		s.events = s.events[len(s.events)-s.cfg.EventsBuffer:]
	}

	for _, sub := range s.subs {
		if ev.Session != "" && sub.session != ev.Session {
			continue
		}
		select {
		case sub.ch <- ev:
		default:
		}
	}
	s.mu.Unlock()
}

func (s *Service) snapshotStatus() Status {
	profiles, err := s.db.ProfileCount()
	if err != nil {
		s.logger.Warn("counting profiles", "err", err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return Status{
		StartedAt:       s.startedAt,
		LastPollAt:      s.lastPollAt,
		PollIntervalSec: int(s.cfg.Interval.Seconds()),
		PollCount:       s.pollCount,
		ProfilesDir:     s.cfg.ProfilesDir,
		Profiles:        profiles,
		Sessions:        len(s.sessions),
		LastImport:      s.lastImport,
		LastError:       s.lastError,
		EventCount:      len(s.events),
		SubscriberCount: len(s.subs),
	}
}

func (s *Service) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok\n"))
}

func (s *Service) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.snapshotStatus())
}

func (s *Service) handleEvents(w http.ResponseWriter, _ *http.Request) {
	s.mu.RLock()
	events := make([]Event, len(s.events))
	copy(events, s.events)
	s.mu.RUnlock()

	writeJSON(w, http.StatusOK, events)
}

func (s *Service) handleProfiles(w http.ResponseWriter, _ *http.Request) {
	profiles, err := s.db.ListProfiles()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if profiles == nil {
		profiles = []model.ProfileInfo{}
	}
	writeJSON(w, http.StatusOK, profiles)
}

func (s *Service) handleMetrics(w http.ResponseWriter, r *http.Request) {
	reg, err := s.registry(r.URL.Query().Get("profile"))
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	metrics := reg.Metrics()
	out := make([]MetricInfo, 0, len(metrics))
	for _, m := range metrics {
		out = append(out, MetricInfo{Name: m.Name, Unit: m.Unit})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Service) handleFlamegraph(w http.ResponseWriter, r *http.Request) {
	var req FlamegraphRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("decoding request: %w", err))
		return
	}
	if req.Session == "" {
		req.Session = DefaultSession
	}
	if req.Filters.View.Kind == "" {
		req.Filters.View = model.TopDown()
	}
	if _, err := model.ParseView(string(req.Filters.View.Kind), req.Filters.View.Pivot); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	reg, err := s.registry(req.Profile)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	m, err := reg.LookupOrDefault(req.Metric)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}

	out, err := s.session(req.Session).Submit(r.Context(), m, req.Filters)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	resp := FlamegraphResponse{Session: req.Session, Generation: out.Generation}
	if out.State == fetch.StateSuperseded {
		resp.Superseded = true
		writeJSON(w, http.StatusConflict, resp)
		return
	}
	resp.Data = out.Data
	writeJSON(w, http.StatusOK, resp)
}

func (s *Service) registry(profile string) (*metric.Registry, error) {
	if profile == "" {
		return nil, errMissingProfile
	}
	return s.db.Registry(profile)
}

var errMissingProfile = errors.New("profile parameter is required")

func statusFor(err error) int {
	switch {
	case errors.Is(err, store.ErrProfileNotFound):
		return http.StatusNotFound
	case errors.Is(err, errMissingProfile), errors.Is(err, metric.ErrUnknownMetric):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (s *Service) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	session := r.URL.Query().Get("session")
	if session == "" {
		session = DefaultSession
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch := make(chan Event, 16)
	id := s.addSubscriber(session, ch)
	defer s.removeSubscriber(id)

	// Send the current state immediately.
	writeSSE(w, Event{Type: EventStatus, Timestamp: time.Now(), Session: session})
	if o := s.existingSession(session); o != nil {
		if q, gen := o.Latest(); q != nil {
			writeSSE(w, Event{
				Type:       EventFlamegraph,
				Timestamp:  time.Now(),
				Session:    session,
				Generation: gen,
				Metric:     q.Metric,
				View:       q.View.String(),
				NodeCount:  len(q.Nodes),
				Data:       q,
			})
		}
	}
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev := <-ch:
			writeSSE(w, ev)
			flusher.Flush()
		}
	}
}

func (s *Service) existingSession(name string) *fetch.Orchestrator {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if sess, ok := s.sessions[name]; ok {
		return sess.orch
	}
	return nil
}

func writeSSE(w http.ResponseWriter, ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	if ev.ID > 0 {
		_, _ = fmt.Fprintf(w, "id: %d\n", ev.ID)
	}
	_, _ = fmt.Fprintf(w, "event: %s\n", ev.Type)
	_, _ = fmt.Fprintf(w, "data: %s\n\n", data)
}

func (s *Service) addSubscriber(session string, ch chan Event) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextSubID++
	id := s.nextSubID
	s.subs[id] = subscriber{session: session, ch: ch}
	return id
}

func (s *Service) removeSubscriber(id int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.subs, id)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, map[string]string{"error": err.Error()})
}

// limit rejects requests beyond the configured rate with 429.
func (s *Service) limit(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.limiter.Allow() {
			w.Header().Set("Retry-After", "1")
			writeError(w, http.StatusTooManyRequests, errors.New("rate limit exceeded"))
			return
		}
		next(w, r)
	}
}

// instrument counts requests per route and status code.
func (s *Service) instrument(route string, next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
		next(rec, r)
		observability.HTTPRequestsTotal.WithLabelValues(route, strconv.Itoa(rec.code)).Inc()
	})
}

type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.code = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
