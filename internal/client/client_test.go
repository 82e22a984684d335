package client

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/theirongolddev/flamekit/internal/daemon"
	"github.com/theirongolddev/flamekit/internal/model"
	"github.com/theirongolddev/flamekit/internal/store"
)

func newServer(t *testing.T) *Client {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "profiles.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.SaveProfile(model.Profile{
		ID:     "p1",
		Name:   "sample",
		Format: "folded",
		Frames: []model.StoredFrame{
			{ID: 0, ParentID: -1, Name: "A"},
			{ID: 1, ParentID: 0, Name: "B", Samples: 2},
			{ID: 2, ParentID: 0, Name: "C", Samples: 6},
		},
	}))

	svc := daemon.New(daemon.Config{
		Logger: log.NewWithOptions(&bytes.Buffer{}, log.Options{Level: log.FatalLevel}),
	}, db)
	srv := httptest.NewServer(svc.Handler())
	t.Cleanup(srv.Close)
	return New(srv.URL)
}

func TestNew(t *testing.T) {
	assert.Nil(t, New("  "))
	assert.Equal(t, "http://127.0.0.1:8765", New("127.0.0.1:8765").base)
	assert.Equal(t, "https://flames.local", New("https://flames.local/").base)
}

func TestClientAgainstServer(t *testing.T) {
	c := newServer(t)
	ctx := context.Background()

	st, err := c.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, st.Profiles)

	profiles, err := c.Profiles(ctx)
	require.NoError(t, err)
	require.Len(t, profiles, 1)
	assert.Equal(t, "sample", profiles[0].Name)

	metrics, err := c.Metrics(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, []daemon.MetricInfo{{Name: "Samples", Unit: "count"}}, metrics)

	resp, err := c.Flamegraph(ctx, daemon.FlamegraphRequest{
		Profile: "p1",
		Filters: model.Filters{View: model.TopDown(), HideStack: []string{"^B$"}},
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), resp.Generation)
	require.NotNil(t, resp.Data)
	assert.Equal(t, 6.0, resp.Data.AllRootsCumulativeValue)
	assert.Equal(t, 8.0, resp.Data.UnfilteredCumulativeValue)
}

func TestClientErrors(t *testing.T) {
	c := newServer(t)
	ctx := context.Background()

	_, err := c.Flamegraph(ctx, daemon.FlamegraphRequest{Profile: "nope"})
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = c.Flamegraph(ctx, daemon.FlamegraphRequest{Profile: "p1", Metric: "Bogus"})
	assert.ErrorContains(t, err, "HTTP 400")
	assert.ErrorContains(t, err, "unknown metric")
}

func TestClientStatusMapping(t *testing.T) {
	tests := []struct {
		code int
		want error
	}{
		{http.StatusTooManyRequests, ErrRateLimited},
		{http.StatusConflict, ErrSuperseded},
	}
	for _, tt := range tests {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(tt.code)
		}))
		_, err := New(srv.URL).Flamegraph(context.Background(), daemon.FlamegraphRequest{Profile: "p1"})
		srv.Close()
		assert.ErrorIs(t, err, tt.want, "status %d", tt.code)
	}
}
