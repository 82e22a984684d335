package store

import (
	"context"
	"errors"
	"path/filepath"
	"sort"
	"testing"

	"github.com/theirongolddev/flamekit/internal/metric"
	"github.com/theirongolddev/flamekit/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "profiles.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func sampleProfile(id string) model.Profile {
	return model.Profile{
		ID:     id,
		Name:   "sample",
		Format: "folded",
		Frames: []model.StoredFrame{
			{ID: 0, ParentID: -1, Name: "A", Mapping: "app"},
			{ID: 1, ParentID: 0, Name: "B", Mapping: "app", SourceFile: "b.go", Line: 10},
			{ID: 2, ParentID: 1, Name: "C", Mapping: "libc", Samples: 5, TimeNs: 50},
			{ID: 3, ParentID: 1, Name: "D", Mapping: "libc", Samples: 3},
		},
	}
}

func TestSaveAndListProfiles(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, db.SaveProfile(sampleProfile("p1")))

	profiles, err := db.ListProfiles()
	require.NoError(t, err)
	require.Len(t, profiles, 1)
	assert.Equal(t, "p1", profiles[0].ID)
	assert.Equal(t, 4, profiles[0].FrameCount)
	assert.False(t, profiles[0].ImportedAt.IsZero())

	// Saving again replaces frames instead of duplicating them.
	require.NoError(t, db.SaveProfile(sampleProfile("p1")))
	count, err := db.ProfileCount()
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	_, err = db.GetProfile("missing")
	if !errors.Is(err, ErrProfileNotFound) {
		t.Fatalf("GetProfile(missing) err = %v, want ErrProfileNotFound", err)
	}

	require.NoError(t, db.DeleteProfile("p1"))
	profiles, err = db.ListProfiles()
	require.NoError(t, err)
	assert.Empty(t, profiles)
}

func TestRegistry_OnlyColumnsWithData(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, db.SaveProfile(sampleProfile("p1")))

	reg, err := db.Registry("p1")
	require.NoError(t, err)

	var names []string
	for _, m := range reg.Metrics() {
		names = append(names, m.Name)
	}
	assert.Equal(t, []string{"Samples", "CPU time"}, names)
}

func TestSession_QueryFramesThroughScratchTable(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, db.SaveProfile(sampleProfile("p1")))

	reg, err := db.Registry("p1")
	require.NoError(t, err)
	m, err := reg.Lookup("Samples")
	require.NoError(t, err)

	ctx := context.Background()
	sess, err := db.Acquire(ctx)
	require.NoError(t, err)
	defer func() { _ = sess.Close() }()

	for _, stmt := range m.Prepare.Statements {
		require.NoError(t, sess.Exec(ctx, stmt))
	}
	require.NoError(t, sess.Exec(ctx, "CREATE TEMP TABLE scratch AS "+m.Statement))

	frames, err := sess.QueryFrames(ctx, "SELECT * FROM temp.scratch", m)
	require.NoError(t, err)
	require.Len(t, frames, 4)

	sort.Slice(frames, func(i, j int) bool { return frames[i].ID < frames[j].ID })

	assert.True(t, frames[0].IsRoot())
	assert.Equal(t, "A", frames[0].Name)
	assert.Equal(t, int64(1), frames[2].ParentID)
	assert.Equal(t, 5.0, frames[2].SelfValue)
	assert.Equal(t, []string{"libc"}, frames[2].Unaggregatable)
	assert.Equal(t, []string{"b.go", "10"}, frames[1].Aggregatable)
	assert.Equal(t, []string{"", ""}, frames[0].Aggregatable)

	require.NoError(t, sess.Exec(ctx, "DROP TABLE temp.scratch"))
}

func TestSession_QueryFramesMissingColumn(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	sess, err := db.Acquire(ctx)
	require.NoError(t, err)
	defer func() { _ = sess.Close() }()

	m := metric.Metric{Name: "broken"}
	_, err = sess.QueryFrames(ctx, "SELECT 1 AS id, NULL AS parent_id, 'x' AS name", m)
	assert.ErrorContains(t, err, `"value"`)
}

func TestTrackedFiles(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, db.TrackFile("/tmp/a.folded", FileInfo{ProfileID: "p1", MtimeNs: 10, SizeBytes: 20}))

	tracked, err := db.GetTrackedFiles()
	require.NoError(t, err)
	assert.Equal(t, FileInfo{ProfileID: "p1", MtimeNs: 10, SizeBytes: 20}, tracked["/tmp/a.folded"])

	require.NoError(t, db.DeleteFileTracker("/tmp/a.folded"))
	tracked, err = db.GetTrackedFiles()
	require.NoError(t, err)
	assert.Empty(t, tracked)
}
