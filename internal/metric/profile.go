package metric

import (
	"fmt"
	"strings"
)

// Raw value columns of the frames table.
const (
	ColumnSamples = "self_samples"
	ColumnTime    = "self_time"
	ColumnBytes   = "self_bytes"
)

// Property columns of the frames table.
const (
	PropMapping    = "mapping"
	PropSourceFile = "source_file"
	PropLine       = "line"
)

var profileIndex = &Preparation{
	Key: "frames-profile-parent-index",
	Statements: []string{
		`CREATE INDEX IF NOT EXISTS idx_frames_profile_parent ON frames(profile_id, parent_id)`,
	},
}

var profileColumns = []ValueColumn{
	{Name: "Samples", Unit: "count", Column: ColumnSamples},
	{Name: "CPU time", Unit: "ns", Column: ColumnTime},
	{Name: "Allocations", Unit: "bytes", Column: ColumnBytes},
}

// ForProfile returns the metrics available for one stored profile.
// With no columns given every known value column is included; otherwise
// only the listed columns are, in the standard order.
func ForProfile(profileID string, columns ...string) *Registry {
	base := fmt.Sprintf(
		"SELECT id, parent_id, name, %s, %s, %s, %s, %s, %s FROM frames WHERE profile_id = %s",
		PropMapping, PropSourceFile, PropLine, ColumnSamples, ColumnTime, ColumnBytes, quote(profileID),
	)

	want := make(map[string]bool, len(columns))
	for _, c := range columns {
		want[c] = true
	}
	var selected []ValueColumn
	for _, c := range profileColumns {
		if len(want) == 0 || want[c.Column] {
			selected = append(selected, c)
		}
	}

	return MustRegistry(Siblings(base, profileIndex,
		[]string{PropMapping},
		[]string{PropSourceFile, PropLine},
		selected...)...)
}

func quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
