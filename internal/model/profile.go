package model

import "time"

// Profile is a parsed profile ready to be stored.
type Profile struct {
	ID         string
	Name       string
	SourcePath string
	Format     string
	Frames     []StoredFrame
}

// StoredFrame is one frame of a stored profile with every raw value column.
// ParentID is -1 for roots.
type StoredFrame struct {
	ID         int64
	ParentID   int64
	Name       string
	Mapping    string
	SourceFile string
	Line       int
	Samples    float64
	TimeNs     float64
	Bytes      float64
}

// ProfileInfo summarizes a stored profile.
type ProfileInfo struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	SourcePath string    `json:"sourcePath"`
	Format     string    `json:"format"`
	FrameCount int       `json:"frameCount"`
	ImportedAt time.Time `json:"importedAt"`
}
