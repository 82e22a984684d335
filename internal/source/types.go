package source

import "errors"

// Supported profile file formats.
const (
	FormatFolded     = "folded"
	FormatSpeedscope = "speedscope"
)

// ErrUnsupportedFormat is returned for files no parser understands.
var ErrUnsupportedFormat = errors.New("unsupported profile format")

// DiscoveredFile represents a profile file found during directory scanning.
type DiscoveredFile struct {
	Path      string
	ProfileID string // stable id derived from the absolute path
	Name      string // file name without the format suffix
	Format    string
}

// speedscopeFile is a speedscope JSON document.
// https://github.com/jlfwong/speedscope/blob/main/src/lib/file-format-spec.ts
type speedscopeFile struct {
	Schema   string `json:"$schema"`
	Shared   speedscopeShared
	Profiles []speedscopeProfile
	Name     string
	Exporter string
}

type speedscopeShared struct {
	Frames []speedscopeFrame
}

type speedscopeFrame struct {
	Name string
	File string
	Line float64
	Col  float64
}

type speedscopeProfile struct {
	Type       string
	Name       string
	Unit       string
	StartValue float64
	EndValue   float64

	// Evented profile
	Events []speedscopeEvent

	// Sampled profile; each sample lists frame indexes root first.
	Samples [][]float64
	Weights []float64
}

type speedscopeEvent struct {
	Type  string
	At    float64
	Frame float64
}
