// Package source discovers and parses profile files into frame trees.
package source

import (
	"fmt"
	"io"
	"os"

	"github.com/theirongolddev/flamekit/internal/model"
)

// ParseResult holds the output of parsing a single profile file.
type ParseResult struct {
	Profile     model.Profile
	ParseErrors int
	Err         error
}

// ParseFile reads a profile file into a frame tree. Identical stacks share
// frames, and unparseable records are counted rather than fatal.
func ParseFile(df DiscoveredFile) ParseResult {
	f, err := os.Open(df.Path)
	if err != nil {
		return ParseResult{Err: err}
	}
	defer func() { _ = f.Close() }()

	res := Parse(f, df.Format)
	res.Profile.ID = df.ProfileID
	res.Profile.Name = df.Name
	res.Profile.SourcePath = df.Path
	return res
}

// Parse reads a profile in the given format from r.
func Parse(r io.Reader, format string) ParseResult {
	t := newStackTrie()
	var (
		parseErrors int
		err         error
	)
	switch format {
	case FormatFolded:
		parseErrors, err = parseFolded(r, t)
	case FormatSpeedscope:
		parseErrors, err = parseSpeedscope(r, t)
	default:
		err = fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
	if err != nil {
		return ParseResult{ParseErrors: parseErrors, Err: err}
	}
	return ParseResult{
		Profile:     model.Profile{Format: format, Frames: t.frames},
		ParseErrors: parseErrors,
	}
}
