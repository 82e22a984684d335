package source

import (
	"encoding/json"
	"fmt"
	"io"
)

const (
	profileEvented = "evented"
	profileSampled = "sampled"

	eventOpen  = "O"
	eventClose = "C"
)

// timeUnits maps speedscope time units to nanoseconds.
var timeUnits = map[string]float64{
	"nanoseconds":  1,
	"microseconds": 1e3,
	"milliseconds": 1e6,
	"seconds":      1e9,
}

// weigh routes a weight to the value column its unit belongs to.
func weigh(unit string, w float64) (samples, timeNs, bytes float64) {
	if scale, ok := timeUnits[unit]; ok {
		return 0, w * scale, 0
	}
	if unit == "bytes" {
		return 0, 0, w
	}
	return w, 0, 0
}

// parseSpeedscope reads a speedscope document. Every profile in the file is
// folded into one tree; with several profiles each gets a root frame named
// after it.
func parseSpeedscope(r io.Reader, t *stackTrie) (parseErrors int, err error) {
	var file speedscopeFile
	if err := json.NewDecoder(r).Decode(&file); err != nil {
		return 0, fmt.Errorf("decoding speedscope: %w", err)
	}
	if len(file.Profiles) == 0 {
		return 0, fmt.Errorf("%w: speedscope file has no profiles", ErrUnsupportedFormat)
	}

	locs := make([]Location, len(file.Shared.Frames))
	for i, f := range file.Shared.Frames {
		locs[i] = Location{Name: f.Name, SourceFile: f.File, Line: int(f.Line)}
		if locs[i].Name == "" {
			locs[i].Name = "[unknown]"
		}
	}
	frameAt := func(v float64) (Location, bool) {
		i := int(v)
		if float64(i) != v || i < 0 || i >= len(locs) {
			return Location{}, false
		}
		return locs[i], true
	}

	for _, p := range file.Profiles {
		var prefix []Location
		if len(file.Profiles) > 1 {
			name := p.Name
			if name == "" {
				name = "[profile]"
			}
			prefix = []Location{{Name: name}}
		}

		switch p.Type {
		case profileSampled:
			parseErrors += addSampled(t, p, prefix, frameAt)
		case profileEvented:
			parseErrors += addEvented(t, p, prefix, frameAt)
		default:
			return parseErrors, fmt.Errorf("%w: speedscope profile type %q", ErrUnsupportedFormat, p.Type)
		}
	}
	return parseErrors, nil
}

func addSampled(t *stackTrie, p speedscopeProfile, prefix []Location, frameAt func(float64) (Location, bool)) int {
	var bad int
	stack := make([]Location, 0, 64)
	for i, sample := range p.Samples {
		stack = append(stack[:0], prefix...)
		ok := true
		for _, idx := range sample {
			loc, valid := frameAt(idx)
			if !valid {
				ok = false
				break
			}
			stack = append(stack, loc)
		}
		if !ok || len(stack) == len(prefix) {
			bad++
			continue
		}

		w := 1.0
		if i < len(p.Weights) {
			w = p.Weights[i]
		}
		samples, timeNs, bytes := weigh(p.Unit, w)
		if timeNs != 0 || bytes != 0 {
			samples = 1
		}
		t.add(stack, samples, timeNs, bytes)
	}
	return bad
}

// addEvented attributes the time between consecutive events to the stack
// open during it.
func addEvented(t *stackTrie, p speedscopeProfile, prefix []Location, frameAt func(float64) (Location, bool)) int {
	var bad int
	stack := append([]Location(nil), prefix...)
	last := p.StartValue
	for _, ev := range p.Events {
		if ev.At > last && len(stack) > len(prefix) {
			samples, timeNs, bytes := weigh(p.Unit, ev.At-last)
			t.add(stack, samples, timeNs, bytes)
		}
		if ev.At > last {
			last = ev.At
		}

		loc, ok := frameAt(ev.Frame)
		if !ok {
			bad++
			continue
		}
		switch ev.Type {
		case eventOpen:
			stack = append(stack, loc)
		case eventClose:
			if len(stack) == len(prefix) || stack[len(stack)-1] != loc {
				bad++
				continue
			}
			stack = stack[:len(stack)-1]
		default:
			bad++
		}
	}
	return bad
}
