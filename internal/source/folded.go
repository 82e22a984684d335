package source

import (
	"bufio"
	"io"
	"strconv"
	"strings"
)

// parseFolded reads folded stacks, one "root;caller;leaf count" per line.
// A frame written as "module`function" carries its mapping.
func parseFolded(r io.Reader, t *stackTrie) (parseErrors int, err error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 256*1024), 8*1024*1024)

	var stack []Location
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		var count float64
		var ok bool
		stack, count, ok = parseFoldedLine(line, stack[:0])
		if !ok {
			parseErrors++
			continue
		}
		t.add(stack, count, 0, 0)
	}
	return parseErrors, scanner.Err()
}

// parseFoldedLine splits one line into its stack and count, reusing buf.
func parseFoldedLine(line string, buf []Location) ([]Location, float64, bool) {
	sp := strings.LastIndexAny(line, " \t")
	if sp <= 0 {
		return buf, 0, false
	}
	count, err := strconv.ParseFloat(line[sp+1:], 64)
	if err != nil || count < 0 {
		return buf, 0, false
	}

	stack := buf
	for _, part := range strings.Split(strings.TrimSpace(line[:sp]), ";") {
		if part == "" {
			continue
		}
		loc := Location{Name: part}
		if i := strings.IndexByte(part, '`'); i > 0 && i < len(part)-1 {
			loc.Mapping = part[:i]
			loc.Name = part[i+1:]
		}
		stack = append(stack, loc)
	}
	if len(stack) == 0 {
		return stack, 0, false
	}
	return stack, count, true
}
