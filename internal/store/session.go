package store

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"

	"github.com/theirongolddev/flamekit/internal/metric"
	"github.com/theirongolddev/flamekit/internal/model"
)

// Session is a dedicated connection implementing engine.Session.
type Session struct {
	conn *sql.Conn
}

// Exec runs a statement that produces no rows.
func (s *Session) Exec(ctx context.Context, stmt string) error {
	_, err := s.conn.ExecContext(ctx, stmt)
	return err
}

// QueryFrames runs stmt and decodes each row into a frame. The statement
// must produce id, parent_id, name and value, plus every property column
// the metric declares.
func (s *Session) QueryFrames(ctx context.Context, stmt string, m metric.Metric) ([]model.Frame, error) {
	rows, err := s.conn.QueryContext(ctx, stmt)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	index := make(map[string]int, len(cols))
	for i, c := range cols {
		if _, dup := index[c]; !dup {
			index[c] = i
		}
	}

	lookup := func(name string) (int, error) {
		i, ok := index[name]
		if !ok {
			return 0, fmt.Errorf("statement for %q has no %q column", m.Name, name)
		}
		return i, nil
	}

	idCol, err := lookup("id")
	if err != nil {
		return nil, err
	}
	parentCol, err := lookup("parent_id")
	if err != nil {
		return nil, err
	}
	nameCol, err := lookup("name")
	if err != nil {
		return nil, err
	}
	valueCol, err := lookup("value")
	if err != nil {
		return nil, err
	}
	unaggCols, err := lookupAll(lookup, m.UnaggregatableProperties)
	if err != nil {
		return nil, err
	}
	aggCols, err := lookupAll(lookup, m.AggregatableProperties)
	if err != nil {
		return nil, err
	}

	raw := make([]any, len(cols))
	dest := make([]any, len(cols))
	for i := range raw {
		dest[i] = &raw[i]
	}

	var frames []model.Frame
	for rows.Next() {
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}

		var f model.Frame
		id, ok := asInt(raw[idCol])
		if !ok {
			return nil, fmt.Errorf("frame row has non-integer id %v", raw[idCol])
		}
		f.ID = id
		f.ParentID, f.HasParent = asInt(raw[parentCol])
		f.Name = asString(raw[nameCol])
		f.SelfValue = asFloat(raw[valueCol])
		f.Unaggregatable = pick(raw, unaggCols)
		f.Aggregatable = pick(raw, aggCols)
		frames = append(frames, f)
	}
	return frames, rows.Err()
}

// Close returns the connection to the pool.
func (s *Session) Close() error {
	return s.conn.Close()
}

func lookupAll(lookup func(string) (int, error), names []string) ([]int, error) {
	out := make([]int, len(names))
	for i, n := range names {
		idx, err := lookup(n)
		if err != nil {
			return nil, err
		}
		out[i] = idx
	}
	return out, nil
}

func pick(raw []any, idx []int) []string {
	if len(idx) == 0 {
		return nil
	}
	out := make([]string, len(idx))
	for i, c := range idx {
		out[i] = asString(raw[c])
	}
	return out
}

func asInt(v any) (int64, bool) {
	switch x := v.(type) {
	case int64:
		return x, true
	case float64:
		return int64(x), true
	case []byte:
		n, err := strconv.ParseInt(string(x), 10, 64)
		return n, err == nil
	case string:
		n, err := strconv.ParseInt(x, 10, 64)
		return n, err == nil
	default:
		return 0, false
	}
}

func asFloat(v any) float64 {
	switch x := v.(type) {
	case float64:
		return x
	case int64:
		return float64(x)
	case []byte:
		f, _ := strconv.ParseFloat(string(x), 64)
		return f
	case string:
		f, _ := strconv.ParseFloat(x, 64)
		return f
	default:
		return 0
	}
}

func asString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case []byte:
		return string(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	default:
		return fmt.Sprint(x)
	}
}
