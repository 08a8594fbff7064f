package query

import (
	"fmt"
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"

	"github.com/rcsvlog/rcsv/internal/row"
)

var parser = func() *when.Parser {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	return w
}()

// ParseTime resolves a time bound relative to now. Accepted forms, tried in
// order: a log timestamp ("2019-03-14 10:00:00.250"), RFC 3339, a Go
// duration meaning that long ago ("90m"), and natural language
// ("yesterday", "2 hours ago", "last monday at 9am").
func ParseTime(expr string, now time.Time) (time.Time, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return time.Time{}, fmt.Errorf("empty time expression")
	}
	if t, err := row.ParseTimestamp(expr, now.Location()); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339, expr); err == nil {
		return t, nil
	}
	if d, err := time.ParseDuration(expr); err == nil {
		return now.Add(-d), nil
	}

	r, err := parser.Parse(expr, now)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse time %q: %w", expr, err)
	}
	if r == nil {
		return time.Time{}, fmt.Errorf("unrecognized time %q", expr)
	}
	return r.Time, nil
}
