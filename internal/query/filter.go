package query

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/cel-go/cel"
)

// Filter is a compiled CEL row predicate. The zero Filter matches every
// row.
//
// Expressions see:
//
//	row     map(string, dyn)  cells by header name, typed like the logger wrote them
//	cells   list(string)      raw cells in column order
//	index   int               0-based data row index
//	text    string            the raw line
//	ts_ms   int               row timestamp in Unix ms, 0 without a timestamp column
//	now_ms  int               evaluation time in Unix ms
type Filter struct {
	prog    cel.Program
	enabled bool
}

// CompileFilter compiles expr. An empty expression yields a Filter that
// matches everything.
func CompileFilter(expr string) (Filter, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return Filter{}, nil
	}
	env, err := cel.NewEnv(
		cel.Variable("row", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("cells", cel.ListType(cel.StringType)),
		cel.Variable("index", cel.IntType),
		cel.Variable("text", cel.StringType),
		cel.Variable("ts_ms", cel.IntType),
		cel.Variable("now_ms", cel.IntType),
	)
	if err != nil {
		return Filter{}, fmt.Errorf("failed to create filter environment: %w", err)
	}
	ast, iss := env.Parse(expr)
	if iss != nil && iss.Err() != nil {
		return Filter{}, fmt.Errorf("invalid filter: %w", iss.Err())
	}
	checked, iss := env.Check(ast)
	if iss != nil && iss.Err() != nil {
		return Filter{}, fmt.Errorf("invalid filter: %w", iss.Err())
	}
	prog, err := env.Program(checked)
	if err != nil {
		return Filter{}, fmt.Errorf("failed to build filter: %w", err)
	}
	return Filter{prog: prog, enabled: true}, nil
}

// Match evaluates the filter against one record. Evaluation errors, such as
// a missing column, count as no match.
func (f Filter) Match(rec *Record, now time.Time) bool {
	if !f.enabled {
		return true
	}

	var ts int64
	if rec.HasTime {
		ts = rec.Time.UnixMilli()
	}
	out, _, err := f.prog.Eval(map[string]any{
		"row":    rec.Fields,
		"cells":  rec.Cells,
		"index":  int64(rec.Index),
		"text":   rec.Line,
		"ts_ms":  ts,
		"now_ms": now.UnixMilli(),
	})
	if err != nil {
		return false
	}
	b, ok := out.Value().(bool)
	return ok && b
}
