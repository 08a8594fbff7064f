// Package row renders logged values into delimited CSV lines.
//
// A Row is an ordered list of tagged values (string, int, float, bool). The
// Builder turns a Row into a line, optionally prefixed with a timestamp, and
// produces the matching header line:
//
//	b := row.Builder{Header: []string{"a", "b"}, Precision: 2}
//	b.BuildHeaderString()                          // "a,b"
//	b.BuildLogLine(row.Row{row.Int(1), row.String("x")}) // "1,x"
//
// Values are rendered with one rule per tag. Floats use the builder's
// precision; everything else uses its plain textual form. No quoting or
// escaping is performed: cells containing the delimiter are written as is.
package row
