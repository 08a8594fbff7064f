package row_test

import (
	"fmt"

	"github.com/rcsvlog/rcsv/internal/row"
)

func ExampleBuilder_BuildLogLine() {
	b := &row.Builder{Header: []string{"a", "b"}, Precision: 2}

	fmt.Println(b.BuildHeaderString())
	for _, values := range []row.Row{row.Values(1, "x"), row.Values(2, "y")} {
		line, _ := b.BuildLogLine(values)
		fmt.Println(line)
	}
	// Output:
	// a,b
	// 1,x
	// 2,y
}

func ExampleParse() {
	for _, cell := range []string{"42", "0.50", "true", "nan", "label"} {
		v := row.Parse(cell)
		fmt.Printf("%s %s\n", v.Kind(), v)
	}
	// Output:
	// int 42
	// float 0.5
	// bool true
	// string nan
	// string label
}
