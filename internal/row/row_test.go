package row

import (
	"encoding/json"
	"errors"
	"math"
	"testing"
	"time"
)

func fixedClock() time.Time {
	return time.Date(2019, 3, 14, 9, 26, 53, 589_000_000, time.UTC)
}

func TestBuildHeaderString(t *testing.T) {
	tests := []struct {
		name    string
		builder Builder
		want    string
	}{
		{"no timestamp", Builder{Header: []string{"a", "b"}}, "a,b"},
		{"timestamp", Builder{Header: []string{"a", "b"}, LogTime: true}, "Timestamp,a,b"},
		{"empty header with timestamp", Builder{LogTime: true}, "Timestamp"},
		{"empty", Builder{}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.builder.BuildHeaderString(); got != tt.want {
				t.Errorf("BuildHeaderString() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestBuildLogLine(t *testing.T) {
	tests := []struct {
		name    string
		builder Builder
		values  Row
		want    string
	}{
		{
			name:    "mixed values",
			builder: Builder{Precision: 2},
			values:  Values(1, "x", 3.14159, true),
			want:    "1,x,3.14,true",
		},
		{
			name:    "precision zero",
			builder: Builder{Precision: 0},
			values:  Values(2.5, 7.0),
			want:    "2,7",
		},
		{
			name:    "timestamp with millis",
			builder: Builder{LogTime: true, LogMillis: true, Precision: 2, Clock: fixedClock},
			values:  Values("a"),
			want:    "2019-03-14 09:26:53.589,a",
		},
		{
			name:    "timestamp without millis",
			builder: Builder{LogTime: true, Precision: 2, Clock: fixedClock},
			values:  Values(false),
			want:    "2019-03-14 09:26:53,false",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.builder.BuildLogLine(tt.values)
			if err != nil {
				t.Fatalf("BuildLogLine() failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("BuildLogLine() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestBuildLogLine_NoClock(t *testing.T) {
	b := Builder{LogTime: true}
	_, err := b.BuildLogLine(Values(1))
	if err == nil {
		t.Fatal("expected error without a clock")
	}
	if !errors.Is(err, ErrFormat) {
		t.Errorf("error = %v, want ErrFormat", err)
	}
}

func TestParse(t *testing.T) {
	tests := []struct {
		cell string
		kind Kind
	}{
		{"1", KindInt},
		{"-42", KindInt},
		{"3.14", KindFloat},
		{"1e3", KindFloat},
		{"true", KindBool},
		{"false", KindBool},
		{"x", KindString},
		{"NaN", KindString},
		{"Inf", KindString},
		{"2019-03-14 09:26:53.589", KindString},
		{"", KindString},
	}

	for _, tt := range tests {
		if got := Parse(tt.cell).Kind(); got != tt.kind {
			t.Errorf("Parse(%q).Kind() = %s, want %s", tt.cell, got, tt.kind)
		}
	}
}

func TestParseExact(t *testing.T) {
	tests := []struct {
		cell string
		kind Kind
	}{
		{"42", KindInt},
		{"-7", KindInt},
		{"0.5", KindFloat},
		{"true", KindBool},
		{"007", KindString},
		{"+5", KindString},
		{"-0", KindString},
		{"1e3", KindString},
		{"1.50", KindString},
		{"label", KindString},
	}

	for _, tt := range tests {
		v := ParseExact(tt.cell)
		if v.Kind() != tt.kind {
			t.Errorf("ParseExact(%q).Kind() = %s, want %s", tt.cell, v.Kind(), tt.kind)
		}
		if v.Kind() == KindString && v.String() != tt.cell {
			t.Errorf("ParseExact(%q) = %q, want it verbatim", tt.cell, v.String())
		}
	}
}

func TestTexts(t *testing.T) {
	r := Texts([]string{"007", "1.50", "1e3", "true"})
	for i, want := range []string{"007", "1.50", "1e3", "true"} {
		if r[i].Kind() != KindString || r[i].Text(0) != want {
			t.Errorf("cell %d = %s %q, want string %q", i, r[i].Kind(), r[i].Text(0), want)
		}
	}
	data, err := json.Marshal(r)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if string(data) != `["007","1.50","1e3","true"]` {
		t.Errorf("Marshal = %s", data)
	}
}

func TestOf_Unsigned(t *testing.T) {
	if v := Of(uint64(math.MaxUint64)); v.Kind() != KindString || v.String() != "18446744073709551615" {
		t.Errorf("Of(MaxUint64) = %s %q", v.Kind(), v.String())
	}
	if v := Of(uint64(math.MaxInt64)); v.Kind() != KindInt || v.String() != "9223372036854775807" {
		t.Errorf("Of(MaxInt64) = %s %q", v.Kind(), v.String())
	}
	if v := Of(uint(3)); v.Kind() != KindInt || v.String() != "3" {
		t.Errorf("Of(uint(3)) = %s %q", v.Kind(), v.String())
	}
}

func TestValue_JSON(t *testing.T) {
	r := Values(1, 2.5, "x", true)
	data, err := json.Marshal(r)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if string(data) != `[1,2.5,"x",true]` {
		t.Errorf("Marshal = %s", data)
	}

	var back Row
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	want := []Kind{KindInt, KindFloat, KindString, KindBool}
	for i, v := range back {
		if v.Kind() != want[i] {
			t.Errorf("cell %d kind = %s, want %s", i, v.Kind(), want[i])
		}
	}
}

func TestSplitLine(t *testing.T) {
	cells := SplitLine("a,b,,c\r\n")
	if len(cells) != 4 || cells[2] != "" || cells[3] != "c" {
		t.Errorf("SplitLine() = %q", cells)
	}
	if SplitLine("") != nil {
		t.Error("SplitLine(\"\") should be nil")
	}
}

func TestParseTimestamp(t *testing.T) {
	for _, cell := range []string{"2019-03-14 09:26:53.589", "2019-03-14 09:26:53"} {
		ts, err := ParseTimestamp(cell, time.UTC)
		if err != nil {
			t.Fatalf("ParseTimestamp(%q) failed: %v", cell, err)
		}
		if ts.Year() != 2019 || ts.Second() != 53 {
			t.Errorf("ParseTimestamp(%q) = %v", cell, ts)
		}
	}
}
