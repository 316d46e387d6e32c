package core

import "testing"

func TestParseAmount(t *testing.T) {
	cases := []struct {
		in  string
		out float64
		ok  bool
	}{
		{"1", 1, true},
		{"1.0", 1, true},
		{"1.23", 1.23, true},
		{"$12,500", 12500, true},
		{" $ 1,234.56 ", 1234.56, true},
		{"99.995", 100, true}, // half-up rounding
		{"", 0, true},
		{"0", 0, true},
		{"-1", 0, false},
		{"abc", 0, false},
		{"1.2.3", 0, false},
	}
	for _, tc := range cases {
		got, err := ParseAmount(tc.in)
		if tc.ok {
			if err != nil || got != tc.out {
				t.Fatalf("%q expected %v, got %v (err=%v)", tc.in, tc.out, got, err)
			}
		} else {
			if err == nil {
				t.Fatalf("%q expected error", tc.in)
			}
		}
	}
}

func TestParseCount(t *testing.T) {
	cases := []struct {
		in  string
		out int
		ok  bool
	}{
		{"12", 12, true},
		{"12.0", 12, true},
		{"1,200", 1200, true},
		{"", 0, true},
		{"1.5", 0, false},
		{"-3", 0, false},
		{"many", 0, false},
	}
	for _, tc := range cases {
		got, err := ParseCount(tc.in)
		if tc.ok {
			if err != nil || got != tc.out {
				t.Fatalf("%q expected %d, got %d (err=%v)", tc.in, tc.out, got, err)
			}
		} else if err == nil {
			t.Fatalf("%q expected error", tc.in)
		}
	}
}
