package main

import "testing"

func TestPadRight(t *testing.T) {
	cases := []struct {
		in    string
		width int
		want  string
	}{
		{"name", 8, "name    "},
		{"", 3, "   "},
		{"toolong", 3, "toolong"},
		{"exact", 5, "exact"},
	}
	for _, c := range cases {
		if got := padRight(c.in, c.width); got != c.want {
			t.Errorf("padRight(%q, %d) = %q, want %q", c.in, c.width, got, c.want)
		}
	}
}
