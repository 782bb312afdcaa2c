package cmd

import (
	"strings"
	"testing"
)

func TestReadPasswordKeepsSpaces(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"correct horse battery\n", "correct horse battery"},
		{" padded \r\n", " padded "},
		{"no-newline", "no-newline"},
		{"first\nsecond\n", "first"},
	}
	for _, tt := range tests {
		got, err := readPassword(strings.NewReader(tt.in))
		if err != nil {
			t.Fatalf("readPassword(%q) error = %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("readPassword(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestReadPasswordEmpty(t *testing.T) {
	for _, in := range []string{"", "\n"} {
		if _, err := readPassword(strings.NewReader(in)); err == nil {
			t.Errorf("readPassword(%q) expected error", in)
		}
	}
}
