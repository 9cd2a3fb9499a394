package util

import "testing"

func TestProcessID(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "plain", input: "NASA", want: "NASA"},
		{name: "spaces", input: "Space Shuttle Program", want: "Space_Shuttle_Program"},
		{name: "slashes", input: "TCP/IP", want: "TCPIP"},
		{name: "parenthesis suffix", input: "Mercury(Planet)", want: "Mercury"},
		{name: "last parenthesis wins", input: "A(B)C(D)", want: "A(B)C"},
		{name: "quoted empty single", input: "''", want: ""},
		{name: "quoted empty double", input: `""`, want: ""},
		{name: "empty", input: "", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ProcessID(tt.input); got != tt.want {
				t.Fatalf("ProcessID(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestProcessID_Idempotent(t *testing.T) {
	for _, in := range []string{"Graph Store", "a/b/c", "Foo (bar)"} {
		once := ProcessID(in)
		if twice := ProcessID(once); twice != once {
			t.Fatalf("ProcessID not idempotent for %q: %q then %q", in, once, twice)
		}
	}
}

func TestNewRequestID(t *testing.T) {
	a, b := NewRequestID(), NewRequestID()
	if len(a) != 16 {
		t.Fatalf("expected 16 characters, got %q", a)
	}
	if a == b {
		t.Fatalf("expected distinct ids, got %q twice", a)
	}
}
