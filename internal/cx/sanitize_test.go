package cx_test

import (
	"strings"
	"testing"

	"cx-go/internal/cx"
	"cx-go/internal/testutil"
)

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "clean name unchanged", in: "Part A", want: "Part A"},
		{name: "empty", in: "", want: ""},
		{name: "colon", in: "Weird:Name", want: "Weird Name_" + testutil.SHA256Hex([]byte("Weird:Name"))[:8]},
		{name: "slash", in: "Model 1/2", want: "Model 1 2_" + testutil.SHA256Hex([]byte("Model 1/2"))[:8]},
		{name: "every forbidden char", in: `a:b\c/d*e?f<g>h|i`, want: "a b c d e f g h i_" + testutil.SHA256Hex([]byte(`a:b\c/d*e?f<g>h|i`))[:8]},
		{name: "unicode kept", in: "Gehäuse v2", want: "Gehäuse v2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := cx.SanitizeFilename(tt.in); got != tt.want {
				t.Errorf("SanitizeFilename(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestSanitizeFilename_NoForbiddenInOutput(t *testing.T) {
	inputs := []string{"a:b", "<<>>", "||", `C:\parts\bolt`, "what?", "*"}
	for _, in := range inputs {
		out := cx.SanitizeFilename(in)
		if cx.ContainsForbidden(out) {
			t.Errorf("SanitizeFilename(%q) = %q still contains forbidden characters", in, out)
		}
	}
}

func TestSanitizeFilename_Deterministic(t *testing.T) {
	a := cx.SanitizeFilename("Bracket: left")
	b := cx.SanitizeFilename("Bracket: left")
	if a != b {
		t.Errorf("SanitizeFilename not deterministic: %q vs %q", a, b)
	}
}

func TestSanitizeFilename_CollisionsDisambiguated(t *testing.T) {
	// Both clean to "Model 1 2", but only the first needed replacing.
	a := cx.SanitizeFilename("Model 1/2")
	b := cx.SanitizeFilename("Model 1 2")
	if a == b {
		t.Fatalf("SanitizeFilename collided: %q", a)
	}

	// Both need replacing and clean to the same string.
	c := cx.SanitizeFilename("x:y")
	d := cx.SanitizeFilename("x?y")
	if c == d {
		t.Errorf("SanitizeFilename(%q) == SanitizeFilename(%q) == %q", "x:y", "x?y", c)
	}
	if !strings.HasPrefix(c, "x y_") || !strings.HasPrefix(d, "x y_") {
		t.Errorf("unexpected cleaned prefix: %q, %q", c, d)
	}
}
