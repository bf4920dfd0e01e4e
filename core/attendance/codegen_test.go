package attendance

import (
	"regexp"
	"testing"
)

var codeFormat = regexp.MustCompile(`^[A-Z0-9]+$`)

func Test_GenerateCode(t *testing.T) {
	seen := make(map[string]struct{})
	for i := 0; i < 200; i++ {
		code := GenerateCode(6)
		if len(code) != 6 {
			t.Fatalf("GenerateCode(6) = %q; want 6 characters", code)
		}
		if !codeFormat.MatchString(code) {
			t.Fatalf("GenerateCode(6) = %q; want uppercase alphanumeric", code)
		}
		seen[code] = struct{}{}
	}
	// 200 draws from a 36^6 space colliding down to a handful would mean the
	// source is broken
	if len(seen) < 100 {
		t.Errorf("got %d distinct codes out of 200 draws", len(seen))
	}
}

func Test_GenerateCode_length(t *testing.T) {
	for _, n := range []int{4, 6, 8} {
		if code := GenerateCode(n); len(code) != n {
			t.Errorf("GenerateCode(%d) = %q; want %d characters", n, code, n)
		}
	}
}
