package version

import "testing"

func TestIsFileVersionNewer(t *testing.T) {
	cases := []struct {
		file, supported string
		want            bool
	}{
		{"2.0", "1.9", true},
		{"1.10", "1.9", true},
		{"1.9", "1.9", false},
		{"1.8", "1.9", false},
		{"1.9", "2.0", false},
		{"2.0", "2.0", false},
	}
	for _, c := range cases {
		if got := IsFileVersionNewer(c.file, c.supported); got != c.want {
			t.Errorf("IsFileVersionNewer(%q, %q) = %v, want %v", c.file, c.supported, got, c.want)
		}
	}
}

func TestIsFileVersionNewerMalformed(t *testing.T) {
	if IsFileVersionNewer("garbage", "1.9") {
		t.Fatal("expected malformed file version to not be treated as newer")
	}
	if IsFileVersionNewer("1.9", "garbage") {
		t.Fatal("expected malformed supported version to not be treated as newer")
	}
}

func TestStripReleaseCandidate(t *testing.T) {
	if got := stripReleaseCandidate("1.9-rc1"); got != "1.9" {
		t.Fatalf("got %q, want 1.9", got)
	}
	if got := stripReleaseCandidate("1.9"); got != "1.9" {
		t.Fatalf("got %q, want 1.9", got)
	}
}
