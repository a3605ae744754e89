package linkmgr

import (
	"os"
	"path/filepath"
	"testing"
)

func TestCreateAndReadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "target")
	if err := os.Mkdir(target, 0o755); err != nil {
		t.Fatal(err)
	}
	link := filepath.Join(dir, "link")

	if err := Create(link, target); err != nil {
		t.Fatal(err)
	}
	got, err := Read(link)
	if err != nil {
		t.Fatal(err)
	}
	if !SameTarget(got, target) {
		t.Fatalf("Read() = %q, want %q", got, target)
	}
}

func TestCreateIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "target")
	if err := os.Mkdir(target, 0o755); err != nil {
		t.Fatal(err)
	}
	link := filepath.Join(dir, "link")

	if err := Create(link, target); err != nil {
		t.Fatal(err)
	}
	if err := Create(link, target); err != nil {
		t.Fatalf("second Create() should be a no-op, got error: %v", err)
	}
}

func TestCreateFailsOnNonLinkEntry(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "target")
	if err := os.Mkdir(target, 0o755); err != nil {
		t.Fatal(err)
	}
	blocked := filepath.Join(dir, "blocked")
	if err := os.Mkdir(blocked, 0o755); err != nil {
		t.Fatal(err)
	}

	if err := Create(blocked, target); err == nil {
		t.Fatal("expected KindLinkBlocked error, got nil")
	}
}

func TestDestroyRemovesLink(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "target")
	if err := os.Mkdir(target, 0o755); err != nil {
		t.Fatal(err)
	}
	link := filepath.Join(dir, "link")
	if err := Create(link, target); err != nil {
		t.Fatal(err)
	}

	if err := Destroy(link); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Lstat(link); !os.IsNotExist(err) {
		t.Fatalf("expected link to be gone, lstat error = %v", err)
	}
}

func TestSameTargetIsCaseInsensitive(t *testing.T) {
	if !SameTarget("/foo/Bar", "/FOO/bar") {
		t.Fatal("expected case-insensitive match")
	}
}
