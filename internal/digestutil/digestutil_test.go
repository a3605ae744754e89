package digestutil

import (
	"crypto/sha1"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"
)

func TestHashFileMatchesDirectSHA1(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.bin")
	content := []byte("hello packman")
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := HashFile(path)
	if err != nil {
		t.Fatal(err)
	}

	sum := sha1.Sum(content)
	want := "sha1:" + hex.EncodeToString(sum[:])
	if got.String() != want {
		t.Fatalf("HashFile() = %q, want %q", got.String(), want)
	}
}

func TestHashDirIsStableAcrossRuns(t *testing.T) {
	dir := t.TempDir()
	mustWrite(t, filepath.Join(dir, "b.txt"), "b")
	mustWrite(t, filepath.Join(dir, "a.txt"), "a")
	if err := os.Mkdir(filepath.Join(dir, "sub"), 0o755); err != nil {
		t.Fatal(err)
	}
	mustWrite(t, filepath.Join(dir, "sub", "c.txt"), "c")

	first, err := HashDir(dir, "")
	if err != nil {
		t.Fatal(err)
	}
	second, err := HashDir(dir, "")
	if err != nil {
		t.Fatal(err)
	}
	if first != second {
		t.Fatalf("HashDir() not stable: %q != %q", first, second)
	}
}

func TestHashDirChangesWithContent(t *testing.T) {
	dir := t.TempDir()
	mustWrite(t, filepath.Join(dir, "a.txt"), "a")

	before, err := HashDir(dir, "")
	if err != nil {
		t.Fatal(err)
	}

	mustWrite(t, filepath.Join(dir, "a.txt"), "changed")
	after, err := HashDir(dir, "")
	if err != nil {
		t.Fatal(err)
	}

	if before == after {
		t.Fatal("HashDir() did not change after file content changed")
	}
}

func TestHashDirExcludesGivenPath(t *testing.T) {
	dir := t.TempDir()
	mustWrite(t, filepath.Join(dir, "a.txt"), "a")
	mustWrite(t, filepath.Join(dir, ".packman.sha1"), "")

	withSentinel, err := HashDir(dir, "")
	if err != nil {
		t.Fatal(err)
	}
	withoutSentinel, err := HashDir(dir, ".packman.sha1")
	if err != nil {
		t.Fatal(err)
	}
	if withSentinel == withoutSentinel {
		t.Fatal("excluding the sentinel path should change the resulting digest")
	}
}

func mustWrite(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}
