package cachestore

import (
	"archive/zip"
	"os"
	"path/filepath"
	"testing"
)

func writeZip(t *testing.T, path string, files map[string]string) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	w := zip.NewWriter(f)
	for name, content := range files {
		fw, err := w.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := fw.Write([]byte(content)); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestStatusMissingWhenAbsent(t *testing.T) {
	s := New(t.TempDir())
	status, _ := s.Status("foo", "1.0")
	if status != StatusMissing {
		t.Fatalf("Status() = %v, want MISSING", status)
	}
}

func TestInstallThenStatusInstalled(t *testing.T) {
	root := t.TempDir()
	archivePath := filepath.Join(t.TempDir(), "foo@1.0.zip")
	writeZip(t, archivePath, map[string]string{"a.txt": "hello"})

	s := New(root)
	installPath := s.checkedPath("foo", "1.0")
	if err := s.Install(archivePath, installPath); err != nil {
		t.Fatal(err)
	}

	status, path := s.Status("foo", "1.0")
	if status != StatusInstalled {
		t.Fatalf("Status() = %v, want INSTALLED", status)
	}
	if path != installPath {
		t.Fatalf("Status() path = %q, want %q", path, installPath)
	}
	if _, err := os.Stat(filepath.Join(installPath, "a.txt")); err != nil {
		t.Fatalf("expected a.txt to be extracted: %v", err)
	}
}

func TestInstallStripsRedundantTopLevelFolder(t *testing.T) {
	root := t.TempDir()
	archivePath := filepath.Join(t.TempDir(), "foo@1.0.zip")
	writeZip(t, archivePath, map[string]string{"foo@1.0-abcdef/a.txt": "hello"})

	s := New(root)
	installPath := s.checkedPath("foo", "1.0")
	if err := s.Install(archivePath, installPath); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(installPath, "a.txt")); err != nil {
		t.Fatalf("expected redundant top folder to be stripped: %v", err)
	}
}

func TestVerifyTrivialOnEmptySentinel(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "a.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := writeEmptySentinel(dir); err != nil {
		t.Fatal(err)
	}
	ok, err := Verify(dir)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("Verify() should treat an empty sentinel as trivially valid")
	}
}

func TestVerifyDetectsCorruption(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "a.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, sentinelName), []byte("not-a-real-hash"), 0o644); err != nil {
		t.Fatal(err)
	}
	ok, err := Verify(dir)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("Verify() should reject a mismatched recorded hash")
	}
}

func TestRemoveGrantsWritePermission(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "sub")
	if err := os.Mkdir(sub, 0o755); err != nil {
		t.Fatal(err)
	}
	file := filepath.Join(sub, "a.txt")
	if err := os.WriteFile(file, []byte("x"), 0o444); err != nil {
		t.Fatal(err)
	}
	if err := Remove(dir); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Fatalf("expected %q to be removed", dir)
	}
}

func TestListInstalledMergesLegacyAndChecked(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "legacypkg", "1.0"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "legacypkg", "1.0", "a.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(root, "chk", "checkedpkg", "2.0"), 0o755); err != nil {
		t.Fatal(err)
	}

	s := New(root)
	refs, err := s.ListInstalled()
	if err != nil {
		t.Fatal(err)
	}
	if len(refs) != 2 {
		t.Fatalf("ListInstalled() = %v, want 2 entries", refs)
	}
}

func TestCopyIfVersionDiffersSkipsWhenMarkerPresent(t *testing.T) {
	root := t.TempDir()
	installPath := filepath.Join(root, "foo", "1.0")
	if err := os.MkdirAll(installPath, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(installPath, "a.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	target := t.TempDir()

	if err := CopyIfVersionDiffers(installPath, target); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(target, "a.txt")); err != nil {
		t.Fatalf("expected copy to target: %v", err)
	}

	if err := os.Remove(filepath.Join(target, "a.txt")); err != nil {
		t.Fatal(err)
	}
	if err := CopyIfVersionDiffers(installPath, target); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(target, "a.txt")); !os.IsNotExist(err) {
		t.Fatal("expected second call to be a no-op because the marker file already exists")
	}
}
