package selfupdate

import (
	"archive/tar"
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func writeTestTar(t *testing.T, path string, files map[string]string) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	tw := tar.NewWriter(f)
	defer tw.Close()
	for name, content := range files {
		hdr := &tar.Header{Name: name, Mode: 0o644, Size: int64(len(content))}
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatal(err)
		}
		if _, err := tw.Write([]byte(content)); err != nil {
			t.Fatal(err)
		}
	}
}

func TestUpdateFromBuildReplacesFilesAndPreservesConfig(t *testing.T) {
	installDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(installDir, "config.packman.xml"), []byte("<config/>"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(installDir, "old.txt"), []byte("old"), 0o644); err != nil {
		t.Fatal(err)
	}

	buildPath := filepath.Join(t.TempDir(), "build.tar")
	writeTestTar(t, buildPath, map[string]string{"new.txt": "new contents"})

	var log bytes.Buffer
	if err := UpdateFromBuild(buildPath, installDir, false, &log); err != nil {
		t.Fatal(err)
	}

	if data, err := os.ReadFile(filepath.Join(installDir, "config.packman.xml")); err != nil || string(data) != "<config/>" {
		t.Fatalf("config.packman.xml should survive an update untouched, got %q, err=%v", data, err)
	}
	if data, err := os.ReadFile(filepath.Join(installDir, "new.txt")); err != nil || string(data) != "new contents" {
		t.Fatalf("expected new.txt from the build, got %q, err=%v", data, err)
	}
	if _, err := os.Stat(filepath.Join(installDir, "old.txt")); !os.IsNotExist(err) {
		t.Fatalf("expected old.txt to be removed by the update, stat err=%v", err)
	}
}

func TestUpdateFromBuildRollsBackOnExtractionFailure(t *testing.T) {
	installDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(installDir, "old.txt"), []byte("old"), 0o644); err != nil {
		t.Fatal(err)
	}

	badBuildPath := filepath.Join(t.TempDir(), "bad.tar")
	if err := os.WriteFile(badBuildPath, []byte("not a tar file"), 0o644); err != nil {
		t.Fatal(err)
	}

	var log bytes.Buffer
	err := UpdateFromBuild(badBuildPath, installDir, false, &log)
	if err == nil {
		t.Fatal("expected an error extracting a malformed build")
	}

	data, readErr := os.ReadFile(filepath.Join(installDir, "old.txt"))
	if readErr != nil || string(data) != "old" {
		t.Fatalf("expected old.txt to be restored by rollback, got %q, err=%v", data, readErr)
	}
}

func TestUpdateFromBuildMissingPath(t *testing.T) {
	err := UpdateFromBuild(filepath.Join(t.TempDir(), "nope.tar"), t.TempDir(), false, nil)
	if err == nil {
		t.Fatal("expected an error for a missing build path")
	}
}
