package archive

import (
	"os"
	"path/filepath"
	"testing"
)

func TestFormatFromName(t *testing.T) {
	cases := map[string]Format{
		"foo@1.0.7z":  Format7z,
		"foo@1.0.ZIP": FormatZip,
	}
	for name, want := range cases {
		got, ok := FormatFromName(name)
		if !ok || got != want {
			t.Errorf("FormatFromName(%q) = (%q, %v), want (%q, true)", name, got, ok, want)
		}
	}
	if _, ok := FormatFromName("foo@1.0"); ok {
		t.Error("FormatFromName() should reject an extensionless name")
	}
}

func TestPackAndUnpackZipRoundTrip(t *testing.T) {
	srcDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(srcDir, "a.txt"), []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Mkdir(filepath.Join(srcDir, "sub"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(srcDir, "sub", "b.txt"), []byte("world"), 0o644); err != nil {
		t.Fatal(err)
	}

	archivePath := filepath.Join(t.TempDir(), "out.zip")
	got, err := Pack(FormatZip, srcDir, archivePath)
	if err != nil {
		t.Fatal(err)
	}
	if got != archivePath {
		t.Fatalf("Pack() returned %q, want %q", got, archivePath)
	}

	size, err := UncompressedSize(archivePath)
	if err != nil {
		t.Fatal(err)
	}
	if size != int64(len("hello")+len("world")) {
		t.Fatalf("UncompressedSize() = %d, want %d", size, len("hello")+len("world"))
	}

	destDir := t.TempDir()
	if err := Unpack(archivePath, destDir); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(filepath.Join(destDir, "a.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "hello" {
		t.Fatalf("a.txt = %q, want %q", data, "hello")
	}
	data, err = os.ReadFile(filepath.Join(destDir, "sub", "b.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "world" {
		t.Fatalf("sub/b.txt = %q, want %q", data, "world")
	}
}

func TestPackZipAddsExtension(t *testing.T) {
	srcDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(srcDir, "a.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	archivePath := filepath.Join(t.TempDir(), "out")
	got, err := Pack(FormatZip, srcDir, archivePath)
	if err != nil {
		t.Fatal(err)
	}
	if got != archivePath+".zip" {
		t.Fatalf("Pack() = %q, want %q", got, archivePath+".zip")
	}
}
