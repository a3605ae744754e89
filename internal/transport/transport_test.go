package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/packman-project/packman/internal/schema"
)

func TestNewRejectsUnknownType(t *testing.T) {
	_, err := New(&schema.Remote{Name: "r", Type: "carrier-pigeon"})
	if err == nil {
		t.Fatal("New() should reject an unregistered transport type")
	}
}

func TestHTTPBackendLocateAndDownload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/foo@1.0.7z" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if r.Method == http.MethodHead {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.Write([]byte("archive-bytes"))
	}))
	defer srv.Close()

	remote := &schema.Remote{Name: "r", Type: "http", PackageLocation: srv.URL}
	backend, err := New(remote)
	if err != nil {
		t.Fatal(err)
	}

	location, found, err := backend.Locate(context.Background(), remote, "foo@1.0.7z")
	if err != nil {
		t.Fatal(err)
	}
	if !found {
		t.Fatal("Locate() should find foo@1.0.7z")
	}

	destPath := filepath.Join(t.TempDir(), "out.7z")
	if err := backend.Download(context.Background(), remote, location, destPath); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(destPath)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "archive-bytes" {
		t.Fatalf("downloaded content = %q, want %q", data, "archive-bytes")
	}
}

func TestHTTPBackendLocateMiss(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	remote := &schema.Remote{Name: "r", Type: "https", PackageLocation: srv.URL}
	backend, err := New(remote)
	if err != nil {
		t.Fatal(err)
	}
	_, found, err := backend.Locate(context.Background(), remote, "missing@1.0.7z")
	if err != nil {
		t.Fatal(err)
	}
	if found {
		t.Fatal("Locate() should report not-found for a 404")
	}
}

func TestPackagePathTriesSevenZipBeforeZip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/foo@1.0.zip" {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	remote := &schema.Remote{Name: "r", Type: "http", PackageLocation: srv.URL}
	backend, err := New(remote)
	if err != nil {
		t.Fatal(err)
	}
	location, found, err := PackagePath(context.Background(), backend, remote, "foo", "1.0")
	if err != nil {
		t.Fatal(err)
	}
	if !found {
		t.Fatal("PackagePath() should fall back to the .zip candidate")
	}
	if location == "" {
		t.Fatal("PackagePath() should return a non-empty location")
	}
}

func TestCachingFactoryReusesBackend(t *testing.T) {
	factory, err := NewCachingFactory(8)
	if err != nil {
		t.Fatal(err)
	}
	remote := &schema.Remote{Name: "r", Type: "http", PackageLocation: "http://example.invalid"}

	a, err := factory.Get(remote)
	if err != nil {
		t.Fatal(err)
	}
	b, err := factory.Get(remote)
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Fatal("CachingFactory.Get() should return the same Backend instance for the same remote name")
	}
}
