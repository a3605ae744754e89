package mirror

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/packman-project/packman/internal/schema"
	"github.com/packman-project/packman/internal/transport"
)

type fakeBackend struct {
	name       string
	has        map[string]bool
	downloaded []string
	uploaded   []string
}

func (b *fakeBackend) Locate(ctx context.Context, remote *schema.Remote, fileName string) (string, bool, error) {
	if b.has[fileName] {
		return fileName, true, nil
	}
	return "", false, nil
}

func (b *fakeBackend) Download(ctx context.Context, remote *schema.Remote, location, destPath string) error {
	b.downloaded = append(b.downloaded, location)
	return os.WriteFile(destPath, []byte("payload"), 0o644)
}

func (b *fakeBackend) Upload(ctx context.Context, remote *schema.Remote, sourcePath, targetName string, makePublic bool) (string, error) {
	b.uploaded = append(b.uploaded, targetName)
	return targetName, nil
}

func (b *fakeBackend) ListStartingWith(ctx context.Context, remote *schema.Remote, prefix string) ([]string, error) {
	return nil, nil
}

type fakeTransports struct {
	byRemote map[string]transport.Backend
}

func (t *fakeTransports) Get(remote *schema.Remote) (transport.Backend, error) {
	return t.byRemote[remote.Name], nil
}

func TestMirrorCopiesMissingPackage(t *testing.T) {
	target := &fakeBackend{name: "target", has: map[string]bool{}}
	source := &fakeBackend{name: "source", has: map[string]bool{"tool@1.0.zip": true}}

	p := &Pipeline{
		Transports: &fakeTransports{byRemote: map[string]transport.Backend{
			"target": target,
			"source": source,
		}},
		TargetRemote:        &schema.Remote{Name: "target", Type: "http"},
		SourceRemotesByName: map[string]*schema.Remote{"source": {Name: "source", Type: "http"}},
		SourceRemoteNames:   []string{"source"},
		AutoYes:             true,
		TempDir:             t.TempDir(),
	}

	dep := &schema.Dependency{
		Name:     "TOOL",
		Children: []schema.DependencyChild{&schema.Package{Name: "tool", Version: "1.0"}},
	}
	if err := p.Mirror(context.Background(), map[string]*schema.Dependency{"TOOL": dep}); err != nil {
		t.Fatal(err)
	}

	if len(target.uploaded) != 1 || target.uploaded[0] != "tool@1.0.zip" {
		t.Fatalf("expected one upload of tool@1.0.zip, got %v", target.uploaded)
	}
}

func TestMirrorSkipsWhenAlreadyOnTarget(t *testing.T) {
	target := &fakeBackend{name: "target", has: map[string]bool{"tool@1.0.zip": true}}
	source := &fakeBackend{name: "source", has: map[string]bool{"tool@1.0.zip": true}}

	p := &Pipeline{
		Transports: &fakeTransports{byRemote: map[string]transport.Backend{
			"target": target,
			"source": source,
		}},
		TargetRemote:        &schema.Remote{Name: "target", Type: "http"},
		SourceRemotesByName: map[string]*schema.Remote{"source": {Name: "source", Type: "http"}},
		SourceRemoteNames:   []string{"source"},
		AutoYes:             true,
		TempDir:             t.TempDir(),
	}
	dep := &schema.Dependency{
		Name:     "TOOL",
		Children: []schema.DependencyChild{&schema.Package{Name: "tool", Version: "1.0"}},
	}
	if err := p.Mirror(context.Background(), map[string]*schema.Dependency{"TOOL": dep}); err != nil {
		t.Fatal(err)
	}
	if len(target.uploaded) != 0 {
		t.Fatalf("expected no upload when already present, got %v", target.uploaded)
	}
}

func TestMirrorSkipsSourceDependencies(t *testing.T) {
	target := &fakeBackend{has: map[string]bool{}}
	p := &Pipeline{
		Transports:   &fakeTransports{byRemote: map[string]transport.Backend{"target": target}},
		TargetRemote: &schema.Remote{Name: "target", Type: "http"},
		AutoYes:      true,
		TempDir:      t.TempDir(),
	}
	dep := &schema.Dependency{
		Name:     "LOCAL",
		Children: []schema.DependencyChild{&schema.Source{Path: filepath.Join(t.TempDir(), "src")}},
	}
	if err := p.Mirror(context.Background(), map[string]*schema.Dependency{"LOCAL": dep}); err != nil {
		t.Fatal(err)
	}
	if len(target.uploaded) != 0 {
		t.Fatal("source dependencies should never be uploaded")
	}
}

func TestMirrorDeclinesWithoutConfirmation(t *testing.T) {
	target := &fakeBackend{has: map[string]bool{}}
	source := &fakeBackend{has: map[string]bool{"tool@1.0.zip": true}}
	p := &Pipeline{
		Transports: &fakeTransports{byRemote: map[string]transport.Backend{
			"target": target,
			"source": source,
		}},
		TargetRemote:        &schema.Remote{Name: "target", Type: "http"},
		SourceRemotesByName: map[string]*schema.Remote{"source": {Name: "source", Type: "http"}},
		SourceRemoteNames:   []string{"source"},
		Confirm:             func(string) bool { return false },
		TempDir:             t.TempDir(),
	}
	dep := &schema.Dependency{
		Name:     "TOOL",
		Children: []schema.DependencyChild{&schema.Package{Name: "tool", Version: "1.0"}},
	}
	if err := p.Mirror(context.Background(), map[string]*schema.Dependency{"TOOL": dep}); err != nil {
		t.Fatal(err)
	}
	if len(target.uploaded) != 0 {
		t.Fatal("expected no upload when the user declines")
	}
}
