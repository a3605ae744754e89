package fulfill

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/packman-project/packman/internal/archive"
	"github.com/packman-project/packman/internal/cachestore"
	"github.com/packman-project/packman/internal/schema"
	"github.com/packman-project/packman/internal/transport"
)

// fakeBackend serves one archive (built on the fly as a real zip so
// cachestore.Install can extract it) for a fixed base@version, regardless of
// which remote carries it.
type fakeBackend struct {
	archivePath string
	locateName  string
}

func (b *fakeBackend) Locate(ctx context.Context, remote *schema.Remote, fileName string) (string, bool, error) {
	if fileName == b.locateName {
		return fileName, true, nil
	}
	return "", false, nil
}

func (b *fakeBackend) Download(ctx context.Context, remote *schema.Remote, location, destPath string) error {
	data, err := os.ReadFile(b.archivePath)
	if err != nil {
		return err
	}
	return os.WriteFile(destPath, data, 0o644)
}

func (b *fakeBackend) Upload(ctx context.Context, remote *schema.Remote, sourcePath, targetName string, makePublic bool) (string, error) {
	return "", nil
}

func (b *fakeBackend) ListStartingWith(ctx context.Context, remote *schema.Remote, prefix string) ([]string, error) {
	return nil, nil
}

type fakeTransports struct {
	backend transport.Backend
}

func (t *fakeTransports) Get(remote *schema.Remote) (transport.Backend, error) {
	return t.backend, nil
}

func buildTestZip(t *testing.T, dir string) string {
	t.Helper()
	// cachestore.Install shells out to archive.Unpack, which infers format
	// from the destination filename's extension; build a minimal real zip
	// via the archive package's own Pack so Install's extraction path is
	// exercised rather than faked.
	srcFolder := filepath.Join(dir, "payload")
	if err := os.MkdirAll(srcFolder, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(srcFolder, "marker.txt"), []byte("hi"), 0o644); err != nil {
		t.Fatal(err)
	}
	archivePath := filepath.Join(dir, "tool@1.0.zip")
	out, err := archive.Pack(archive.FormatZip, srcFolder, archivePath)
	if err != nil {
		t.Fatal(err)
	}
	return out
}

func TestEngineFulfillsPackageFromCacheMiss(t *testing.T) {
	root := t.TempDir()
	store := cachestore.New(root)

	archivePath := buildTestZip(t, t.TempDir())
	backend := &fakeBackend{archivePath: archivePath, locateName: "tool@1.0.zip"}

	remote := &schema.Remote{Name: "r1", Type: "http"}
	engine := &Engine{
		Store:         store,
		Transports:    &fakeTransports{backend: backend},
		RemotesByName: map[string]*schema.Remote{"r1": remote},
		Cascade:       []string{"r1"},
	}

	dep := &schema.Dependency{
		Name:     "TOOL",
		Children: []schema.DependencyChild{&schema.Package{Name: "tool", Version: "1.0"}},
	}
	deps := map[string]*schema.Dependency{"TOOL": dep}

	result, err := engine.Run(context.Background(), deps, "", nil, "", nil)
	if err != nil {
		t.Fatal(err)
	}

	path, ok := result.Paths["TOOL"]
	if !ok {
		t.Fatal("expected TOOL in the result path map")
	}
	if _, err := os.Stat(filepath.Join(path, "marker.txt")); err != nil {
		t.Fatalf("installed package missing its payload: %v", err)
	}

	status, _ := store.Status("tool", "1.0")
	if status != cachestore.StatusInstalled {
		t.Fatalf("expected the package to be installed, got %v", status)
	}
}

func TestEngineUsesCacheOnHit(t *testing.T) {
	root := t.TempDir()
	store := cachestore.New(root)

	archivePath := buildTestZip(t, t.TempDir())
	if err := store.Install(archivePath, filepath.Join(root, "chk", "tool", "1.0")); err != nil {
		t.Fatal(err)
	}

	engine := &Engine{
		Store:      store,
		Transports: &fakeTransports{backend: &fakeBackend{}}, // never consulted
	}
	dep := &schema.Dependency{
		Name:     "TOOL",
		Children: []schema.DependencyChild{&schema.Package{Name: "tool", Version: "1.0"}},
	}
	deps := map[string]*schema.Dependency{"TOOL": dep}

	result, err := engine.Run(context.Background(), deps, "", nil, "", nil)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasSuffix(result.Paths["TOOL"], filepath.ToSlash(filepath.Join("chk", "tool", "1.0"))) {
		t.Fatalf("expected the cached install path, got %q", result.Paths["TOOL"])
	}
}

func TestEngineFailsNoRemoteConfigured(t *testing.T) {
	root := t.TempDir()
	store := cachestore.New(root)
	engine := &Engine{Store: store, Transports: &fakeTransports{backend: &fakeBackend{}}}

	dep := &schema.Dependency{
		Name:     "TOOL",
		Children: []schema.DependencyChild{&schema.Package{Name: "tool", Version: "1.0"}},
	}
	deps := map[string]*schema.Dependency{"TOOL": dep}

	_, err := engine.Run(context.Background(), deps, "", nil, "", nil)
	if err == nil {
		t.Fatal("expected NO_REMOTE_CONFIGURED when no cascade and no child remotes are set")
	}
}

func TestEngineSourceChildSkipsFetch(t *testing.T) {
	root := t.TempDir()
	store := cachestore.New(root)
	engine := &Engine{Store: store, Transports: &fakeTransports{backend: &fakeBackend{}}}

	srcDir := t.TempDir()
	dep := &schema.Dependency{
		Name:     "LOCAL",
		Children: []schema.DependencyChild{&schema.Source{Path: srcDir}},
	}
	deps := map[string]*schema.Dependency{"LOCAL": dep}

	result, err := engine.Run(context.Background(), deps, "", nil, "", nil)
	if err != nil {
		t.Fatal(err)
	}
	if result.Paths["LOCAL"] != filepath.ToSlash(srcDir) {
		t.Fatalf("expected source path %q, got %q", srcDir, result.Paths["LOCAL"])
	}
}

func TestEngineEmitsPMVariables(t *testing.T) {
	root := t.TempDir()
	store := cachestore.New(root)
	archivePath := buildTestZip(t, t.TempDir())
	backend := &fakeBackend{archivePath: archivePath, locateName: "tool@1.0.zip"}
	remote := &schema.Remote{Name: "r1", Type: "http"}
	engine := &Engine{
		Store:         store,
		Transports:    &fakeTransports{backend: backend},
		RemotesByName: map[string]*schema.Remote{"r1": remote},
		Cascade:       []string{"r1"},
	}

	var sb strings.Builder
	dep := &schema.Dependency{
		Name:     "TOOL",
		Children: []schema.DependencyChild{&schema.Package{Name: "tool", Version: "1.0"}},
	}
	deps := map[string]*schema.Dependency{"TOOL": dep}

	_, err := engine.Run(context.Background(), deps, "", FileEnvSink{Out: &sb}, "", nil)
	if err != nil {
		t.Fatal(err)
	}
	out := sb.String()
	if !strings.Contains(out, "PM_TOOL_VERSION=1.0\n") {
		t.Fatalf("missing PM_TOOL_VERSION in output: %q", out)
	}
	if !strings.Contains(out, "PM_TOOL_PATH=") {
		t.Fatalf("missing PM_TOOL_PATH in output: %q", out)
	}
	if !strings.Contains(out, "PM_PATHS=") {
		t.Fatalf("missing PM_PATHS in output: %q", out)
	}
}

func TestResolveRemoteAmbiguous(t *testing.T) {
	engine := &Engine{
		RemotesByName: map[string]*schema.Remote{
			"proj-a:shared": {Name: "proj-a:shared", Type: "http"},
			"proj-b:shared": {Name: "proj-b:shared", Type: "http"},
		},
	}
	_, err := engine.resolveRemote("shared")
	if err == nil {
		t.Fatal("expected an ambiguity error when two namespaces share a tail name")
	}
}

func TestResolveRemoteUndefined(t *testing.T) {
	engine := &Engine{RemotesByName: map[string]*schema.Remote{}}
	_, err := engine.resolveRemote("nope")
	if err == nil {
		t.Fatal("expected an undefined-remote error")
	}
}
