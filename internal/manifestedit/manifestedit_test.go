package manifestedit

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/packman-project/packman/internal/pmerrors"
)

func TestCreateRefusesExistingWithoutForce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "deps.packman.xml")
	if err := Create(path, false); err != nil {
		t.Fatal(err)
	}
	if err := Create(path, false); err == nil {
		t.Fatal("expected an error creating over an existing file without force")
	} else if pmErr, ok := err.(*pmerrors.Error); !ok || pmErr.Kind != pmerrors.KindFileExists {
		t.Fatalf("expected KindFileExists, got %v", err)
	}
	if err := Create(path, true); err != nil {
		t.Fatalf("force overwrite should succeed: %v", err)
	}
}

func TestAddAndRemoveDependency(t *testing.T) {
	path := filepath.Join(t.TempDir(), "deps.packman.xml")
	if err := Create(path, false); err != nil {
		t.Fatal(err)
	}

	doc, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := doc.AddDependency("TOOL", "_build/tool", []string{"linux", "release"}, false); err != nil {
		t.Fatal(err)
	}

	reloaded, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	dep := reloaded.dependencyByName("TOOL")
	if dep == nil {
		t.Fatal("expected TOOL dependency to be present after reload")
	}
	if v, _ := dep.Attr("linkPath"); v != "_build/tool" {
		t.Fatalf("expected linkPath to round-trip, got %q", v)
	}
	if v, _ := dep.Attr("tags"); v != "linux release" {
		t.Fatalf("expected tags to round-trip, got %q", v)
	}

	if err := reloaded.AddDependency("TOOL", "", nil, false); err == nil {
		t.Fatal("expected KindFileExists re-adding TOOL without force")
	}
	if err := reloaded.AddDependency("TOOL", "_build/tool2", nil, true); err != nil {
		t.Fatalf("force re-add should succeed: %v", err)
	}

	if err := reloaded.RemoveDependency("TOOL"); err != nil {
		t.Fatal(err)
	}
	final, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if final.dependencyByName("TOOL") != nil {
		t.Fatal("expected TOOL to be gone after RemoveDependency")
	}

	// removing an absent dependency is a no-op, not an error
	if err := final.RemoveDependency("NEVER_EXISTED"); err != nil {
		t.Fatalf("expected no-op removal to succeed, got %v", err)
	}
}

func TestAddPackageMatchesByPlatformSet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "deps.packman.xml")
	if err := Create(path, false); err != nil {
		t.Fatal(err)
	}
	doc, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := doc.AddDependency("TOOL", "", nil, false); err != nil {
		t.Fatal(err)
	}
	if err := doc.AddPackage("TOOL", "tool", "1.0", []string{"windows-x86_64", "linux-x86_64"}, false); err != nil {
		t.Fatal(err)
	}

	// same platform set in a different order should match the existing
	// package and fail without force
	if err := doc.AddPackage("TOOL", "tool", "1.1", []string{"linux-x86_64", "windows-x86_64"}, false); err == nil {
		t.Fatal("expected KindFileExists for a matching platform set without force")
	}
	if err := doc.AddPackage("TOOL", "tool", "1.1", []string{"linux-x86_64", "windows-x86_64"}, true); err != nil {
		t.Fatalf("force replace should succeed: %v", err)
	}

	// a disjoint platform set is a distinct package entry
	if err := doc.AddPackage("TOOL", "tool", "1.0", []string{"macos-x86_64"}, false); err != nil {
		t.Fatalf("disjoint platform set should add cleanly: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	content := string(data)
	if strings.Count(content, "<package") != 2 {
		t.Fatalf("expected exactly two <package> elements, got:\n%s", content)
	}
	if !strings.Contains(content, `version="1.1"`) {
		t.Fatalf("expected the forced replacement version to survive, got:\n%s", content)
	}
}

func TestAddPackageMissingDependency(t *testing.T) {
	path := filepath.Join(t.TempDir(), "deps.packman.xml")
	if err := Create(path, false); err != nil {
		t.Fatal(err)
	}
	doc, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := doc.AddPackage("MISSING", "tool", "1.0", nil, false); err == nil {
		t.Fatal("expected an error adding a package to a nonexistent dependency")
	}
}
