package resolver

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"gopkg.in/check.v1"

	"github.com/packman-project/packman/internal/schema"
)

func Test(t *testing.T) { check.TestingT(t) }

type ResolverSuite struct{}

var _ = check.Suite(&ResolverSuite{})

const sampleProject = `<?xml version="1.0"?>
<project toolsVersion="1.0" remotes="primary">
  <remote name="primary" type="http" packageLocation="https://example.test/repo"/>
  <dependency name="libfoo" linkPath="_build/libfoo" tags="optional">
    <source path="/tmp/libfoo"/>
  </dependency>
  <dependency name="libbar" linkPath="_build/libbar">
    <package name="libbar" version="2.0" platforms="linux-x86_64"/>
  </dependency>
</project>`

func (s *ResolverSuite) TestResolveAppliesTagFilter(c *check.C) {
	p, err := schema.ParseProject(strings.NewReader(sampleProject), "proj", "deps.packman.xml")
	c.Assert(err, check.IsNil)

	deps, err := Resolve(p, "linux-x86_64", nil, nil)
	c.Assert(err, check.IsNil)
	c.Assert(deps, check.HasLen, 2)

	deps, err = Resolve(p, "linux-x86_64", []string{}, nil)
	c.Assert(err, check.IsNil)
	c.Assert(deps, check.HasLen, 0)
	_, hasBar := deps["libbar"]
	c.Assert(hasBar, check.Equals, false)
}

func (s *ResolverSuite) TestBasenameAndVersionStripsExtension(c *check.C) {
	base, ver, err := BasenameAndVersion("libfoo@1.2.3.7z")
	c.Assert(err, check.IsNil)
	c.Assert(base, check.Equals, "libfoo")
	c.Assert(ver, check.Equals, "1.2.3")
}

func (s *ResolverSuite) TestBasenameAndVersionCaseInsensitiveExtension(c *check.C) {
	base, ver, err := BasenameAndVersion("libfoo@1.0.ZIP")
	c.Assert(err, check.IsNil)
	c.Assert(base, check.Equals, "libfoo")
	c.Assert(ver, check.Equals, "1.0")
}

func (s *ResolverSuite) TestBasenameAndVersionNoExtension(c *check.C) {
	base, ver, err := BasenameAndVersion("libfoo@1.0")
	c.Assert(err, check.IsNil)
	c.Assert(base, check.Equals, "libfoo")
	c.Assert(ver, check.Equals, "1.0")
}

func (s *ResolverSuite) TestBasenameAndVersionMalformedRaises(c *check.C) {
	_, _, err := BasenameAndVersion("libfoo-no-at-sign")
	c.Assert(err, check.NotNil)
	c.Assert(err.Error(), check.Matches, ".*base@version.*")
}

type stubFetcher struct {
	url     string
	found   bool
	content string
	locErr  error
	dlErr   error
}

func (f *stubFetcher) Locate(ctx context.Context, remote *schema.Remote, fileName string) (string, bool, error) {
	if f.locErr != nil {
		return "", false, f.locErr
	}
	return f.url, f.found, nil
}

func (f *stubFetcher) Download(ctx context.Context, remote *schema.Remote, url, destPath string) error {
	if f.dlErr != nil {
		return f.dlErr
	}
	return writeFile(destPath, f.content)
}

func writeFile(path, content string) error {
	return os.WriteFile(path, []byte(content), 0o644)
}

func (s *ResolverSuite) TestDereferenceLabelFetchesFromRemoteWhenNoLocalCache(c *check.C) {
	dir := c.MkDir()
	label := &schema.Label{Name: "latest", CacheExpiration: 300}
	remote := &schema.Remote{Name: "proj:primary", Type: "http"}
	fetcher := &stubFetcher{url: "https://example.test/latest.txt", found: true, content: "libfoo@1.2.3"}

	base, ver, err := DereferenceLabel(context.Background(), label, []*schema.Remote{remote}, fetcher, LabelOptions{LabelsDir: dir})
	c.Assert(err, check.IsNil)
	c.Assert(base, check.Equals, "libfoo")
	c.Assert(ver, check.Equals, "1.2.3")
}

func (s *ResolverSuite) TestDereferenceLabelUsesValidLocalCache(c *check.C) {
	dir := c.MkDir()
	label := &schema.Label{Name: "latest", CacheExpiration: 300}
	c.Assert(writeFile(dir+"/latest.txt", "libcached@9.9.9"), check.IsNil)

	fetcher := &stubFetcher{found: false}
	base, ver, err := DereferenceLabel(context.Background(), label, nil, fetcher, LabelOptions{LabelsDir: dir})
	c.Assert(err, check.IsNil)
	c.Assert(base, check.Equals, "libcached")
	c.Assert(ver, check.Equals, "9.9.9")
}

func (s *ResolverSuite) TestDereferenceLabelRaisesWhenNothingAvailable(c *check.C) {
	dir := c.MkDir()
	label := &schema.Label{Name: "ghost", CacheExpiration: 300}
	fetcher := &stubFetcher{found: false}

	_, _, err := DereferenceLabel(context.Background(), label, nil, fetcher, LabelOptions{LabelsDir: dir})
	c.Assert(err, check.NotNil)
	c.Assert(err.Error(), check.Matches, ".*no label called.*")
}

type fakeLocker struct {
	locked   []string
	unlocked []string
	fail     bool
}

func (l *fakeLocker) Lock(ctx context.Context, key string) (func(), error) {
	if l.fail {
		return nil, errors.New("could not obtain lock")
	}
	l.locked = append(l.locked, key)
	return func() { l.unlocked = append(l.unlocked, key) }, nil
}

func (s *ResolverSuite) TestDereferenceLabelAcquiresAndReleasesLocker(c *check.C) {
	dir := c.MkDir()
	label := &schema.Label{Name: "latest", CacheExpiration: 300}
	remote := &schema.Remote{Name: "proj:primary", Type: "http"}
	fetcher := &stubFetcher{url: "https://example.test/latest.txt", found: true, content: "libfoo@1.2.3"}
	locker := &fakeLocker{}

	base, ver, err := DereferenceLabel(context.Background(), label, []*schema.Remote{remote}, fetcher, LabelOptions{LabelsDir: dir, Locker: locker})
	c.Assert(err, check.IsNil)
	c.Assert(base, check.Equals, "libfoo")
	c.Assert(ver, check.Equals, "1.2.3")
	c.Assert(locker.locked, check.DeepEquals, []string{"latest.txt"})
	c.Assert(locker.unlocked, check.DeepEquals, []string{"latest.txt"})
}

func (s *ResolverSuite) TestDereferenceLabelSkipsLockerWhenLocalCacheValid(c *check.C) {
	dir := c.MkDir()
	label := &schema.Label{Name: "latest", CacheExpiration: 300}
	c.Assert(writeFile(dir+"/latest.txt", "libcached@9.9.9"), check.IsNil)
	locker := &fakeLocker{}

	_, _, err := DereferenceLabel(context.Background(), label, nil, &stubFetcher{found: false}, LabelOptions{LabelsDir: dir, Locker: locker})
	c.Assert(err, check.IsNil)
	c.Assert(locker.locked, check.HasLen, 0)
}

func (s *ResolverSuite) TestDereferenceLabelProceedsWhenLockUnavailable(c *check.C) {
	dir := c.MkDir()
	label := &schema.Label{Name: "latest", CacheExpiration: 300}
	remote := &schema.Remote{Name: "proj:primary", Type: "http"}
	fetcher := &stubFetcher{url: "https://example.test/latest.txt", found: true, content: "libfoo@1.2.3"}

	base, ver, err := DereferenceLabel(context.Background(), label, []*schema.Remote{remote}, fetcher, LabelOptions{LabelsDir: dir, Locker: &fakeLocker{fail: true}})
	c.Assert(err, check.IsNil)
	c.Assert(base, check.Equals, "libfoo")
	c.Assert(ver, check.Equals, "1.2.3")
}

func (s *ResolverSuite) TestIsLocalLabelStillValidBoundary(c *check.C) {
	now := time.Now()
	modTime := now.Add(-300 * time.Second)
	c.Assert(isLocalLabelStillValid(modTime, now, 300), check.Equals, true)
	modTime = now.Add(-301 * time.Second)
	c.Assert(isLocalLabelStillValid(modTime, now, 300), check.Equals, false)
}
