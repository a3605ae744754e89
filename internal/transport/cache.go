package transport

import (
	lru "github.com/hashicorp/golang-lru"

	"github.com/packman-project/packman/internal/pmerrors"
	"github.com/packman-project/packman/internal/schema"
)

// CachingFactory memoizes Backend construction per remote name for the
// lifetime of one packman invocation — fulfillment of a manifest with many
// dependencies on the same remote would otherwise re-authenticate (S3
// session, Azure client, Swift login) on every dependency.
type CachingFactory struct {
	cache *lru.Cache
}

// NewCachingFactory builds a CachingFactory holding up to size constructed
// backends.
func NewCachingFactory(size int) (*CachingFactory, error) {
	c, err := lru.New(size)
	if err != nil {
		return nil, pmerrors.Wrap(pmerrors.KindInternal, err, "creating transport cache")
	}
	return &CachingFactory{cache: c}, nil
}

// Get returns the cached Backend for remote.Name, constructing and caching
// one via New if this is the first request for that remote.
func (f *CachingFactory) Get(remote *schema.Remote) (Backend, error) {
	if v, ok := f.cache.Get(remote.Name); ok {
		return v.(Backend), nil
	}
	backend, err := New(remote)
	if err != nil {
		return nil, err
	}
	f.cache.Add(remote.Name, backend)
	return backend, nil
}
