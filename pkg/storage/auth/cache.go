package auth

import (
	"context"
	"sync"
	"time"

	"github.com/cjj2010/incubator-opendal/internal/metrics"
)

// refreshMargin is how long before expiry a cached credential is
// refetched.
const refreshMargin = 2 * time.Minute

// CachedLoader caches a resolved credential and transparently refetches
// it when it gets close to expiry. The mutex keeps at most one refresh
// in flight; concurrent operations either reuse the cached value or
// wait for the single refresh. A refresh is invisible to operation
// callers unless the refetch itself fails.
type CachedLoader struct {
	service string
	inner   Loader
	margin  time.Duration

	mu     sync.Mutex
	cached *Credential
}

// NewCachedLoader wraps inner with expiry-aware caching. The service
// name labels refresh metrics.
func NewCachedLoader(service string, inner Loader) *CachedLoader {
	return &CachedLoader{service: service, inner: inner, margin: refreshMargin}
}

func (l *CachedLoader) Load(ctx context.Context) (*Credential, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.cached.Valid() && !l.cached.ExpiresWithin(l.margin) {
		c := *l.cached
		return &c, nil
	}

	cred, err := l.inner.Load(ctx)
	if err != nil {
		metrics.RecordCredentialRefresh(l.service, false)
		return nil, err
	}
	if !cred.Valid() {
		return nil, nil
	}
	metrics.RecordCredentialRefresh(l.service, true)
	l.cached = cred
	c := *cred
	return &c, nil
}
