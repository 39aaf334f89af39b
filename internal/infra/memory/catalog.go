package memory

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"hackathon-session-service/internal/domain"
	"golang.org/x/sync/singleflight"
)

// CatalogLoader fetches catalog content from a backing store (e.g. Postgres).
type CatalogLoader interface {
	LoadCatalog(ctx context.Context) (domain.Catalog, error)
}

// CatalogRepository caches the catalog with TTL to avoid repeated DB hits.
type CatalogRepository struct {
	loader CatalogLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group
	rnd    *rand.Rand

	mu        sync.RWMutex
	catalog   domain.Catalog
	expiresAt time.Time
	loaded    bool
}

func NewCatalogRepository(loader CatalogLoader, ttl time.Duration) *CatalogRepository {
	return &CatalogRepository{
		loader: loader,
		ttl:    ttl,
		clock:  time.Now,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (r *CatalogRepository) GetCatalog(ctx context.Context) (domain.Catalog, error) {
	now := r.clock()

	r.mu.RLock()
	if r.loaded && r.expiresAt.After(now) {
		catalog := r.catalog
		r.mu.RUnlock()
		return catalog, nil
	}
	r.mu.RUnlock()

	result, err, _ := r.sf.Do("catalog", func() (interface{}, error) {
		now := r.clock()
		r.mu.RLock()
		if r.loaded && r.expiresAt.After(now) {
			catalog := r.catalog
			r.mu.RUnlock()
			return catalog, nil
		}
		r.mu.RUnlock()

		catalog, err := r.loader.LoadCatalog(ctx)
		if err != nil {
			return domain.Catalog{}, err
		}

		r.mu.Lock()
		r.catalog = catalog
		r.expiresAt = now.Add(r.ttlWithJitter())
		r.loaded = true
		r.mu.Unlock()
		return catalog, nil
	})
	if err != nil {
		return domain.Catalog{}, err
	}
	return result.(domain.Catalog), nil
}

// StaticCatalogLoader serves a fixed catalog (useful for tests/demos).
type StaticCatalogLoader struct {
	catalog domain.Catalog
}

func NewStaticCatalogLoader(catalog domain.Catalog) *StaticCatalogLoader {
	return &StaticCatalogLoader{catalog: catalog}
}

func (l *StaticCatalogLoader) LoadCatalog(_ context.Context) (domain.Catalog, error) {
	if len(l.catalog.Levels) == 0 && len(l.catalog.PracticeItems) == 0 {
		return domain.Catalog{}, domain.ErrCatalogNotFound
	}
	return l.catalog, nil
}

func (r *CatalogRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations
	jitterMax := int64(r.ttl) / 10
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}
