package redis

import (
	"context"
	"encoding/json"
	"math/rand"
	"time"

	"hackathon-session-service/internal/domain"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// CatalogLoader fetches catalog content from a backing store (e.g. Postgres).
type CatalogLoader interface {
	LoadCatalog(ctx context.Context) (domain.Catalog, error)
}

// CatalogRepository caches the content catalog as JSON in Redis and falls
// back to a loader on cache miss.
type CatalogRepository struct {
	client *redis.Client
	loader CatalogLoader
	ttl    time.Duration
	sf     singleflight.Group
	rnd    *rand.Rand
}

func NewCatalogRepository(client *redis.Client, loader CatalogLoader, ttl time.Duration) *CatalogRepository {
	return &CatalogRepository{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (r *CatalogRepository) GetCatalog(ctx context.Context) (domain.Catalog, error) {
	if raw, err := r.client.Get(ctx, catalogKey).Bytes(); err == nil {
		var catalog domain.Catalog
		if err := json.Unmarshal(raw, &catalog); err == nil {
			return catalog, nil
		}
	}

	result, err, _ := r.sf.Do(catalogKey, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if raw, err := r.client.Get(ctx, catalogKey).Bytes(); err == nil {
			var catalog domain.Catalog
			if err := json.Unmarshal(raw, &catalog); err == nil {
				return catalog, nil
			}
		}

		catalog, err := r.loader.LoadCatalog(ctx)
		if err != nil {
			return domain.Catalog{}, err
		}

		if payload, err := json.Marshal(catalog); err == nil {
			_ = r.client.Set(ctx, catalogKey, payload, r.ttlWithJitter()).Err()
		}
		return catalog, nil
	})
	if err != nil {
		return domain.Catalog{}, err
	}
	return result.(domain.Catalog), nil
}

const catalogKey = "catalog:content"

func (r *CatalogRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	jitterMax := int64(r.ttl) / 10
	return r.ttl + time.Duration(r.rnd.Int63n(jitterMax+1))
}
