package cache

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/tareeqk/towing/internal/metrics"
	"github.com/tareeqk/towing/internal/storage"
	"github.com/tareeqk/towing/internal/towing"
)

type RequestLister interface {
	ListActiveRequests(ctx context.Context) ([]*storage.Request, error)
}

// RequestCache keeps the open (pending or assigned) towing requests in
// memory so frequent polling reads do not hit the database. Completed
// requests drop out on Set.
type RequestCache struct {
	mu     sync.RWMutex
	cache  map[int64]*storage.Request
	lister RequestLister
}

func NewRequestCache(lister RequestLister) *RequestCache {
	return &RequestCache{
		cache:  make(map[int64]*storage.Request),
		lister: lister,
	}
}

func (c *RequestCache) LoadInitialData(ctx context.Context) error {
	requests, err := c.lister.ListActiveRequests(ctx)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, request := range requests {
		requestCopy := *request
		c.cache[request.ID] = &requestCopy
	}
	metrics.RequestCacheItems.Set(float64(len(c.cache)))
	zap.S().Infof("request cache warmed with %d active requests", len(c.cache))
	return nil
}

func (c *RequestCache) Get(id int64) (*storage.Request, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	request, found := c.cache[id]
	if !found {
		return nil, false
	}
	requestCopy := *request
	return &requestCopy, true
}

func (c *RequestCache) Set(request *storage.Request) {
	if !isActiveStatus(request.Status) {
		c.Delete(request.ID)
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	requestCopy := *request
	c.cache[request.ID] = &requestCopy
	metrics.RequestCacheItems.Set(float64(len(c.cache)))
}

func (c *RequestCache) Delete(id int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, found := c.cache[id]; found {
		delete(c.cache, id)
		metrics.RequestCacheItems.Set(float64(len(c.cache)))
	}
}

func isActiveStatus(status string) bool {
	return status == string(towing.StatusPending) || status == string(towing.StatusAssigned)
}
