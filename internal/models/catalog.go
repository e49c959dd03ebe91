package models

import (
	"context"
	"errors"
	"sync"
)

// ErrStale is returned by a Refresh superseded by a newer one.
var ErrStale = errors.New("model listing superseded")

// Fetcher lists models for a provider and base URL. Lister and the HTTP
// API client both implement it.
type Fetcher interface {
	List(ctx context.Context, provider, baseURL string) ([]string, error)
}

// Snapshot is the catalog state shown next to the model picker.
type Snapshot struct {
	Provider    string
	BaseURL     string
	Models      []string
	Loading     bool
	Unavailable bool
	Err         string
}

// Catalog caches the model list for the current provider selection. A
// refresh cancels any fetch still running for an older selection and its
// result is never applied.
type Catalog struct {
	fetcher Fetcher

	mutex      sync.Mutex
	generation uint64
	cancel     context.CancelFunc
	snapshot   Snapshot
}

// NewCatalog creates an empty catalog.
func NewCatalog(fetcher Fetcher) *Catalog {
	return &Catalog{fetcher: fetcher}
}

// Refresh fetches the models for provider and baseURL. Upstream failures
// mark the catalog unavailable and are not returned; only a superseded
// refresh reports ErrStale.
func (c *Catalog) Refresh(ctx context.Context, provider, baseURL string) (Snapshot, error) {
	fetchCtx, cancel := context.WithCancel(ctx)

	c.mutex.Lock()

	if c.cancel != nil {
		c.cancel()
	}

	c.generation++
	generation := c.generation
	c.cancel = cancel
	c.snapshot = Snapshot{Provider: provider, BaseURL: baseURL, Loading: true}
	c.mutex.Unlock()

	names, err := c.fetcher.List(fetchCtx, provider, baseURL)

	c.mutex.Lock()
	defer c.mutex.Unlock()

	if generation != c.generation {
		cancel()

		return c.snapshot, ErrStale
	}

	cancel()
	c.cancel = nil

	next := Snapshot{Provider: provider, BaseURL: baseURL, Models: names}
	if err != nil {
		next.Models = nil
		next.Unavailable = true
		next.Err = err.Error()
	}

	c.snapshot = next

	return next, nil
}

// Snapshot returns the current catalog state.
func (c *Catalog) Snapshot() Snapshot {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	return c.snapshot
}
