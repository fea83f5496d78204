package batch

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/marcos1394/agritrust-fieldsync/internal/client"
	"github.com/marcos1394/agritrust-fieldsync/internal/log"
	"github.com/marcos1394/agritrust-fieldsync/internal/token"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Lister fetches the batch catalog; *client.Client satisfies it.
type Lister interface {
	ListBatches(ctx context.Context, token string) ([]client.HarvestBatch, error)
}

// Catalog holds the harvest-batch context scans are recorded against. The
// list is cached on disk so a batch stays selectable in the field without
// connectivity.
type Catalog struct {
	lister    Lister
	tokens    token.Source
	cachePath string
	logger    *log.Logger

	mu       sync.Mutex
	batches  []client.HarvestBatch
	selected *client.HarvestBatch
}

func NewCatalog(lister Lister, tokens token.Source, cachePath string, logger *log.Logger) *Catalog {
	return &Catalog{
		lister:    lister,
		tokens:    tokens,
		cachePath: cachePath,
		logger:    logger,
	}
}

// LoadCache primes the catalog from the on-disk cache. A missing cache is
// not an error; the catalog is simply empty until the first refresh.
func (c *Catalog) LoadCache() error {
	data, err := os.ReadFile(c.cachePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read batch cache %s: %w", c.cachePath, err)
	}
	var batches []client.HarvestBatch
	if err := json.Unmarshal(data, &batches); err != nil {
		return fmt.Errorf("decode batch cache %s: %w", c.cachePath, err)
	}

	c.mu.Lock()
	c.batches = batches
	c.mu.Unlock()
	c.logger.Info("Loaded batch cache", zap.Int("count", len(batches)))
	return nil
}

// Refresh fetches the catalog from the backend and rewrites the cache.
func (c *Catalog) Refresh(ctx context.Context) error {
	tok, err := c.tokens.Token(ctx)
	if err != nil {
		return err
	}
	batches, err := c.lister.ListBatches(ctx, tok)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.batches = batches
	c.mu.Unlock()

	if err := c.persist(batches); err != nil {
		// The in-memory catalog is current either way.
		c.logger.Error("Failed to write batch cache", zap.Error(err))
		return err
	}
	c.logger.Info("Refreshed batch catalog", zap.Int("count", len(batches)))
	return nil
}

// List returns the cached catalog in fetch order.
func (c *Catalog) List() []client.HarvestBatch {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]client.HarvestBatch, len(c.batches))
	copy(out, c.batches)
	return out
}

// Select sets the active batch by ID.
func (c *Catalog) Select(id string) (client.HarvestBatch, error) {
	batchID, err := uuid.Parse(id)
	if err != nil {
		return client.HarvestBatch{}, fmt.Errorf("invalid batch id %q: %w", id, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.batches {
		if c.batches[i].ID == batchID {
			b := c.batches[i]
			c.selected = &b
			return b, nil
		}
	}
	return client.HarvestBatch{}, fmt.Errorf("unknown batch %s", batchID)
}

// Selected returns the active batch, if one has been chosen.
func (c *Catalog) Selected() (client.HarvestBatch, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.selected == nil {
		return client.HarvestBatch{}, false
	}
	return *c.selected, true
}

func (c *Catalog) persist(batches []client.HarvestBatch) error {
	data, err := json.Marshal(batches)
	if err != nil {
		return fmt.Errorf("encode batch cache: %w", err)
	}
	dir := filepath.Dir(c.cachePath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create batch cache directory %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, "batches-*.tmp")
	if err != nil {
		return fmt.Errorf("create batch cache temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write batch cache temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close batch cache temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), c.cachePath); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("replace batch cache %s: %w", c.cachePath, err)
	}
	return nil
}
