package symptoms

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"symptom-tracker/internal/infermedica"
)

// Lister is the slice of the external client the catalog needs.
type Lister interface {
	Symptoms(ctx context.Context) ([]infermedica.CatalogSymptom, error)
}

// Entry is the minified catalog entry served to clients.
type Entry struct {
	ID         string `json:"id"`
	CommonName string `json:"common_name"`
}

// Catalog is the process-wide read-only symptom list. It is loaded
// explicitly at startup and on Refresh; a failed load leaves the
// previous contents in place.
type Catalog struct {
	client Lister
	logger *zap.Logger

	mu   sync.RWMutex
	full []infermedica.CatalogSymptom
	min  []Entry
}

func NewCatalog(client Lister, logger *zap.Logger) *Catalog {
	return &Catalog{
		client: client,
		logger: logger,
		full:   []infermedica.CatalogSymptom{},
		min:    []Entry{},
	}
}

// Refresh re-downloads the symptom list and swaps both views atomically.
func (c *Catalog) Refresh(ctx context.Context) error {
	full, err := c.client.Symptoms(ctx)
	if err != nil {
		c.logger.Error("symptom catalog refresh failed", zap.Error(err))
		return err
	}

	min := make([]Entry, 0, len(full))
	for _, s := range full {
		min = append(min, Entry{ID: s.ID, CommonName: s.CommonName})
	}

	c.mu.Lock()
	c.full = full
	c.min = min
	c.mu.Unlock()

	c.logger.Info("symptom catalog refreshed", zap.Int("count", len(full)))
	return nil
}

// List returns the minified catalog.
func (c *Catalog) List() []Entry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.min
}

// Full returns the complete catalog entries.
func (c *Catalog) Full() []infermedica.CatalogSymptom {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.full
}
