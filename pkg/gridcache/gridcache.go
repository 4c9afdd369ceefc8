// Package gridcache provides the public API for the per-table record cache.
// It exposes the factory for table caches while keeping the loading and
// retention machinery internal.
package gridcache

import (
	"log/slog"

	"github.com/mesh-intelligence/gridcache/internal/store"
	"github.com/mesh-intelligence/gridcache/pkg/types"
)

// Version is the library version reported by clients.
const Version = "0.1.0"

// NewTableCache creates the cache for one table on top of the given backend.
// The schema is assumed to be loaded already by the caller's schema layer.
// The logger may be nil.
//
// Example:
//
//	cache, err := gridcache.NewTableCache(backend, schema, types.Config{}, nil)
//	if err != nil {
//	    return err
//	}
//	defer cache.Close()
//
//	if err := cache.LoadFields(ctx, schema.PrimaryFieldID); err != nil {
//	    return err
//	}
func NewTableCache(backend types.Backend, schema types.TableSchema, cfg types.Config, logger *slog.Logger) (types.TableCache, error) {
	return store.New(backend, schema, cfg, logger)
}
