package patterns

import (
	"context"

	"github.com/miradorstack/mirador-hotspot/internal/models"
)

// StoreFunc adapts a function to the Store interface.
type StoreFunc func(ctx context.Context, patterns []models.HotspotPattern) error

// ReplacePatterns implements Store.
func (f StoreFunc) ReplacePatterns(ctx context.Context, patterns []models.HotspotPattern) error {
	return f(ctx, patterns)
}
