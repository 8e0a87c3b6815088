package capture

import (
	"context"
	"fmt"
	"time"

	"github.com/alanyoungcy/perpdepth/internal/domain"
)

// Prune deletes segments under prefix last modified before cutoff and
// returns how many were removed.
func Prune(ctx context.Context, reader domain.BlobReader, deleter domain.BlobDeleter, prefix string, cutoff time.Time) (int, error) {
	infos, err := reader.List(ctx, prefix)
	if err != nil {
		return 0, fmt.Errorf("capture: prune list %s: %w", prefix, err)
	}

	removed := 0
	for _, info := range infos {
		if info.LastModified.IsZero() || !info.LastModified.Before(cutoff) {
			continue
		}
		if err := deleter.Delete(ctx, info.Path); err != nil {
			return removed, fmt.Errorf("capture: prune %s: %w", info.Path, err)
		}
		removed++
	}
	return removed, nil
}
