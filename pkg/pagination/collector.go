package pagination

import (
	"context"
	"fmt"
	"time"

	"github.com/pdir/immobilienscout-api/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog/log"
)

var pagesFetchedTotal = promauto.With(metrics.Registry).NewCounter(prometheus.CounterOpts{
	Namespace: metrics.Namespace,
	Name:      "pages_fetched_total",
	Help:      "Total number of listing pages fetched while aggregating",
})

// maxPrealloc caps the number of pages the result slice is sized for up front.
const maxPrealloc = 64

// PageFunc fetches a single page (1-based) and returns its items.
type PageFunc[T any] func(ctx context.Context, page int) ([]T, error)

// Collect returns first followed by the items of pages 2..totalPages, in
// ascending page order. The first page is assumed to be already fetched.
// A totalPages below 2 returns first unchanged.
func Collect[T any](ctx context.Context, first []T, totalPages int, fetch PageFunc[T]) ([]T, error) {
	if totalPages < 2 {
		return first, nil
	}

	start := time.Now()
	// totalPages comes from the server; bound the preallocation.
	items := make([]T, 0, len(first)*min(totalPages, maxPrealloc))
	items = append(items, first...)

	log.Debug().
		Int("total_pages", totalPages).
		Msg("Collecting remaining pages")

	for page := 2; page <= totalPages; page++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("collect page %d/%d: %w", page, totalPages, err)
		}

		pageItems, err := fetch(ctx, page)
		if err != nil {
			return nil, fmt.Errorf("collect page %d/%d: %w", page, totalPages, err)
		}
		pagesFetchedTotal.Inc()
		items = append(items, pageItems...)

		log.Debug().
			Int("page", page).
			Int("total_pages", totalPages).
			Int("items", len(pageItems)).
			Msg("Page fetched")
	}

	log.Debug().
		Int("pages", totalPages).
		Int("items", len(items)).
		Dur("duration", time.Since(start)).
		Msg("Collect complete")

	return items, nil
}
