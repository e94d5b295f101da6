// Package pagination aggregates paginated IS24 listings.
//
// The offer API reports the total page count in the first page's paging
// metadata, so aggregation is inherently sequential: page 1 must complete
// before the remaining pages are known. Collect fetches pages 2..N one after
// another and returns all items in ascending page order, page 1 first.
//
// Example usage:
//
//	first := env.Elements
//	all, err := pagination.Collect(ctx, first, env.Paging.NumberOfPages,
//		func(ctx context.Context, page int) ([]client.Document, error) {
//			return c.ListPage(ctx, client.ListOptions{PageNumber: page, PageSize: 100})
//		})
//
// Collect stops at the first failing page and returns no partial data.
package pagination
