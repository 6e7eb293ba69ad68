// Package pagination materializes a paginated SWAPI collection.
//
// SWAPI reports the total item count on every page and paginates with a
// page=N query parameter. The fetcher reads page 1, derives the page count
// from count and the page-1 size, then requests every remaining page at
// once and concatenates results in page order.
//
// Example usage:
//
//	fetcher := pagination.NewFetcher(swapiClient, pagination.DefaultConfig())
//	people, err := fetcher.FetchAll(ctx, "https://swapi.dev/api/people/?page=1")
//
// The fetcher:
//   - Fails fast on the seed page
//   - Fans out pages 2..N without a concurrency limit
//   - Cancels outstanding pages on the first failure and returns no data
//   - Orders results by page number, never by completion order
package pagination
