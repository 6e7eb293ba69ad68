package pagination

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/Sternrassler/swapi-aggregator/pkg/swapi"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// DefaultPageParam is the query parameter SWAPI paginates with.
const DefaultPageParam = "page"

// ErrMalformedPage is returned when the seed page cannot describe a collection.
var ErrMalformedPage = errors.New("malformed page")

var (
	collectionFetchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "swapi_collection_fetches_total",
		Help: "Total collection fetches by outcome",
	}, []string{"outcome"})

	pagesFetchedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "swapi_pages_fetched_total",
		Help: "Total SWAPI pages fetched successfully",
	})

	collectionFetchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "swapi_collection_fetch_duration_seconds",
		Help:    "Duration of a full collection fetch in seconds",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
	})
)

// Config holds fetcher configuration.
type Config struct {
	// PageParam is the query parameter carrying the 1-based page number.
	PageParam string
}

// DefaultConfig returns the configuration matching SWAPI.
func DefaultConfig() Config {
	return Config{
		PageParam: DefaultPageParam,
	}
}

// Fetcher fetches every page of a collection.
type Fetcher struct {
	getter swapi.Getter
	config Config
}

// NewFetcher creates a new fetcher.
func NewFetcher(getter swapi.Getter, config Config) *Fetcher {
	if config.PageParam == "" {
		config.PageParam = DefaultPageParam
	}

	return &Fetcher{
		getter: getter,
		config: config,
	}
}

// FetchAll returns the concatenated results of every page of the collection
// seeded by seedURL. Either all pages are fetched or an error is returned.
func (f *Fetcher) FetchAll(ctx context.Context, seedURL string) ([]swapi.Record, error) {
	start := time.Now()
	defer func() {
		collectionFetchDuration.Observe(time.Since(start).Seconds())
	}()

	records, err := f.fetchAll(ctx, seedURL)
	if err != nil {
		collectionFetchesTotal.WithLabelValues("failed").Inc()
		log.Warn().
			Err(err).
			Str("url", seedURL).
			Dur("duration", time.Since(start)).
			Msg("Collection fetch failed")
		return nil, err
	}

	collectionFetchesTotal.WithLabelValues("complete").Inc()
	log.Info().
		Str("url", seedURL).
		Int("records", len(records)).
		Dur("duration", time.Since(start)).
		Msg("Collection fetch complete")

	return records, nil
}

func (f *Fetcher) fetchAll(ctx context.Context, seedURL string) ([]swapi.Record, error) {
	var first swapi.Page
	if err := f.getter.GetJSON(ctx, seedURL, &first); err != nil {
		return nil, fmt.Errorf("fetch first page: %w", err)
	}
	if first.Count < 0 {
		return nil, fmt.Errorf("%w: negative count %d", ErrMalformedPage, first.Count)
	}
	pagesFetchedTotal.Inc()

	totalPages := TotalPages(first.Count, len(first.Results))

	log.Debug().
		Str("url", seedURL).
		Int("count", first.Count).
		Int("page_size", len(first.Results)).
		Int("total_pages", totalPages).
		Msg("Starting parallel page fetch")

	if totalPages == 1 {
		if first.Results == nil {
			return []swapi.Record{}, nil
		}
		return first.Results, nil
	}

	// All URLs are derived up front so a bad seed fails before any fan-out.
	urls := make([]string, totalPages-1)
	for i := range urls {
		u, err := pageURL(seedURL, f.config.PageParam, i+2)
		if err != nil {
			return nil, err
		}
		urls[i] = u
	}

	// pages[i] holds the results of page i+2.
	pages := make([][]swapi.Record, len(urls))

	g, gctx := errgroup.WithContext(ctx)
	for i, u := range urls {
		g.Go(func() error {
			var page swapi.Page
			if err := f.getter.GetJSON(gctx, u, &page); err != nil {
				return fmt.Errorf("fetch page %d: %w", i+2, err)
			}
			pages[i] = page.Results
			pagesFetchedTotal.Inc()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	size := len(first.Results)
	for _, p := range pages {
		size += len(p)
	}

	records := make([]swapi.Record, 0, size)
	records = append(records, first.Results...)
	for _, p := range pages {
		records = append(records, p...)
	}

	return records, nil
}

// TotalPages returns ceil(count/pageSize), or 1 when either is zero.
func TotalPages(count, pageSize int) int {
	if count <= 0 || pageSize <= 0 {
		return 1
	}
	return (count + pageSize - 1) / pageSize
}

// PageURL returns seedURL with its page parameter set to page.
func PageURL(seedURL string, page int) (string, error) {
	return pageURL(seedURL, DefaultPageParam, page)
}

func pageURL(seedURL, param string, page int) (string, error) {
	u, err := url.Parse(seedURL)
	if err != nil {
		return "", fmt.Errorf("parse seed url: %w", err)
	}

	q := u.Query()
	q.Set(param, strconv.Itoa(page))
	u.RawQuery = q.Encode()

	return u.String(), nil
}
