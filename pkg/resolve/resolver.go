// Package resolve expands foreign-key URL lists embedded in SWAPI records
// (a planet's residents) into display values fetched from those URLs.
package resolve

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Sternrassler/swapi-aggregator/pkg/swapi"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

var (
	// ErrMalformedReference is returned when a reference field is not a list of URLs.
	ErrMalformedReference = errors.New("malformed reference list")

	// ErrMissingDisplay is returned when a referenced resource lacks the display field.
	ErrMissingDisplay = errors.New("referenced resource has no display value")
)

var referencesResolvedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "swapi_references_resolved_total",
	Help: "Total reference URLs resolved by field",
}, []string{"field"})

// Field names the reference list to expand and the field of each
// referenced resource that replaces its URL.
type Field struct {
	Name    string
	Display string
}

// Residents expands a planet's resident URLs into person names.
var Residents = Field{Name: "residents", Display: "name"}

// Resolver substitutes one reference field across a collection.
type Resolver struct {
	getter swapi.Getter
	field  Field
}

// NewResolver creates a resolver for field.
func NewResolver(getter swapi.Getter, field Field) *Resolver {
	return &Resolver{
		getter: getter,
		field:  field,
	}
}

// ResolveResidents replaces every planet's residents URLs with resident names.
func ResolveResidents(ctx context.Context, getter swapi.Getter, planets []swapi.Record) error {
	return NewResolver(getter, Residents).Resolve(ctx, planets)
}

// Resolve fetches every reference of every record concurrently and, only if
// all of them succeed, replaces each record's field with the display values
// in the original URL order. On error no record is modified.
//
// Records without the field are left untouched.
func (r *Resolver) Resolve(ctx context.Context, records []swapi.Record) error {
	start := time.Now()

	refs := make([][]string, len(records))
	total := 0
	for i, record := range records {
		urls, err := referenceURLs(record, r.field.Name)
		if err != nil {
			return fmt.Errorf("record %d: %w", i, err)
		}
		refs[i] = urls
		total += len(urls)
	}

	resolved := make([][]string, len(records))

	g, gctx := errgroup.WithContext(ctx)
	for i, urls := range refs {
		if urls == nil {
			continue
		}
		g.Go(func() error {
			values, err := r.resolveAll(gctx, urls)
			if err != nil {
				return fmt.Errorf("resolve %s of %q: %w", r.field.Name, records[i].String("name"), err)
			}
			resolved[i] = values
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		log.Warn().
			Err(err).
			Str("field", r.field.Name).
			Dur("duration", time.Since(start)).
			Msg("Reference resolution failed")
		return err
	}

	for i, values := range resolved {
		if refs[i] != nil {
			records[i][r.field.Name] = values
		}
	}

	referencesResolvedTotal.WithLabelValues(r.field.Name).Add(float64(total))
	log.Info().
		Str("field", r.field.Name).
		Int("records", len(records)).
		Int("references", total).
		Dur("duration", time.Since(start)).
		Msg("References resolved")

	return nil
}

// resolveAll fetches urls concurrently and returns their display values
// indexed like urls.
func (r *Resolver) resolveAll(ctx context.Context, urls []string) ([]string, error) {
	values := make([]string, len(urls))

	g, gctx := errgroup.WithContext(ctx)
	for i, u := range urls {
		g.Go(func() error {
			var resource swapi.Record
			if err := r.getter.GetJSON(gctx, u, &resource); err != nil {
				return err
			}
			value, ok := resource[r.field.Display].(string)
			if !ok {
				return fmt.Errorf("%w: %s has no %q", ErrMissingDisplay, u, r.field.Display)
			}
			values[i] = value
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return values, nil
}

// referenceURLs extracts the URL list stored in field. A missing or null
// field yields nil; an empty list yields an empty, non-nil slice.
func referenceURLs(record swapi.Record, field string) ([]string, error) {
	raw, ok := record[field]
	if !ok || raw == nil {
		return nil, nil
	}

	switch v := raw.(type) {
	case []string:
		return append(make([]string, 0, len(v)), v...), nil
	case []any:
		urls := make([]string, 0, len(v))
		for j, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("%w: %s[%d] is %T", ErrMalformedReference, field, j, item)
			}
			urls = append(urls, s)
		}
		return urls, nil
	default:
		return nil, fmt.Errorf("%w: %s is %T", ErrMalformedReference, field, raw)
	}
}
