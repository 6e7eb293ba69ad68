// Package swapi defines the SWAPI collection types shared by the fetcher,
// resolver and sorter.
package swapi

import (
	"context"
	"fmt"
	"net/url"
	"strings"
)

// DefaultBaseURL is the versioned SWAPI root used when none is configured.
const DefaultBaseURL = "https://swapi.dev/api"

// Collection names served by the aggregator.
const (
	People  = "people"
	Planets = "planets"
)

// Record is one upstream entity (a person or a planet). Fields are kept
// as decoded JSON so everything SWAPI sends is passed through untouched.
type Record map[string]any

// String returns the field as a string, or "" if it is missing or not a string.
func (r Record) String(field string) string {
	s, _ := r[field].(string)
	return s
}

// Page is one upstream response unit of a paginated collection.
type Page struct {
	// Count is the total number of items across all pages of the query.
	Count int `json:"count"`

	// Next is the URL of the following page, nil on the last page.
	// Informational only; page URLs are derived from the seed URL.
	Next *string `json:"next"`

	// Results holds the records of this page in upstream order.
	Results []Record `json:"results"`
}

// Getter issues a GET against an arbitrary URL and decodes the JSON body
// into v. Any transport error, non-2xx status or decode error is a failure.
type Getter interface {
	GetJSON(ctx context.Context, url string, v any) error
}

// SeedURL returns the page-1 URL of a collection under baseURL,
// e.g. https://swapi.dev/api/people/?page=1.
func SeedURL(baseURL, collection string) (string, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/") + "/" + collection + "/")
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("base url %q must be absolute", baseURL)
	}
	q := u.Query()
	q.Set("page", "1")
	u.RawQuery = q.Encode()
	return u.String(), nil
}
