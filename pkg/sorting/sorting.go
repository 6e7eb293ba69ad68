// Package sorting orders a collection of SWAPI records by a caller-chosen
// field. Sorts are not stable: records with equal keys, or two unknown
// measurements, end up in unspecified relative order.
package sorting

import (
	"cmp"
	"slices"
	"strconv"
	"strings"

	"github.com/Sternrassler/swapi-aggregator/pkg/swapi"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// Sort keys accepted by SortBy.
const (
	KeyName   = "name"
	KeyHeight = "height"
	KeyMass   = "mass"
)

// Unknown is the SWAPI sentinel for a missing measurement.
const Unknown = "unknown"

// Locale drives the collation of names.
var Locale = language.English

// Supported reports whether key selects a comparator.
func Supported(key string) bool {
	switch key {
	case KeyName, KeyHeight, KeyMass:
		return true
	default:
		return false
	}
}

// SortBy reorders records in place by key. Unrecognized keys, including "",
// leave records in their original order.
func SortBy(records []swapi.Record, key string) {
	compare := comparator(key)
	if compare == nil {
		return
	}
	slices.SortFunc(records, compare)
}

func comparator(key string) func(a, b swapi.Record) int {
	switch key {
	case KeyName:
		// Collators keep scratch buffers and are not safe for concurrent use.
		c := collate.New(Locale)
		return func(a, b swapi.Record) int {
			return c.CompareString(a.String(KeyName), b.String(KeyName))
		}
	case KeyHeight, KeyMass:
		return func(a, b swapi.Record) int {
			return compareMeasure(a.String(key), b.String(key))
		}
	default:
		return nil
	}
}

// compareMeasure compares numeric text such as "1,358" numerically.
// Unknown or unparseable values sort after every number.
func compareMeasure(a, b string) int {
	x, okA := parseMeasure(a)
	y, okB := parseMeasure(b)

	switch {
	case !okA && !okB:
		return 0
	case !okA:
		return 1
	case !okB:
		return -1
	default:
		return cmp.Compare(x, y)
	}
}

func parseMeasure(s string) (float64, bool) {
	if s == Unknown {
		return 0, false
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", ""), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
