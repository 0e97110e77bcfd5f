package matcher

import (
	"strconv"
	"strings"
)

// keyFunc derives the matching key of a record. Returning false keeps the record
// out of the pass; it is carried to the leftovers untouched.
type keyFunc[T any] func(r *T) (string, bool)

// OccurrenceIndex buckets record positions by key, keeping input order inside each
// bucket. The Nth position in a bucket is the Nth occurrence of that key.
type OccurrenceIndex struct {
	buckets map[string][]int
	keys    []string
}

// newOccurrenceIndex indexes every record for which key reports true
func newOccurrenceIndex[T any](records []T, key keyFunc[T]) *OccurrenceIndex {
	idx := &OccurrenceIndex{buckets: make(map[string][]int)}
	for i := range records {
		k, ok := key(&records[i])
		if !ok {
			continue
		}
		if _, seen := idx.buckets[k]; !seen {
			idx.keys = append(idx.keys, k)
		}
		idx.buckets[k] = append(idx.buckets[k], i)
	}
	return idx
}

// Occurrence returns the position of the nth record with the given key
func (idx *OccurrenceIndex) Occurrence(key string, n int) (int, bool) {
	positions := idx.buckets[key]
	if n < 0 || n >= len(positions) {
		return 0, false
	}
	return positions[n], true
}

// Positions returns the positions indexed under key, in input order
func (idx *OccurrenceIndex) Positions(key string) []int {
	return idx.buckets[key]
}

// Keys returns the distinct keys in order of first appearance
func (idx *OccurrenceIndex) Keys() []string {
	return idx.keys
}

// Len returns the number of distinct keys
func (idx *OccurrenceIndex) Len() int {
	return len(idx.keys)
}

// joinKey builds a composite key. Any empty part makes the key unusable so
// records missing that component never pair on it.
func joinKey(parts ...string) (string, bool) {
	for _, p := range parts {
		if p == "" {
			return "", false
		}
	}
	return strings.Join(parts, "|"), true
}

func unitsKey(units int64) string {
	return strconv.FormatInt(units, 10)
}
