// Package query holds the pure transforms the star service runs over a fully
// materialized set of stars. Nothing here touches storage or mutates input.
package query

import (
	"bytes"
	"encoding/json"
	"slices"
	"strconv"

	"github.com/dsuszek/dev-task/models"
)

// NearestN returns the n stars with the smallest distance in ascending order.
// The sort is stable, so equal distances keep their input order. n larger
// than the input returns every star; n <= 0 returns an empty slice.
func NearestN(stars []models.Star, n int) []models.Star {
	if n <= 0 {
		return []models.Star{}
	}
	sorted := slices.Clone(stars)
	slices.SortStableFunc(sorted, func(a, b models.Star) int {
		switch {
		case a.Distance < b.Distance:
			return -1
		case a.Distance > b.Distance:
			return 1
		}
		return 0
	})
	if n > len(sorted) {
		n = len(sorted)
	}
	return sorted[:n:n]
}

// ─────────────────────────────────────────────────────────────────────────────
// CountByDistance
// ─────────────────────────────────────────────────────────────────────────────

// DistanceCounts maps a distance to the number of stars at that distance.
// Keys iterate, and serialize, in ascending order.
type DistanceCounts struct {
	keys   []int64
	counts map[int64]int
}

// CountByDistance groups stars by distance and counts each group.
func CountByDistance(stars []models.Star) *DistanceCounts {
	dc := &DistanceCounts{counts: make(map[int64]int, len(stars))}
	for _, s := range stars {
		if _, ok := dc.counts[s.Distance]; !ok {
			dc.keys = append(dc.keys, s.Distance)
		}
		dc.counts[s.Distance]++
	}
	slices.Sort(dc.keys)
	return dc
}

// Len returns the number of distinct distances.
func (dc *DistanceCounts) Len() int { return len(dc.keys) }

// Keys returns the distinct distances in ascending order.
func (dc *DistanceCounts) Keys() []int64 { return slices.Clone(dc.keys) }

// Get returns the count for distance and whether it is present.
func (dc *DistanceCounts) Get(distance int64) (int, bool) {
	n, ok := dc.counts[distance]
	return n, ok
}

// Each calls fn for every distance in ascending order.
func (dc *DistanceCounts) Each(fn func(distance int64, count int)) {
	for _, k := range dc.keys {
		fn(k, dc.counts[k])
	}
}

// MarshalJSON writes a JSON object whose keys appear in ascending numeric
// order, e.g. {"5":2,"10":2,"15":1}. encoding/json would sort map keys as
// strings and put "10" before "5".
func (dc *DistanceCounts) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range dc.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteByte('"')
		buf.WriteString(strconv.FormatInt(k, 10))
		buf.WriteString(`":`)
		buf.WriteString(strconv.Itoa(dc.counts[k]))
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

var _ json.Marshaler = (*DistanceCounts)(nil)

// ─────────────────────────────────────────────────────────────────────────────
// DedupeByName
// ─────────────────────────────────────────────────────────────────────────────

// DedupeByName keeps one star per name. The kept value is the last star seen
// with that name; its position is where the name first appeared.
func DedupeByName(stars []models.Star) []models.Star {
	order := make([]string, 0, len(stars))
	latest := make(map[string]models.Star, len(stars))
	for _, s := range stars {
		if _, seen := latest[s.Name]; !seen {
			order = append(order, s.Name)
		}
		latest[s.Name] = s
	}

	out := make([]models.Star, 0, len(order))
	for _, name := range order {
		out = append(out, latest[name])
	}
	return out
}
