package query_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dsuszek/dev-task/models"
	"github.com/dsuszek/dev-task/query"
)

func star(name string, distance int64) models.Star {
	return models.Star{Name: name, Distance: distance}
}

func names(stars []models.Star) []string {
	out := make([]string, len(stars))
	for i, s := range stars {
		out[i] = s.Name
	}
	return out
}

// ─────────────────────────────────────────────────────────────────────────────
// NearestN
// ─────────────────────────────────────────────────────────────────────────────

func TestNearestN(t *testing.T) {
	stars := []models.Star{
		star("StarA", 10),
		star("StarB", 5),
		star("StarC", 15),
		star("StarD", 20),
		star("StarE", 3),
	}

	closest := query.NearestN(stars, 3)

	require.Len(t, closest, 3)
	assert.Equal(t, []string{"StarE", "StarB", "StarA"}, names(closest))
}

func TestNearestN_Limits(t *testing.T) {
	stars := []models.Star{star("A", 3), star("B", 1), star("C", 2)}

	tests := []struct {
		name string
		n    int
		want []string
	}{
		{"zero", 0, []string{}},
		{"negative", -4, []string{}},
		{"exact", 3, []string{"B", "C", "A"}},
		{"larger than input", 10, []string{"B", "C", "A"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := query.NearestN(stars, tt.n)
			require.NotNil(t, got)
			assert.Equal(t, tt.want, names(got))
		})
	}
}

func TestNearestN_StableTies(t *testing.T) {
	stars := []models.Star{
		star("first", 7),
		star("near", 1),
		star("second", 7),
		star("third", 7),
		star("neg", -2),
	}

	got := query.NearestN(stars, 5)

	assert.Equal(t, []string{"neg", "near", "first", "second", "third"}, names(got))
}

func TestNearestN_DoesNotMutateInput(t *testing.T) {
	stars := []models.Star{star("A", 3), star("B", 1), star("C", 2)}
	snapshot := append([]models.Star(nil), stars...)

	got := query.NearestN(stars, 2)
	got = append(got, star("X", 0))

	assert.Equal(t, snapshot, stars)
}

func TestNearestN_Empty(t *testing.T) {
	assert.Empty(t, query.NearestN(nil, 3))
}

// ─────────────────────────────────────────────────────────────────────────────
// CountByDistance
// ─────────────────────────────────────────────────────────────────────────────

func TestCountByDistance(t *testing.T) {
	stars := []models.Star{
		star("StarA", 10),
		star("StarB", 5),
		star("StarC", 15),
		star("StarD", 10),
		star("StarE", 5),
	}

	counts := query.CountByDistance(stars)

	assert.Equal(t, 3, counts.Len())
	assert.Equal(t, []int64{5, 10, 15}, counts.Keys())
	for distance, want := range map[int64]int{5: 2, 10: 2, 15: 1} {
		got, ok := counts.Get(distance)
		assert.True(t, ok)
		assert.Equal(t, want, got, "distance %d", distance)
	}
	_, ok := counts.Get(42)
	assert.False(t, ok)
}

func TestCountByDistance_SumsToInputSize(t *testing.T) {
	stars := []models.Star{star("a", -1), star("b", 0), star("c", 100), star("d", 0), star("e", -1), star("f", 7)}

	counts := query.CountByDistance(stars)

	total := 0
	var keys []int64
	counts.Each(func(distance int64, count int) {
		keys = append(keys, distance)
		total += count
	})
	assert.Equal(t, len(stars), total)
	assert.Equal(t, []int64{-1, 0, 7, 100}, keys)
}

func TestCountByDistance_JSONKeyOrder(t *testing.T) {
	stars := []models.Star{
		star("StarA", 10),
		star("StarB", 5),
		star("StarC", 15),
		star("StarD", 10),
		star("StarE", 5),
	}

	raw, err := json.Marshal(query.CountByDistance(stars))

	require.NoError(t, err)
	assert.Equal(t, `{"5":2,"10":2,"15":1}`, string(raw))
}

func TestCountByDistance_Empty(t *testing.T) {
	counts := query.CountByDistance(nil)

	raw, err := json.Marshal(counts)
	require.NoError(t, err)
	assert.Equal(t, `{}`, string(raw))
	assert.Equal(t, 0, counts.Len())
}

// ─────────────────────────────────────────────────────────────────────────────
// DedupeByName
// ─────────────────────────────────────────────────────────────────────────────

func TestDedupeByName(t *testing.T) {
	stars := []models.Star{
		star("StarA", 10),
		star("StarB", 5),
		star("StarA", 15),
		star("StarC", 20),
		star("StarB", 3),
	}

	unique := query.DedupeByName(stars)

	assert.Equal(t, []models.Star{
		star("StarA", 15),
		star("StarB", 3),
		star("StarC", 20),
	}, unique)
}

func TestDedupeByName_CaseSensitive(t *testing.T) {
	stars := []models.Star{star("vega", 1), star("Vega", 2), star("vega", 3)}

	unique := query.DedupeByName(stars)

	assert.Equal(t, []models.Star{star("vega", 3), star("Vega", 2)}, unique)
}

func TestDedupeByName_KeepsIDOfLastRecord(t *testing.T) {
	stars := []models.Star{
		{ID: 1, Name: "Sol", Distance: 0},
		{ID: 2, Name: "Sirius", Distance: 9},
		{ID: 3, Name: "Sol", Distance: 1},
	}

	unique := query.DedupeByName(stars)

	require.Len(t, unique, 2)
	assert.Equal(t, int64(3), unique[0].ID)
	assert.Equal(t, int64(2), unique[1].ID)
}

func TestDedupeByName_Empty(t *testing.T) {
	unique := query.DedupeByName(nil)
	require.NotNil(t, unique)
	assert.Empty(t, unique)
}
