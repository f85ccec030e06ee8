package gallery

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCosineSimilarityIdenticalVectors(t *testing.T) {
	a := []float32{1, 0, 0}
	s := cosineSimilarity(a, a)
	assert.GreaterOrEqual(t, s, float32(0.999), "expected identical vectors to score near 1.0")
}

func TestCosineSimilarityOrthogonalVectors(t *testing.T) {
	a := []float32{1, 0}
	b := []float32{0, 1}
	assert.Equal(t, float32(0), cosineSimilarity(a, b), "expected orthogonal vectors to score 0")
}

func TestCosineSimilarityMismatchedLengthReturnsSentinel(t *testing.T) {
	a := []float32{1, 0, 0}
	b := []float32{1, 0}
	assert.Equal(t, float32(-1), cosineSimilarity(a, b), "expected mismatched-length vectors to return -1")
}

func TestSortScoredDescOrdersHighestFirst(t *testing.T) {
	s := []scoredMatch{{idx: 0, score: 0.2}, {idx: 1, score: 0.9}, {idx: 2, score: 0.5}}
	sortScoredDesc(s)

	assert.Equal(t, 1, s[0].idx)
	assert.Equal(t, 2, s[1].idx)
	assert.Equal(t, 0, s[2].idx)
}
