package bloom_test

import (
	"fmt"
	"testing"

	"github.com/fwojciec/smartcrawl/bloom"
	"github.com/stretchr/testify/assert"
)

func TestKeySet_Add(t *testing.T) {
	t.Parallel()

	s := bloom.NewKeySet(1000, 0.01)

	assert.False(t, s.Has("https://example.com/a"))
	assert.True(t, s.Add("https://example.com/a"))
	assert.False(t, s.Add("https://example.com/a"), "second add is not new")
	assert.True(t, s.Has("https://example.com/a"))
	assert.False(t, s.Has("https://example.com/b"))
	assert.Equal(t, 1, s.Len())
}

func TestKeySet_NoFalsePositives(t *testing.T) {
	t.Parallel()

	// A tiny filter saturates quickly, so most misses pass the filter and
	// must be answered by the exact set.
	s := bloom.NewKeySet(8, 0.5)
	for i := range 500 {
		s.Add(fmt.Sprintf("https://example.com/added/%d", i))
	}

	for i := range 500 {
		assert.False(t, s.Has(fmt.Sprintf("https://example.com/other/%d", i)))
	}
	assert.Positive(t, s.Probes())
	assert.Equal(t, 500, s.Len())
}

func TestKeySet_FilterRejectsMostMisses(t *testing.T) {
	t.Parallel()

	const n = 10000
	s := bloom.NewKeySet(n, 0.01)
	for i := range n {
		s.Add(fmt.Sprintf("https://example.com/added/%d", i))
	}
	before := s.Probes()

	for i := range n {
		s.Has(fmt.Sprintf("https://example.com/missing/%d", i))
	}

	rate := float64(s.Probes()-before) / n
	assert.Less(t, rate, 0.02, "filter passed %.3f of misses", rate)
}

func TestKeySet_EstimatedLen(t *testing.T) {
	t.Parallel()

	s := bloom.NewKeySet(0, 0)
	s.Add("a")
	s.Add("b")
	s.Add("c")

	n := s.EstimatedLen()
	assert.True(t, n >= 2 && n <= 4, "expected about 3, got %d", n)
}
