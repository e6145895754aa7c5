// Package bloom provides the frontier's dedup key set: a Bloom filter in
// front of an exact set, so most unseen keys are rejected without touching
// the map.
package bloom

import "github.com/bits-and-blooms/bloom/v3"

// Sizing defaults for a KeySet.
const (
	DefaultExpectedKeys      = 10000
	DefaultFalsePositiveRate = 0.01
)

// KeySet records dedup keys. It never reports a false positive: a filter
// hit is confirmed against the exact set. KeySet is not safe for
// concurrent use.
type KeySet struct {
	filter *bloom.BloomFilter
	keys   map[string]struct{}

	// probes counts filter hits that needed the exact set.
	probes int
}

// NewKeySet creates a set sized for n expected keys at the given false
// positive rate. Non-positive arguments fall back to the defaults.
func NewKeySet(n uint, fpRate float64) *KeySet {
	if n == 0 {
		n = DefaultExpectedKeys
	}
	if fpRate <= 0 || fpRate >= 1 {
		fpRate = DefaultFalsePositiveRate
	}
	return &KeySet{
		filter: bloom.NewWithEstimates(n, fpRate),
		keys:   make(map[string]struct{}),
	}
}

// Has reports whether key was added.
func (s *KeySet) Has(key string) bool {
	if !s.filter.TestString(key) {
		return false
	}
	s.probes++
	_, ok := s.keys[key]
	return ok
}

// Add records key and reports whether it was new.
func (s *KeySet) Add(key string) bool {
	if s.Has(key) {
		return false
	}
	s.filter.AddString(key)
	s.keys[key] = struct{}{}
	return true
}

// Len returns the exact number of keys.
func (s *KeySet) Len() int {
	return len(s.keys)
}

// EstimatedLen returns the filter's approximation of Len.
func (s *KeySet) EstimatedLen() uint {
	return uint(s.filter.ApproximatedSize())
}

// Probes returns how many lookups passed the filter and were checked
// against the exact set.
func (s *KeySet) Probes() int {
	return s.probes
}
