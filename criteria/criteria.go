// Package criteria holds the eligibility rules an artifact must satisfy,
// keyed by the publish height at which they take effect.
package criteria

import (
	"errors"
	"fmt"
	"slices"
	"sort"
)

var ErrIneligible = errors.New("criteria: artifact ineligible")

// Criteria bounds what a publisher may upload for a given height range.
// Artifacts are opaque bytes during sync, so only MaxBytes is enforced there;
// the remaining fields describe the model and are carried for publishers.
type Criteria struct {
	MaxSequenceLength int      `json:"max_sequence_length" yaml:"max_sequence_length"`
	MaxBytes          int64    `json:"max_bytes" yaml:"max_bytes"`
	MaxParameters     int64    `json:"max_parameters" yaml:"max_parameters"`
	AllowedTypes      []string `json:"allowed_types" yaml:"allowed_types"`
	Tokenizer         string   `json:"tokenizer" yaml:"tokenizer"`
	Optimized         bool     `json:"optimized" yaml:"optimized"`
}

// CheckSize rejects artifacts larger than MaxBytes. A zero MaxBytes is unbounded.
func (c Criteria) CheckSize(n int64) error {
	if c.MaxBytes > 0 && n > c.MaxBytes {
		return fmt.Errorf("%w: %d bytes exceeds limit of %d", ErrIneligible, n, c.MaxBytes)
	}
	return nil
}

func (c Criteria) AllowsType(tag string) bool {
	return slices.Contains(c.AllowedTypes, tag)
}

// Tier activates Criteria from Height onwards (inclusive).
type Tier struct {
	Height   uint64   `json:"height" yaml:"height"`
	Criteria Criteria `json:"criteria" yaml:"criteria"`
}

// Table is a step function of height. Tiers are kept sorted by Height.
type Table []Tier

// NewTable sorts tiers by height and rejects duplicate thresholds.
func NewTable(tiers ...Tier) (Table, error) {
	t := append(Table(nil), tiers...)
	sort.Slice(t, func(i, j int) bool { return t[i].Height < t[j].Height })
	for i := 1; i < len(t); i++ {
		if t[i].Height == t[i-1].Height {
			return nil, fmt.Errorf("criteria: duplicate tier at height %d", t[i].Height)
		}
	}
	return t, nil
}

// For returns the criteria of the highest tier whose Height <= height.
// It reports false when height precedes every tier.
func (t Table) For(height uint64) (Criteria, bool) {
	// First tier strictly above height; the one before it applies.
	i := sort.Search(len(t), func(i int) bool { return t[i].Height > height })
	if i == 0 {
		return Criteria{}, false
	}
	return t[i-1].Criteria, true
}
