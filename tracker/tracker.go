// Package tracker keeps the authoritative in-memory view of which artifact
// each publisher currently owns.
//
// A Tracker is safe for concurrent use. It never calls into other components
// while holding its lock, so slow I/O elsewhere cannot stall readers.
package tracker

import (
	"maps"
	"sync"

	"go.uber.org/zap"

	"xdao.co/modelsync/artifact"
)

type Tracker struct {
	mu      sync.Mutex
	records map[string]artifact.PublishRecord
	logger  *zap.Logger
}

func New(logger *zap.Logger) *Tracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracker{
		records: map[string]artifact.PublishRecord{},
		logger:  logger.With(zap.String("component", "tracker")),
	}
}

// Get returns the record tracked for publisher, if any.
func (t *Tracker) Get(publisher string) (artifact.PublishRecord, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	rec, ok := t.records[publisher]
	return rec, ok
}

// Snapshot returns an independent copy of every tracked record.
func (t *Tracker) Snapshot() map[string]artifact.PublishRecord {
	t.mu.Lock()
	defer t.mu.Unlock()
	// PublishRecord holds only value fields, so a shallow map copy is deep.
	return maps.Clone(t.records)
}

// RetentionSet returns the (publisher, identity) pairs currently tracked.
func (t *Tracker) RetentionSet() artifact.RetentionSet {
	return artifact.FromRecords(t.Snapshot())
}

func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.records)
}

// ReconcileTrackedSet drops every publisher not in current. New publishers are
// not added; they appear once a sync records them.
func (t *Tracker) ReconcileTrackedSet(current map[string]struct{}) {
	t.mu.Lock()
	var dropped []string
	for publisher := range t.records {
		if _, ok := current[publisher]; !ok {
			delete(t.records, publisher)
			dropped = append(dropped, publisher)
		}
	}
	t.mu.Unlock()

	if len(dropped) > 0 {
		t.logger.Debug("dropped untracked publishers", zap.Strings("publishers", dropped))
	}
}

// RecordUpdate sets the record for publisher, replacing any previous one.
func (t *Tracker) RecordUpdate(publisher string, rec artifact.PublishRecord) {
	t.mu.Lock()
	t.records[publisher] = rec
	t.mu.Unlock()

	t.logger.Debug("updated publisher",
		zap.String("publisher", publisher),
		zap.Stringer("identity", rec.Identity),
		zap.Uint64("height", rec.Height),
	)
}
