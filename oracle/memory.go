package oracle

import (
	"context"
	"sort"
	"sync"

	"xdao.co/modelsync/artifact"
	"xdao.co/modelsync/storage"
)

// Memory is an in-process Ledger. Besides signed Append it offers Set and
// Delete for tests and local runs that have no publisher keys.
type Memory struct {
	mu      sync.Mutex
	records map[string]artifact.PublishRecord
	err     error
	reads   int
}

var _ Ledger = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{records: map[string]artifact.PublishRecord{}}
}

func (m *Memory) Record(ctx context.Context, publisher string) (artifact.PublishRecord, bool, error) {
	if err := ctx.Err(); err != nil {
		return artifact.PublishRecord{}, false, storage.FromContext(err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reads++
	if m.err != nil {
		return artifact.PublishRecord{}, false, m.err
	}
	rec, ok := m.records[publisher]
	return rec, ok, nil
}

func (m *Memory) Publishers(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, storage.FromContext(err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	out := make([]string, 0, len(m.records))
	for p := range m.records {
		out = append(out, p)
	}
	sort.Strings(out)
	return out, nil
}

func (m *Memory) Append(ctx context.Context, c Commitment, height uint64) error {
	if err := c.Verify(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return storage.FromContext(err)
	}
	m.Set(c.Publisher, artifact.PublishRecord{Identity: c.Identity, Height: height})
	return nil
}

// Set records rec for publisher without a signature check.
func (m *Memory) Set(publisher string, rec artifact.PublishRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[publisher] = rec
}

func (m *Memory) Delete(publisher string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, publisher)
}

// FailWith makes every read return err until called again with nil.
func (m *Memory) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

func (m *Memory) Reads() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reads
}
