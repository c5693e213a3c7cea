package checkpoint

import (
	"context"
	"sort"
	"sync"
)

// Memory keeps checkpoints in process memory.
type Memory struct {
	mu      sync.RWMutex
	threads map[string][]*Checkpoint
	seq     int64
	last    map[string]int64 // thread -> seq of its latest Put
}

// NewMemory creates an empty in-memory saver.
func NewMemory() *Memory {
	return &Memory{
		threads: make(map[string][]*Checkpoint),
		last:    make(map[string]int64),
	}
}

func (m *Memory) Put(ctx context.Context, cp *Checkpoint) error {
	if err := prepare(cp); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.threads[cp.ThreadID] = append(m.threads[cp.ThreadID], clone(cp))
	m.seq++
	m.last[cp.ThreadID] = m.seq
	return nil
}

func (m *Memory) Latest(ctx context.Context, threadID string) (*Checkpoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cps := m.threads[threadID]
	if len(cps) == 0 {
		return nil, ErrNotFound
	}
	return clone(cps[len(cps)-1]), nil
}

func (m *Memory) History(ctx context.Context, threadID string) ([]*Checkpoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cps := m.threads[threadID]
	if len(cps) == 0 {
		return nil, ErrNotFound
	}
	out := make([]*Checkpoint, len(cps))
	for i, cp := range cps {
		out[i] = clone(cp)
	}
	return out, nil
}

func (m *Memory) Threads(ctx context.Context) ([]*Checkpoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]string, 0, len(m.threads))
	for id := range m.threads {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		return m.last[ids[i]] > m.last[ids[j]]
	})

	out := make([]*Checkpoint, 0, len(ids))
	for _, id := range ids {
		cps := m.threads[id]
		out = append(out, clone(cps[len(cps)-1]))
	}
	return out, nil
}

func (m *Memory) Delete(ctx context.Context, threadID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.threads[threadID]; !ok {
		return ErrNotFound
	}
	delete(m.threads, threadID)
	delete(m.last, threadID)
	return nil
}

func (m *Memory) Close() error { return nil }
