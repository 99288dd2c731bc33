package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/dropDatabas3/opslinkcad/internal/domain/repository"
)

type seqKey struct {
	p   repository.Partition
	seq int64
}

type chain struct {
	mu     sync.RWMutex
	events map[repository.Partition][]repository.ChainEvent
	hashes map[string]struct{}
	seqs   map[seqKey]struct{}
}

func newChain() *chain {
	return &chain{
		events: map[repository.Partition][]repository.ChainEvent{},
		hashes: map[string]struct{}{},
		seqs:   map[seqKey]struct{}{},
	}
}

func (c *chain) Last(_ context.Context, p repository.Partition) (*repository.ChainEvent, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	evs := c.events[p]
	if len(evs) == 0 {
		return nil, repository.ErrNotFound
	}
	last := evs[len(evs)-1]
	return &last, nil
}

func (c *chain) Insert(_ context.Context, e repository.ChainEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	p := e.Partition()
	sk := seqKey{p, e.Seq}
	if _, dup := c.hashes[e.Hash]; dup {
		return repository.ErrConflict
	}
	if _, dup := c.seqs[sk]; dup {
		return repository.ErrConflict
	}
	c.hashes[e.Hash] = struct{}{}
	c.seqs[sk] = struct{}{}
	evs := append(c.events[p], e)
	sort.Slice(evs, func(i, j int) bool { return evs[i].Seq < evs[j].Seq })
	c.events[p] = evs
	return nil
}

func (c *chain) List(_ context.Context, p repository.Partition) ([]repository.ChainEvent, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]repository.ChainEvent(nil), c.events[p]...), nil
}

// UnsafeEditChainEvent muta un evento ya persistido, simulando manipulación
// directa del almacenamiento. Usar sólo en tests.
func (s *Store) UnsafeEditChainEvent(evidence bool, p repository.Partition, seq int64, edit func(*repository.ChainEvent)) bool {
	c := s.audit
	if evidence {
		c = s.evidence
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.events[p] {
		if c.events[p][i].Seq == seq {
			edit(&c.events[p][i])
			return true
		}
	}
	return false
}
