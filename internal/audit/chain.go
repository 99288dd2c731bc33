// Package audit implementa las cadenas de hash append-only: AuditChain
// (particionada por tenant) y EvidenceChain (por tenant y evidencia).
//
// Cada evento compromete el hash del anterior de su partición. Los appends a
// una misma partición se serializan en proceso con un lock por franja y el
// store rechaza eslabones duplicados con índices únicos sobre (partición, seq)
// y sobre hash; un conflicto relee la cabeza y reintenta.
package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dropDatabas3/opslinkcad/internal/domain/repository"
	"github.com/dropDatabas3/opslinkcad/internal/observability/logger"
)

const (
	// GenesisHash es el prevHash del primer evento de cada partición.
	GenesisHash = ""

	stripes           = 64
	defaultMaxRetries = 5
)

var (
	ErrTampered     = errors.New("audit: chain integrity violation")
	ErrInvalidEntry = errors.New("audit: invalid entry")
	ErrContention   = errors.New("audit: append contention")
)

// Entry es lo que el caller aporta; seq, ts, prevHash y hash los calcula la cadena.
type Entry struct {
	TenantID    string
	EvidenceID  string
	ActorUserID string
	ActorRole   string
	Action      string
	Entity      string
	EntityID    string
	Before      any
	After       any
	Meta        any
	Note        string
}

// Chain es una instancia de cadena sobre un repositorio.
type Chain struct {
	name       string
	repo       repository.ChainRepository
	evidence   bool
	locks      [stripes]sync.Mutex
	maxRetries int
	now        func() time.Time
	onAppend   func(context.Context, repository.ChainEvent)
}

type Option func(*Chain)

func WithClock(now func() time.Time) Option { return func(c *Chain) { c.now = now } }

func WithMaxRetries(n int) Option { return func(c *Chain) { c.maxRetries = n } }

// WithOnAppend registra un hook que corre después de cada insert exitoso.
func WithOnAppend(fn func(context.Context, repository.ChainEvent)) Option {
	return func(c *Chain) { c.onAppend = fn }
}

// NewAuditChain particiona por tenant; EvidenceID debe venir vacío.
func NewAuditChain(repo repository.ChainRepository, opts ...Option) *Chain {
	return newChain("audit", repo, false, opts)
}

// NewEvidenceChain particiona por (tenant, evidencia); EvidenceID es obligatorio.
func NewEvidenceChain(repo repository.ChainRepository, opts ...Option) *Chain {
	return newChain("evidence", repo, true, opts)
}

func newChain(name string, repo repository.ChainRepository, evidence bool, opts []Option) *Chain {
	c := &Chain{name: name, repo: repo, evidence: evidence, maxRetries: defaultMaxRetries, now: time.Now}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *Chain) Name() string { return c.name }

func (c *Chain) lockFor(p repository.Partition) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(p.String()))
	return &c.locks[h.Sum32()%stripes]
}

func (c *Chain) partition(tenantID, evidenceID string) (repository.Partition, error) {
	if tenantID == "" {
		return repository.Partition{}, fmt.Errorf("%w: tenant requerido", ErrInvalidEntry)
	}
	if c.evidence && evidenceID == "" {
		return repository.Partition{}, fmt.Errorf("%w: evidence id requerido", ErrInvalidEntry)
	}
	if !c.evidence && evidenceID != "" {
		return repository.Partition{}, fmt.Errorf("%w: audit no admite evidence id", ErrInvalidEntry)
	}
	return repository.Partition{TenantID: tenantID, EvidenceID: evidenceID}, nil
}

// Append calcula el siguiente eslabón, lo inserta y retorna el evento persistido.
func (c *Chain) Append(ctx context.Context, in Entry) (*repository.ChainEvent, error) {
	p, err := c.partition(in.TenantID, in.EvidenceID)
	if err != nil {
		return nil, err
	}
	if in.Action == "" {
		return nil, fmt.Errorf("%w: action requerida", ErrInvalidEntry)
	}

	before, err := canonical(in.Before)
	if err != nil {
		return nil, err
	}
	after, err := canonical(in.After)
	if err != nil {
		return nil, err
	}
	meta, err := canonical(in.Meta)
	if err != nil {
		return nil, err
	}

	mu := c.lockFor(p)
	mu.Lock()
	defer mu.Unlock()

	for attempt := 0; attempt < c.maxRetries; attempt++ {
		prevHash, seq := GenesisHash, int64(1)
		last, err := c.repo.Last(ctx, p)
		switch {
		case err == nil:
			prevHash, seq = last.Hash, last.Seq+1
		case !repository.IsNotFound(err):
			return nil, fmt.Errorf("audit: read head: %w", err)
		}

		ev := repository.ChainEvent{
			ID:          uuid.NewString(),
			TenantID:    p.TenantID,
			EvidenceID:  p.EvidenceID,
			Seq:         seq,
			ActorUserID: in.ActorUserID,
			ActorRole:   in.ActorRole,
			Action:      in.Action,
			Entity:      in.Entity,
			EntityID:    in.EntityID,
			Before:      before,
			After:       after,
			Meta:        meta,
			Note:        in.Note,
			TS:          c.now().UTC().Truncate(time.Millisecond),
			PrevHash:    prevHash,
		}
		ev.Hash = ComputeHash(ev)

		err = c.repo.Insert(ctx, ev)
		if err == nil {
			if c.onAppend != nil {
				c.onAppend(ctx, ev)
			}
			return &ev, nil
		}
		if !repository.IsConflict(err) {
			return nil, fmt.Errorf("audit: insert: %w", err)
		}
		// otro proceso escribió la cabeza primero
		logger.From(ctx).Debug("chain append conflict, retrying",
			logger.Component("audit."+c.name),
			logger.Partition(p.String()),
			logger.Int("attempt", attempt+1),
		)
	}
	return nil, fmt.Errorf("%w: %s", ErrContention, p)
}

// canonical serializa un snapshot; nil queda como "".
func canonical(v any) (string, error) {
	switch x := v.(type) {
	case nil:
		return "", nil
	case string:
		return x, nil
	case json.RawMessage:
		if len(x) == 0 {
			return "", nil
		}
		// re-encode para normalizar espacios y orden de claves
		var tmp any
		if err := json.Unmarshal(x, &tmp); err != nil {
			return "", fmt.Errorf("%w: snapshot: %v", ErrInvalidEntry, err)
		}
		v = tmp
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("%w: snapshot: %v", ErrInvalidEntry, err)
	}
	return string(b), nil
}
