package realtime

import (
	"context"
	"sync"

	"github.com/dropDatabas3/opslinkcad/internal/observability/logger"
	"github.com/dropDatabas3/opslinkcad/internal/observability/readiness"
)

// Hub es el registro de conexiones vivas, indexado por tenant. Es la única
// forma de tocar el conjunto de conexiones: Register, Unregister, Broadcast.
type Hub struct {
	mu       sync.RWMutex
	byTenant map[string]map[*Conn]struct{}
	obs      Observer
	state    *readiness.State
}

func NewHub(obs Observer) *Hub {
	if obs == nil {
		obs = nopObserver{}
	}
	return &Hub{
		byTenant: make(map[string]map[*Conn]struct{}),
		obs:      obs,
		state:    readiness.New("ws"),
	}
}

// Start marca el hub como listo y, cuando ctx termina, cierra todas las
// conexiones. Retorna el estado para el health check.
func (h *Hub) Start(ctx context.Context) *readiness.State {
	h.state.MarkReady()
	logger.From(ctx).Info("realtime hub ready", logger.Component("realtime"))
	go func() {
		<-ctx.Done()
		h.state.MarkDown(nil)
		h.closeAll()
	}()
	return h.state
}

// State retorna el estado de readiness ("ws"); no está listo hasta Start.
func (h *Hub) State() *readiness.State { return h.state }

func (h *Hub) Register(c *Conn) {
	h.mu.Lock()
	set, ok := h.byTenant[c.tenantID]
	if !ok {
		set = make(map[*Conn]struct{})
		h.byTenant[c.tenantID] = set
	}
	set[c] = struct{}{}
	h.mu.Unlock()
	h.obs.Connected()
}

func (h *Hub) Unregister(c *Conn) {
	h.mu.Lock()
	set, ok := h.byTenant[c.tenantID]
	if ok {
		if _, present := set[c]; !present {
			ok = false
		}
		delete(set, c)
		if len(set) == 0 {
			delete(h.byTenant, c.tenantID)
		}
	}
	h.mu.Unlock()
	if ok {
		h.obs.Disconnected()
	}
}

// Broadcast encola ev en cada conexión del tenant que cumpla requiredPerm
// (vacío = sin compuerta). Un buffer lleno descarta el mensaje para esa
// conexión sin afectar al resto; la limpieza ocurre al cerrar el transporte.
// Retorna la cantidad de conexiones que lo recibieron.
func (h *Hub) Broadcast(tenantID string, ev any, requiredPerm string) int {
	data := encode(ev)

	h.mu.RLock()
	targets := make([]*Conn, 0, len(h.byTenant[tenantID]))
	for c := range h.byTenant[tenantID] {
		if c.caps.Allows(requiredPerm) {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()

	delivered := 0
	for _, c := range targets {
		if c.enqueue(data) {
			delivered++
		} else {
			h.obs.Dropped()
		}
	}
	return delivered
}

// Count retorna las conexiones registradas del tenant ("" = todas).
func (h *Hub) Count(tenantID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if tenantID != "" {
		return len(h.byTenant[tenantID])
	}
	n := 0
	for _, set := range h.byTenant {
		n += len(set)
	}
	return n
}

func (h *Hub) closeAll() {
	h.mu.RLock()
	var all []*Conn
	for _, set := range h.byTenant {
		for c := range set {
			all = append(all, c)
		}
	}
	h.mu.RUnlock()
	for _, c := range all {
		c.close()
	}
}

// Observer recibe eventos para métricas.
type Observer interface {
	Connected()
	Disconnected()
	Inbound(frameType string)
	Dropped()
}

type nopObserver struct{}

func (nopObserver) Connected() {}
func (nopObserver) Disconnected() {}
func (nopObserver) Inbound(string) {}
func (nopObserver) Dropped() {}
