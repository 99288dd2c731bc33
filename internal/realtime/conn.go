package realtime

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/dropDatabas3/opslinkcad/internal/domain/types"
	"github.com/dropDatabas3/opslinkcad/internal/observability/logger"
)

// Conn es una conexión registrada. Un único goroutine escribe en el socket
// (writeLoop); el resto encola en send.
type Conn struct {
	id       string
	tenantID string
	userID   string
	caps     types.Capabilities

	ws      *websocket.Conn
	send    chan []byte
	done    chan struct{}
	once    sync.Once
	limiter *rate.Limiter
	cfg     Config
	log     *zap.Logger

	mu         sync.Mutex
	subscribed bool
}

func (c *Conn) ID() string { return c.id }
func (c *Conn) TenantID() string { return c.tenantID }

// Subscribed reporta si la conexión pidió y obtuvo la suscripción al tenant.
func (c *Conn) Subscribed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.subscribed
}

// enqueue no bloquea: con el buffer lleno o la conexión cerrada descarta.
func (c *Conn) enqueue(b []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- b:
		return true
	default:
		return false
	}
}

func (c *Conn) close() {
	c.once.Do(func() {
		close(c.done)
		_ = c.ws.Close()
	})
}

func (c *Conn) writeLoop() {
	ticker := time.NewTicker(c.cfg.PingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case <-c.done:
			_ = c.ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, ""), time.Now().Add(c.cfg.WriteWait))
			return
		case msg := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.log.Debug("write failed", logger.Err(err))
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readLoop bloquea hasta que el transporte se cierra.
func (c *Conn) readLoop(obs Observer) {
	c.ws.SetReadLimit(c.cfg.MaxMessageBytes)
	_ = c.ws.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	})

	for {
		kind, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Debug("read closed", logger.Err(err))
			}
			return
		}
		if kind != websocket.TextMessage {
			continue
		}
		if c.limiter != nil && !c.limiter.Allow() {
			c.enqueue(encode(errorFrame{Type: TypeError, Error: ErrFrameRateLimited}))
			continue
		}
		c.dispatch(data, obs)
	}
}

func (c *Conn) dispatch(data []byte, obs Observer) {
	var msg inbound
	if err := json.Unmarshal(data, &msg); err != nil {
		return
	}
	obs.Inbound(msg.Type)

	switch msg.Type {
	case TypePing:
		c.enqueue(encode(pongFrame{Type: TypePong, TS: time.Now().UnixMilli()}))
	case TypeSubscribe:
		if !c.caps.Allows(types.PermWSSubscribe) {
			c.enqueue(encode(errorFrame{Type: TypeError, Error: ErrFrameForbidden}))
			return
		}
		c.mu.Lock()
		c.subscribed = true
		c.mu.Unlock()
		c.enqueue(encode(subscribedFrame{Type: TypeSubscribed, Channel: ChannelTenant}))
	}
}
