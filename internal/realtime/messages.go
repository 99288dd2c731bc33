package realtime

import "encoding/json"

// Tipos de frame. Todo frame es un objeto JSON con "type".
const (
	TypeHello      = "hello"
	TypePing       = "ping"
	TypePong       = "pong"
	TypeSubscribe  = "subscribe"
	TypeSubscribed = "subscribed"
	TypeError      = "error"

	ChannelTenant = "tenant"
)

// Errores enviados en frames de tipo error.
const (
	ErrFrameForbidden   = "Forbidden"
	ErrFrameRateLimited = "rate_limited"
)

type inbound struct {
	Type string `json:"type"`
}

type helloFrame struct {
	Type     string `json:"type"`
	TenantID string `json:"tenant_id"`
}

type pongFrame struct {
	Type string `json:"type"`
	TS   int64  `json:"ts"`
}

type subscribedFrame struct {
	Type    string `json:"type"`
	Channel string `json:"channel"`
}

type errorFrame struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

// Event es un mensaje de broadcast; Data viaja tal cual.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

func encode(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		b, _ = json.Marshal(errorFrame{Type: TypeError, Error: "encode"})
	}
	return b
}
