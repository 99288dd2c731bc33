// Package health contiene el DTO de /health.
package health

import "time"

type Response struct {
	OK    bool      `json:"ok"`
	API   bool      `json:"api"`
	DB    bool      `json:"db"`
	WS    bool      `json:"ws"`
	Jobs  bool      `json:"jobs"`
	Redis *bool     `json:"redis,omitempty"`
	TS    time.Time `json:"ts"`
}
