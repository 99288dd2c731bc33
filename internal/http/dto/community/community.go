// Package community contiene DTOs del directorio de comunidades.
package community

import "time"

type Community struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
}

type ListResponse struct {
	OK          bool        `json:"ok"`
	Communities []Community `json:"communities"`
}

type GetResponse struct {
	OK        bool      `json:"ok"`
	Community Community `json:"community"`
}
