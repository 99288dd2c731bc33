// Package types define tipos de dominio compartidos: capabilities, roles base y blobs cifrados.
package types

import (
	"errors"
	"sort"
	"strings"
)

// Wildcard otorga todas las capabilities.
const Wildcard = "*"

// ErrForbidden indica que el principal no tiene la capability requerida.
var ErrForbidden = errors.New("forbidden")

// Capabilities es un set plano de claves "entity:action". No hay jerarquía:
// "cad:*" no significa nada especial, solo Wildcard es reservado.
type Capabilities map[string]struct{}

// NewCapabilities construye el set ignorando entradas vacías.
func NewCapabilities(perms ...string) Capabilities {
	c := make(Capabilities, len(perms))
	for _, p := range perms {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		c[p] = struct{}{}
	}
	return c
}

// Allows pasa si el set contiene la clave literal o el wildcard.
// Una clave vacía siempre pasa (sin gate).
func (c Capabilities) Allows(key string) bool {
	if key == "" {
		return true
	}
	if _, ok := c[Wildcard]; ok {
		return true
	}
	_, ok := c[key]
	return ok
}

// Require retorna ErrForbidden si Allows(key) es false.
func (c Capabilities) Require(key string) error {
	if c.Allows(key) {
		return nil
	}
	return ErrForbidden
}

// List retorna las claves ordenadas.
func (c Capabilities) List() []string {
	out := make([]string, 0, len(c))
	for k := range c {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
