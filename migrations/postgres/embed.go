// Package migrations embeds the PostgreSQL schema migrations.
package migrations

import "embed"

// FS contiene las migraciones ordenadas por prefijo numérico.
//
//go:embed *.sql
var FS embed.FS
