// Package migrations embeds the goose SQL migrations for the relational
// database backend's two fixed tables (objects, accounts). Per-class
// field tables are not migrations — they are created on demand by the
// backend from the loaded DC schema (see sqlbackend.EnsureClassTable).
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
