// Package migrations embeds the goose migrations of the central store.
// Tables of synchronised record types are created from the schema by
// repomanager.EnsureTables.
package migrations

import "embed"

//go:embed *.sql
var Migrations embed.FS
