// Package migrations embeds the goose migrations of the local store.
// Tables of synchronised record types are created from the schema at
// start-up, not here.
package migrations

import "embed"

//go:embed *.sql
var Migrations embed.FS
