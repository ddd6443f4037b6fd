// Package migrations embeds the schema migrations for the operations table.
package migrations

import "embed"

// FS holds the up and down SQL files.
//
//go:embed *.sql
var FS embed.FS
