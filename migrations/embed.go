// Package migrations embeds the versioned SQL migrations for the ledger schema.
package migrations

import "embed"

// FS holds every *.sql migration in this directory.
//
//go:embed *.sql
var FS embed.FS
