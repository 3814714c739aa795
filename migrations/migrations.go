// Package migrations embeds the per-driver SQL schema migrations.
package migrations

import "embed"

// Embedded at compile time so the binary carries its own schema.
//
//go:embed sqlite/*.sql
var SqliteMigrations embed.FS

//go:embed postgres/*.sql
var PostgresMigrations embed.FS
