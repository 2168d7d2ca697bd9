package database

import "embed"

// EmbeddedMigrations holds the goose SQL migrations compiled into the binary.
//
//go:embed migrations/*.sql
var EmbeddedMigrations embed.FS
