// Package migrations embeds the goose migration set for the FileInfo
// registry's SQLite schema.
package migrations

import "embed"

//go:embed *.sql
var Migrations embed.FS
