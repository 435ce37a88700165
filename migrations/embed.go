// Package migrations embeds the print journal's SQL migrations into the binary.
//
// Files are named YYYYMMDD_HHMMSS_description.{up,down}.sql and applied with
// database.DB.Migrate(ctx, migrations.FS).
package migrations

import "embed"

// FS holds every migration file at its root.
//
//go:embed *.sql
var FS embed.FS
