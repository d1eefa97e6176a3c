package migrations

import "embed"

// FS holds the SQL migration scripts, applied in version order.
//
//go:embed scripts/*.sql
var FS embed.FS
