// Package migrations carries the SQL schema as an embedded file system so
// the binaries never depend on a checkout layout at runtime.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS

// Dir is the path of the migration files inside FS.
const Dir = "."
