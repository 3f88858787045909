package migrations

import "embed"

// Files contains SQL migrations embedded into the binary, named with a
// sortable prefix (e.g., 001_init.sql) so they apply in order.
//
//go:embed *.sql
var Files embed.FS
