// Package migrations embeds the SQL schema migrations for the workspace database.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
