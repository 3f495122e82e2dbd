// Package migrations embeds the SQL schema of huddle.db.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
