// Package migrations embeds the SQL migration files for the auth store.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
