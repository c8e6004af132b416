// Package migrations embeds the SQL schema for broker lead recommendations.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
