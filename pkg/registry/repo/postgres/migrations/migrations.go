// Package migrations embeds the Postgres schema for the metadata repository.
package migrations

import "embed"

//go:embed *.sql
var Migrations embed.FS
