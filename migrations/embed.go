// Package migrations embeds the SQL schema for the espdisplay SQLite store.
package migrations

import (
	"embed"

	"github.com/nerrad567/espdisplay-rpc/internal/infrastructure/database"
)

//go:embed *.sql
var migrationsFS embed.FS

func init() {
	database.MigrationsFS = migrationsFS
	database.MigrationsDir = "."
}
