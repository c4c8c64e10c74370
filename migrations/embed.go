// Package migrations carries the roster schema. Importing it for side
// effects points the database package at the embedded SQL files.
package migrations

import (
	"embed"

	"github.com/nerrad567/lightbridge/internal/infrastructure/database"
)

//go:embed *.sql
var files embed.FS

func init() {
	database.MigrationsFS = files
	database.MigrationsDir = "."
}
