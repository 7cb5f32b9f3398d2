package appfs

import "embed"

// FS holds the SQL migrations (one directory per database engine) and the email templates.
//
//go:embed migrations all:assets
var FS embed.FS

const (
	EmailTemplatesDir = "assets/templates/email"
)

// MigrationsDir returns the migrations directory of the given database engine.
func MigrationsDir(engine string) string {
	if engine == "sqlite" {
		return "migrations/sqlite"
	}
	return "migrations/postgres"
}
