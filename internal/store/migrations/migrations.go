// Package migrations embeds the schema for each supported store driver.
package migrations

import (
	_ "embed"
	"strings"
)

//go:embed sqlite.sql
var sqliteSchema string

//go:embed postgres.sql
var postgresSchema string

// SQLite returns the SQLite schema split into individual statements.
func SQLite() []string {
	return split(sqliteSchema)
}

// Postgres returns the PostgreSQL schema split into individual statements.
func Postgres() []string {
	return split(postgresSchema)
}

func split(schema string) []string {
	var statements []string
	for _, stmt := range strings.Split(schema, ";") {
		if trimmed := strings.TrimSpace(stmt); trimmed != "" {
			statements = append(statements, trimmed)
		}
	}
	return statements
}
