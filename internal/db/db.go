// Package db holds the SQL schema migrations applied at startup.
package db

import "embed"

// MigrationsDir is the directory of Migrations holding goose SQL files.
const MigrationsDir = "migrations"

//go:embed migrations/*.sql
var Migrations embed.FS
