package db

import "embed"

// MigrationFS holds the contacts, activities and notifications schema applied by cmd/migrate.
//
//go:embed migrations/*.sql
var MigrationFS embed.FS
