// Package db provides the embedded schema migrations and the default
// product catalog.
package db

import "embed"

// Migrations holds the golang-migrate up/down files for every table.
//
//go:embed migrations/*.sql
var Migrations embed.FS

// MigrationsDir is the directory inside Migrations that holds the files.
const MigrationsDir = "migrations"

// Products is the default catalog as a JSON array.
//
//go:embed seed/products.json
var Products []byte
