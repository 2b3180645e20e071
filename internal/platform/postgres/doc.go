// Package postgres implements the store interfaces on PostgreSQL through
// database/sql and the pgx driver, and embeds the schema migrations.
package postgres
