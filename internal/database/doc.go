// Package database opens the PostgreSQL connection pool backing the
// listing, sale, identity and recency tables.
package database
