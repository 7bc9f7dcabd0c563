// Package storage owns the sqlite file and serializes all access to it.
// Everything above it goes through the typed repositories in internal/repo.
package storage
