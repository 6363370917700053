package store

import "context"

// Engine is the capability every container format exposes. Calls happen in
// order on a single goroutine: Unlock, Parse, then at most one Rewrite.
type Engine interface {
	// Name identifies the source in logs.
	Name() string
	// Path is the container location, empty for stores without a file.
	Path() string
	// Unlock opens the container. A wrong passphrase is retried inside
	// Unlock; any error returned is fatal for this source.
	Unlock(ctx context.Context) error
	// Parse extracts the entries and generates a new secret for each.
	Parse(ctx context.Context) (*Model, error)
	// Rewrite persists updated. Entries whose NewSecret equals their
	// OldSecret must leave the stored record untouched.
	Rewrite(ctx context.Context, updated *Model) error
	// Close releases held resources (database handles, key material).
	Close() error
}
