// Package store defines the format-agnostic credential model shared by every
// container engine and the rotation scheduler.
//
// An engine unlocks its container, parses it into a Model (an ordered,
// immutable list of Entry values) and later rewrites the container from an
// updated Model. Entries carry an Identity, a tagged handle that lets the
// producing engine find the original record again during rewrite:
//
//	NoIdentity{}          Chrome rows (located by site + username)
//	KDBXIdentity{...}     KeePass entry UUID
//	PWSafeIdentity{...}   Password Safe record UUID
//	PassIdentity("...")   pass(1) entry path
//
// Entries are values. Operations that change an entry (WithNewSecret,
// Reverted) return a new Entry; nothing in this package mutates a Model after
// New has built it.
package store
