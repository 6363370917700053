package store

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/google/uuid"

	dserrors "github.com/systmms/passup/internal/errors"
)

// Identity locates the original record of an Entry inside its container.
// The set of implementations is closed; see the package documentation.
type Identity interface {
	// Kind names the engine that produced the identity.
	Kind() string
	String() string
	isIdentity()
}

// NoIdentity is used by engines that locate records by content.
type NoIdentity struct{}

func (NoIdentity) Kind() string   { return "none" }
func (NoIdentity) String() string { return "none" }
func (NoIdentity) isIdentity()    {}

// KDBXIdentity is a KeePass entry UUID.
type KDBXIdentity [16]byte

func (KDBXIdentity) Kind() string { return "kdbx" }

// String renders the UUID the way KeePass field references spell it:
// 32 upper-case hex digits.
func (id KDBXIdentity) String() string {
	return strings.ToUpper(hex.EncodeToString(id[:]))
}

func (KDBXIdentity) isIdentity() {}

// PWSafeIdentity is a Password Safe record UUID (field type 0x01).
type PWSafeIdentity uuid.UUID

func (PWSafeIdentity) Kind() string      { return "pwsafe" }
func (id PWSafeIdentity) String() string { return uuid.UUID(id).String() }
func (PWSafeIdentity) isIdentity()       {}

// PassIdentity is the path of an entry inside a pass(1) store, e.g. "github.com/octo".
type PassIdentity string

func (PassIdentity) Kind() string      { return "pass" }
func (id PassIdentity) String() string { return string(id) }
func (PassIdentity) isIdentity()       {}

// AsKDBX returns the KeePass UUID of id. Any other identity kind is a
// contract violation and yields ErrIdentityMismatch.
func AsKDBX(id Identity) (KDBXIdentity, error) {
	if k, ok := id.(KDBXIdentity); ok {
		return k, nil
	}
	return KDBXIdentity{}, mismatch("kdbx", id)
}

// AsPWSafe returns the Password Safe record UUID of id.
func AsPWSafe(id Identity) (PWSafeIdentity, error) {
	if p, ok := id.(PWSafeIdentity); ok {
		return p, nil
	}
	return PWSafeIdentity{}, mismatch("pwsafe", id)
}

// AsPass returns the pass(1) path of id.
func AsPass(id Identity) (PassIdentity, error) {
	if p, ok := id.(PassIdentity); ok {
		return p, nil
	}
	return "", mismatch("pass", id)
}

func mismatch(want string, got Identity) error {
	kind := "nil"
	if got != nil {
		kind = got.Kind()
	}
	return fmt.Errorf("%w: want %s identity, got %s", dserrors.ErrIdentityMismatch, want, kind)
}
