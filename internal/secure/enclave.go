package secure

import (
	"errors"
	"sync"

	"github.com/awnumar/memguard"
)

// ErrDestroyed is returned when a buffer is used after Destroy.
var ErrDestroyed = errors.New("secure buffer destroyed")

// SecureBuffer provides memory-safe storage for sensitive data.
// It wraps memguard.Enclave to encrypt secrets at rest in memory
// and protect them from swapping via mlock.
type SecureBuffer struct {
	enclave *memguard.Enclave
	mu      sync.RWMutex
	// destroyed tracks if this buffer has been destroyed to allow
	// idempotent Destroy() calls and prevent use after destroy
	destroyed bool
}

// NewSecureBuffer creates a protected buffer from secret bytes.
// The input slice is wiped by memguard once it has been sealed.
// An empty input yields a buffer that opens to an empty value.
func NewSecureBuffer(data []byte) (*SecureBuffer, error) {
	if len(data) == 0 {
		return &SecureBuffer{}, nil
	}
	return &SecureBuffer{enclave: memguard.NewEnclave(data)}, nil
}

// NewSecureString seals a string. The string itself cannot be wiped, so
// callers should drop their reference to it afterwards.
func NewSecureString(s string) (*SecureBuffer, error) {
	return NewSecureBuffer([]byte(s))
}

// Open decrypts and returns the protected data in a locked buffer.
// The caller MUST call Destroy() on the returned LockedBuffer when done.
func (s *SecureBuffer) Open() (*memguard.LockedBuffer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.destroyed {
		return nil, ErrDestroyed
	}
	if s.enclave == nil {
		return memguard.NewBuffer(0), nil
	}
	return s.enclave.Open()
}

// Reveal returns a copy of the protected value as a string. Used where a
// library API only accepts strings (KDBX credentials, PWSafe writer).
func (s *SecureBuffer) Reveal() (string, error) {
	locked, err := s.Open()
	if err != nil {
		return "", err
	}
	defer locked.Destroy()
	return string(locked.Bytes()), nil
}

// RevealBytes returns a copy of the protected value.
func (s *SecureBuffer) RevealBytes() ([]byte, error) {
	locked, err := s.Open()
	if err != nil {
		return nil, err
	}
	defer locked.Destroy()
	out := make([]byte, len(locked.Bytes()))
	copy(out, locked.Bytes())
	return out, nil
}

// Destroy marks this SecureBuffer as destroyed and prevents further use.
// This method is idempotent.
func (s *SecureBuffer) Destroy() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.destroyed {
		return
	}
	s.enclave = nil
	s.destroyed = true
}

// IsDestroyed returns true if Destroy() has been called on this buffer.
func (s *SecureBuffer) IsDestroyed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.destroyed
}
