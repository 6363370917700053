// Package psafe3 reads and writes Password Safe v3 containers as a stream of
// raw (type, payload) fields.
//
// Layout: "PWS3" | salt[32] | iter u32le | H(P')[32] | B1..B4 (K and L,
// Twofish-ECB under P') | IV[16] | Twofish-CBC field blocks under K |
// "PWS3-EOFPWS3-EOF" | HMAC-SHA256_L(field payloads)[32].
//
// The codec never interprets field payloads, so unknown field types survive a
// read/write cycle untouched.
package psafe3

import (
	"crypto/sha256"
	"encoding/binary"
	"errors"
)

// Well known field types.
const (
	FieldVersion  byte = 0x00 // header
	FieldUUID     byte = 0x01
	FieldGroup    byte = 0x02
	FieldTitle    byte = 0x03
	FieldUsername byte = 0x04
	FieldNotes    byte = 0x05
	FieldPassword byte = 0x06
	FieldURL      byte = 0x0d
	// FieldEnd terminates the header and every record.
	FieldEnd byte = 0xff
)

const (
	tag       = "PWS3"
	eofMarker = "PWS3-EOFPWS3-EOF"
	blockSize = 16
	// MinIterations is the smallest key stretch the writer accepts.
	MinIterations uint32 = 2048

	saltLen   = 32
	keyLen    = 32
	prefixLen = len(tag) + saltLen + 4 + sha256.Size + 4*blockSize + blockSize
	suffixLen = len(eofMarker) + sha256.Size
)

var (
	// ErrInvalidPassword means the stretched key does not match the stored hash.
	ErrInvalidPassword = errors.New("invalid password")
	// ErrNotPWSafe means the input does not start with the v3 tag.
	ErrNotPWSafe = errors.New("not a Password Safe v3 file")
	// ErrCorrupt means the block structure is damaged.
	ErrCorrupt = errors.New("corrupt Password Safe file")
	// ErrHMAC means the integrity code does not match the decrypted payloads.
	ErrHMAC = errors.New("HMAC verification failed")
)

// Field is one raw record field.
type Field struct {
	Type byte
	Data []byte
}

// Version decodes a header version payload (minor, major) into 0xMMmm.
func Version(data []byte) (uint16, bool) {
	if len(data) != 2 {
		return 0, false
	}
	return binary.LittleEndian.Uint16(data), true
}

// VersionField builds a header version field.
func VersionField(v uint16) Field {
	data := make([]byte, 2)
	binary.LittleEndian.PutUint16(data, v)
	return Field{Type: FieldVersion, Data: data}
}

// stretchKey implements the v3 key stretch: X0 = SHA256(P|S), Xi = SHA256(Xi-1).
func stretchKey(password, salt []byte, iter uint32) [sha256.Size]byte {
	h := sha256.New()
	h.Write(password)
	h.Write(salt)
	var x [sha256.Size]byte
	copy(x[:], h.Sum(nil))
	for i := uint32(0); i < iter; i++ {
		x = sha256.Sum256(x[:])
	}
	return x
}

// blocksFor returns how many cipher blocks a field with n payload bytes spans.
func blocksFor(n int) int {
	total := 5 + n
	blocks := total / blockSize
	if total%blockSize != 0 {
		blocks++
	}
	return blocks
}
