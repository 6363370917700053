package psafe3

import (
	"crypto/cipher"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"hash"
	"io"

	"golang.org/x/crypto/twofish"
)

// Reader decrypts a container and yields its fields in order.
type Reader struct {
	iter  uint32
	plain []byte
	off   int
	mac   hash.Hash
	want  []byte
	done  bool
}

// NewReader reads the whole container from r and unlocks it with password.
// A wrong password yields ErrInvalidPassword.
func NewReader(r io.Reader, password []byte) (*Reader, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read container: %w", err)
	}
	if len(raw) < len(tag) || string(raw[:len(tag)]) != tag {
		return nil, ErrNotPWSafe
	}
	if len(raw) < prefixLen+suffixLen {
		return nil, fmt.Errorf("%w: file too short", ErrCorrupt)
	}

	p := len(tag)
	salt := raw[p : p+saltLen]
	p += saltLen
	iter := binary.LittleEndian.Uint32(raw[p : p+4])
	p += 4
	storedHash := raw[p : p+sha256.Size]
	p += sha256.Size

	stretched := stretchKey(password, salt, iter)
	check := sha256.Sum256(stretched[:])
	if !hmac.Equal(check[:], storedHash) {
		return nil, ErrInvalidPassword
	}

	ecb, err := twofish.NewCipher(stretched[:])
	if err != nil {
		return nil, err
	}
	k := make([]byte, keyLen)
	l := make([]byte, keyLen)
	ecb.Decrypt(k[:blockSize], raw[p:p+blockSize])
	ecb.Decrypt(k[blockSize:], raw[p+blockSize:p+2*blockSize])
	ecb.Decrypt(l[:blockSize], raw[p+2*blockSize:p+3*blockSize])
	ecb.Decrypt(l[blockSize:], raw[p+3*blockSize:p+4*blockSize])
	p += 4 * blockSize
	iv := raw[p : p+blockSize]
	p += blockSize

	end := len(raw) - suffixLen
	if string(raw[end:end+len(eofMarker)]) != eofMarker || (end-p)%blockSize != 0 {
		return nil, fmt.Errorf("%w: missing end-of-file marker", ErrCorrupt)
	}

	cipherText := raw[p:end]
	block, err := twofish.NewCipher(k)
	if err != nil {
		return nil, err
	}
	plain := make([]byte, len(cipherText))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plain, cipherText)

	return &Reader{
		iter:  iter,
		plain: plain,
		mac:   hmac.New(sha256.New, l),
		want:  append([]byte(nil), raw[end+len(eofMarker):]...),
	}, nil
}

// Iterations returns the key stretch count of the container.
func (r *Reader) Iterations() uint32 {
	return r.iter
}

// ReadField returns the next field, or io.EOF after the last one.
func (r *Reader) ReadField() (Field, error) {
	if r.off >= len(r.plain) {
		r.done = true
		return Field{}, io.EOF
	}
	if len(r.plain)-r.off < blockSize {
		return Field{}, fmt.Errorf("%w: truncated field block", ErrCorrupt)
	}

	n := int(binary.LittleEndian.Uint32(r.plain[r.off : r.off+4]))
	typ := r.plain[r.off+4]
	if n < 0 || n > len(r.plain)-r.off-5 {
		return Field{}, fmt.Errorf("%w: field length %d exceeds stream", ErrCorrupt, n)
	}

	data := make([]byte, n)
	copy(data, r.plain[r.off+5:r.off+5+n])
	r.off += blocksFor(n) * blockSize
	r.mac.Write(data)

	return Field{Type: typ, Data: data}, nil
}

// Verify checks the HMAC over every field payload. It must be called after
// ReadField has returned io.EOF.
func (r *Reader) Verify() error {
	if !r.done {
		return fmt.Errorf("%w: verify called before end of stream", ErrCorrupt)
	}
	if !hmac.Equal(r.mac.Sum(nil), r.want) {
		return ErrHMAC
	}
	return nil
}
