package psafe3

import (
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"hash"
	"io"

	"golang.org/x/crypto/twofish"
)

// Writer encrypts fields into a new container. Fresh salt, keys and IV are
// generated for every writer.
type Writer struct {
	w        io.Writer
	cbc      cipher.BlockMode
	mac      hash.Hash
	finished bool
}

// NewWriter writes the container preamble to w and returns a Writer.
// Iteration counts below MinIterations are raised to it.
func NewWriter(w io.Writer, password []byte, iter uint32) (*Writer, error) {
	if iter < MinIterations {
		iter = MinIterations
	}

	salt := make([]byte, saltLen)
	k := make([]byte, keyLen)
	l := make([]byte, keyLen)
	iv := make([]byte, blockSize)
	for _, b := range [][]byte{salt, k, l, iv} {
		if _, err := rand.Read(b); err != nil {
			return nil, fmt.Errorf("generate key material: %w", err)
		}
	}

	stretched := stretchKey(password, salt, iter)
	check := sha256.Sum256(stretched[:])
	ecb, err := twofish.NewCipher(stretched[:])
	if err != nil {
		return nil, err
	}

	head := make([]byte, 0, prefixLen)
	head = append(head, tag...)
	head = append(head, salt...)
	head = binary.LittleEndian.AppendUint32(head, iter)
	head = append(head, check[:]...)
	for _, src := range [][]byte{k[:blockSize], k[blockSize:], l[:blockSize], l[blockSize:]} {
		dst := make([]byte, blockSize)
		ecb.Encrypt(dst, src)
		head = append(head, dst...)
	}
	head = append(head, iv...)
	if _, err := w.Write(head); err != nil {
		return nil, fmt.Errorf("write preamble: %w", err)
	}

	block, err := twofish.NewCipher(k)
	if err != nil {
		return nil, err
	}
	return &Writer{
		w:   w,
		cbc: cipher.NewCBCEncrypter(block, iv),
		mac: hmac.New(sha256.New, l),
	}, nil
}

// WriteField encrypts one field.
func (w *Writer) WriteField(f Field) error {
	if w.finished {
		return errors.New("psafe3: write after Finish")
	}
	n := len(f.Data)
	buf := make([]byte, blocksFor(n)*blockSize)
	binary.LittleEndian.PutUint32(buf[:4], uint32(n))
	buf[4] = f.Type
	copy(buf[5:], f.Data)
	if _, err := rand.Read(buf[5+n:]); err != nil {
		return fmt.Errorf("generate padding: %w", err)
	}

	w.cbc.CryptBlocks(buf, buf)
	if _, err := w.w.Write(buf); err != nil {
		return fmt.Errorf("write field: %w", err)
	}
	w.mac.Write(f.Data)
	return nil
}

// Finish appends the end-of-file marker and the HMAC.
func (w *Writer) Finish() error {
	if w.finished {
		return nil
	}
	w.finished = true
	if _, err := io.WriteString(w.w, eofMarker); err != nil {
		return fmt.Errorf("write eof marker: %w", err)
	}
	if _, err := w.w.Write(w.mac.Sum(nil)); err != nil {
		return fmt.Errorf("write hmac: %w", err)
	}
	return nil
}
