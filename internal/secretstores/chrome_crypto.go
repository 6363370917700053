package secretstores

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha1"
	"errors"
	"fmt"
	"unicode/utf8"

	"golang.org/x/crypto/pbkdf2"
)

const (
	chromeSalt       = "saltysalt"
	chromeIterations = 1
	chromeKeyLen     = 16
	// chromeV10Passphrase is the fixed passphrase of v10 blobs on Linux.
	chromeV10Passphrase = "peanuts"
	chromeTagLen        = 3
)

// chromeIV is 16 spaces.
var chromeIV = bytes.Repeat([]byte{' '}, aes.BlockSize)

var errChromePadding = errors.New("invalid PKCS#7 padding")

// chromeKey derives the AES-128 key of a Chrome password blob.
func chromeKey(passphrase []byte) []byte {
	return pbkdf2.Key(passphrase, []byte(chromeSalt), chromeIterations, chromeKeyLen, sha1.New)
}

// chromeDecrypt decrypts a blob without its version tag. The plaintext must be
// valid UTF-8.
func chromeDecrypt(key, blob []byte) (string, error) {
	if len(blob) == 0 || len(blob)%aes.BlockSize != 0 {
		return "", fmt.Errorf("ciphertext length %d is not a multiple of the block size", len(blob))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", err
	}
	plain := make([]byte, len(blob))
	cipher.NewCBCDecrypter(block, chromeIV).CryptBlocks(plain, blob)

	n := int(plain[len(plain)-1])
	if n == 0 || n > aes.BlockSize || n > len(plain) {
		return "", errChromePadding
	}
	for _, b := range plain[len(plain)-n:] {
		if int(b) != n {
			return "", errChromePadding
		}
	}
	plain = plain[:len(plain)-n]
	if !utf8.Valid(plain) {
		return "", errors.New("decrypted password is not valid UTF-8")
	}
	return string(plain), nil
}

// chromeEncrypt encrypts plaintext and prefixes the version tag.
func chromeEncrypt(key []byte, tag, plaintext string) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	n := aes.BlockSize - len(plaintext)%aes.BlockSize
	padded := append([]byte(plaintext), bytes.Repeat([]byte{byte(n)}, n)...)
	out := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, chromeIV).CryptBlocks(out, padded)
	return append([]byte(tag), out...), nil
}
