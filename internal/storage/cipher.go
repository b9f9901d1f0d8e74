package storage

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// sealedCipher is a Fernet-equivalent authenticated cipher: AES-128-CBC for
// confidentiality plus an HMAC-SHA256 tag over the whole ciphertext for
// integrity, exactly the construction Fernet itself uses. There is no
// Fernet implementation in the dependency corpus, so this derives two
// independent subkeys (a 128-bit encryption key and a 256-bit MAC key)
// from a single 256-bit keyring-sourced key via HKDF, rather than
// asking the caller to manage two keys.
type sealedCipher struct {
	encKey []byte // 16 bytes
	macKey []byte // 32 bytes, used with HMAC-SHA256
}

const (
	sealedIVSize  = aes.BlockSize // 16
	sealedMACSize = sha256.Size   // 32
)

var errCorrupt = errors.New("storage: ciphertext is corrupt or the encryption key has changed")

func newSealedCipher(masterKey []byte) (*sealedCipher, error) {
	if len(masterKey) != 32 {
		return nil, fmt.Errorf("storage: master key must be 32 bytes, got %d", len(masterKey))
	}
	kdf := hkdf.New(sha256.New, masterKey, nil, []byte("aim-sdk-go credential seal v1"))

	encKey := make([]byte, 16)
	macKey := make([]byte, 32)
	if _, err := io.ReadFull(kdf, encKey); err != nil {
		return nil, fmt.Errorf("storage: derive encryption subkey: %w", err)
	}
	if _, err := io.ReadFull(kdf, macKey); err != nil {
		return nil, fmt.Errorf("storage: derive mac subkey: %w", err)
	}
	return &sealedCipher{encKey: encKey, macKey: macKey}, nil
}

// seal encrypts plaintext and returns iv || ciphertext || hmac, matching
// Fernet's token layout conceptually (timestamp is omitted: credential
// freshness is tracked by the token manager, not the envelope).
func (c *sealedCipher) seal(plaintext []byte) ([]byte, error) {
	block, err := aes.NewCipher(c.encKey)
	if err != nil {
		return nil, err
	}

	padded := pkcs7Pad(plaintext, aes.BlockSize)

	iv := make([]byte, sealedIVSize)
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return nil, err
	}

	ciphertext := make([]byte, len(padded))
	cbc := cipher.NewCBCEncrypter(block, iv)
	cbc.CryptBlocks(ciphertext, padded)

	mac := hmac.New(sha256.New, c.macKey)
	mac.Write(iv)
	mac.Write(ciphertext)
	tag := mac.Sum(nil)

	out := make([]byte, 0, len(iv)+len(ciphertext)+len(tag))
	out = append(out, iv...)
	out = append(out, ciphertext...)
	out = append(out, tag...)
	return out, nil
}

// open verifies and decrypts a blob produced by seal. Any structural or
// authentication failure is reported as errCorrupt so the identity store
// can surface a CorruptCredentials error rather than a low-level crypto
// error.
func (c *sealedCipher) open(blob []byte) ([]byte, error) {
	if len(blob) < sealedIVSize+sealedMACSize+aes.BlockSize {
		return nil, errCorrupt
	}

	iv := blob[:sealedIVSize]
	tagStart := len(blob) - sealedMACSize
	ciphertext := blob[sealedIVSize:tagStart]
	tag := blob[tagStart:]

	mac := hmac.New(sha256.New, c.macKey)
	mac.Write(iv)
	mac.Write(ciphertext)
	expected := mac.Sum(nil)
	if !hmac.Equal(expected, tag) {
		return nil, errCorrupt
	}

	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return nil, errCorrupt
	}

	block, err := aes.NewCipher(c.encKey)
	if err != nil {
		return nil, err
	}
	plaintext := make([]byte, len(ciphertext))
	cbc := cipher.NewCBCDecrypter(block, iv)
	cbc.CryptBlocks(plaintext, ciphertext)

	unpadded, err := pkcs7Unpad(plaintext)
	if err != nil {
		return nil, errCorrupt
	}
	return unpadded, nil
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	padLen := blockSize - (len(data) % blockSize)
	padded := make([]byte, len(data)+padLen)
	copy(padded, data)
	for i := len(data); i < len(padded); i++ {
		padded[i] = byte(padLen)
	}
	return padded
}

func pkcs7Unpad(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, errCorrupt
	}
	padLen := int(data[len(data)-1])
	if padLen == 0 || padLen > len(data) || padLen > aes.BlockSize {
		return nil, errCorrupt
	}
	for _, b := range data[len(data)-padLen:] {
		if int(b) != padLen {
			return nil, errCorrupt
		}
	}
	return data[:len(data)-padLen], nil
}
