// Package crypt provides Crypt, a device adapter that transparently
// encrypts every block with a symmetric cipher keyed by the block's own
// index, so that two blocks holding identical plaintext never produce
// identical ciphertext. It does not change the block size.
package crypt

import (
	"crypto/aes"
	"crypto/cipher"
	"errors"
	"fmt"

	"golang.org/x/crypto/xts"

	"github.com/blocklayer/blocklayer/blockdev"
)

// ErrCrypto wraps any failure from the underlying cipher (key rejected,
// ciphertext/plaintext length mismatch, and so on).
var ErrCrypto = errors.New("crypt: cryptographic operation failed")

// Cipher names a symmetric cipher construction usable by Crypt: disk-
// sector encryption keyed by block index. AES256XTS is the only instance
// provided, matching the reference implementation's default
// (aes_256_xts); other XTS-mode block ciphers could be added the same
// way.
type Cipher struct {
	name      string
	keyLen    int
	blockSize int
	ivLen     int
	newBlock  func(key []byte) (cipher.Block, error)
}

// AES256XTS is AES in XTS mode with two 256-bit keys concatenated into a
// single 64-byte key, the standard disk-encryption construction.
var AES256XTS = Cipher{
	name:      "aes-256-xts",
	keyLen:    64,
	blockSize: aes.BlockSize,
	ivLen:     16,
	newBlock:  aes.NewCipher,
}

// Crypt wraps an inner device of block size S, encrypting/decrypting
// whole blocks with the per-block IV derived from the block index.
type Crypt struct {
	inner  blockdev.Device
	cipher Cipher
	xts    *xts.Cipher
}

// New wraps inner with symmetric encryption under secret using the named
// cipher. Preconditions enforced eagerly (panic on violation, matching
// the device contract's "construction parameters are programmer
// contracts" discipline): the cipher's IV length must be 16 bytes, the
// key length must equal len(secret), and the device's block size must be
// a whole multiple of the cipher's block size.
func New(inner blockdev.Device, secret []byte, c Cipher) (*Crypt, error) {
	if c.ivLen != 16 {
		panic(fmt.Sprintf("crypt: cipher %s has IV length %d, want 16", c.name, c.ivLen))
	}
	if c.keyLen != len(secret) {
		panic(fmt.Sprintf("crypt: cipher %s wants a %d-byte key, got %d", c.name, c.keyLen, len(secret)))
	}
	if inner.BlockSize()%c.blockSize != 0 {
		panic(fmt.Sprintf("crypt: device block size %d is not a multiple of cipher block size %d", inner.BlockSize(), c.blockSize))
	}

	x, err := xts.NewCipher(c.newBlock, secret)
	if err != nil {
		return nil, fmt.Errorf("crypt: %w: %v", ErrCrypto, err)
	}

	return &Crypt{inner: inner, cipher: c, xts: x}, nil
}

var _ blockdev.Device = (*Crypt)(nil)

func (c *Crypt) BlockSize() int { return c.inner.BlockSize() }

func (c *Crypt) Len() uint64 { return c.inner.Len() }

func (c *Crypt) Get(index uint64) ([]byte, error) {
	ciphertext, err := c.inner.Get(index)
	if err != nil {
		return nil, fmt.Errorf("crypt: %w", err)
	}

	plaintext := make([]byte, len(ciphertext))
	c.xts.Decrypt(plaintext, ciphertext, index)
	return plaintext, nil
}

func (c *Crypt) Set(index uint64, block []byte) error {
	ciphertext := make([]byte, len(block))
	c.xts.Encrypt(ciphertext, block, index)

	if err := c.inner.Set(index, ciphertext); err != nil {
		return fmt.Errorf("crypt: %w", err)
	}
	return nil
}
