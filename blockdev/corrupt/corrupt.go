// Package corrupt wraps a Device and randomly overwrites one byte of a
// block it returns from Get with a random value, simulating undetected bit-rot on the
// backing media. It is an external test collaborator, not part of the
// device stack's production core: layers above it (integrity, in
// particular) must tolerate whatever it returns.
package corrupt

import (
	"math/rand"

	"github.com/blocklayer/blocklayer/blockdev"
)

// Corrupt wraps an inner device, overwriting one randomly chosen byte
// with a random value (which may equal the old one) with probability
// Odds on each Get. Set passes through unmodified.
type Corrupt struct {
	inner blockdev.Device
	rand  *rand.Rand
	odds  float64
}

var _ blockdev.Device = (*Corrupt)(nil)

// New wraps inner with a corruption odds in [0, 1].
func New(inner blockdev.Device, odds float64) *Corrupt {
	return &Corrupt{inner: inner, rand: rand.New(rand.NewSource(rand.Int63())), odds: odds}
}

// SetOdds changes the corruption probability for subsequent Gets.
func (c *Corrupt) SetOdds(odds float64) { c.odds = odds }

func (c *Corrupt) BlockSize() int { return c.inner.BlockSize() }

func (c *Corrupt) Len() uint64 { return c.inner.Len() }

func (c *Corrupt) Get(index uint64) ([]byte, error) {
	block, err := c.inner.Get(index)
	if err != nil {
		return nil, err
	}

	if c.rand.Float64() < c.odds {
		idx := c.rand.Intn(len(block))
		block[idx] = byte(c.rand.Intn(256))
	}

	return block, nil
}

func (c *Corrupt) Set(index uint64, block []byte) error {
	return c.inner.Set(index, block)
}
