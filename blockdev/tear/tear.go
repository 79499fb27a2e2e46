// Package tear wraps a Device and randomly "tears" writes: instead of
// writing the whole block, it commits only a random prefix and reports an
// error, leaving the tail of the block at its previous value. It
// simulates a power loss mid-write and is the external collaborator the
// journal layer is built to survive.
package tear

import (
	"errors"
	"fmt"
	"math/rand"

	"github.com/blocklayer/blocklayer/blockdev"
)

// ErrTorn is returned by Set when a write was torn.
var ErrTorn = errors.New("tear: write torn")

// Tear wraps an inner device, tearing a random prefix of each Set with
// probability Odds.
type Tear struct {
	inner blockdev.Device
	rand  *rand.Rand
	odds  float64
}

var _ blockdev.Device = (*Tear)(nil)

// New wraps inner with a tearing odds in [0, 1].
func New(inner blockdev.Device, odds float64) *Tear {
	return &Tear{inner: inner, rand: rand.New(rand.NewSource(rand.Int63())), odds: odds}
}

// SetOdds changes the tearing probability for subsequent Sets.
func (t *Tear) SetOdds(odds float64) { t.odds = odds }

func (t *Tear) BlockSize() int { return t.inner.BlockSize() }

func (t *Tear) Len() uint64 { return t.inner.Len() }

func (t *Tear) Get(index uint64) ([]byte, error) {
	return t.inner.Get(index)
}

func (t *Tear) Set(index uint64, block []byte) error {
	if t.rand.Float64() >= t.odds {
		return t.inner.Set(index, block)
	}

	previous, err := t.inner.Get(index)
	if err != nil {
		return err
	}

	cut := t.rand.Intn(len(block) + 1)
	torn := make([]byte, len(block))
	copy(torn, previous)
	copy(torn[:cut], block[:cut])

	if err := t.inner.Set(index, torn); err != nil {
		return err
	}
	return fmt.Errorf("tear: block %d torn at byte %d: %w", index, cut, ErrTorn)
}
