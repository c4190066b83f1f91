package tick

import (
	"math/bits"

	"github.com/holiman/uint256"

	"datedVamm/internal/model"
)

// Bitmap is a sparse presence index of initialized ticks. Each 256-bit word
// covers 256 consecutive compressed ticks (tick / spacing).
type Bitmap struct {
	spacing int32
	words   map[int16]*uint256.Int
}

// NewBitmap creates an empty bitmap for ticks aligned to spacing.
func NewBitmap(spacing int32) *Bitmap {
	return &Bitmap{spacing: spacing, words: make(map[int16]*uint256.Int)}
}

func position(compressed int32) (int16, uint) {
	return int16(compressed >> 8), uint(compressed & 0xff)
}

func (b *Bitmap) compress(tick int32) int32 {
	compressed := tick / b.spacing
	if tick < 0 && tick%b.spacing != 0 {
		compressed--
	}
	return compressed
}

// Flip toggles the presence bit of tick.
func (b *Bitmap) Flip(tick int32) error {
	if tick%b.spacing != 0 {
		return model.ErrInvalidArgument.Wrapf("tick %d not aligned to spacing %d", tick, b.spacing)
	}
	wordPos, bitPos := position(tick / b.spacing)
	word, ok := b.words[wordPos]
	if !ok {
		word = new(uint256.Int)
		b.words[wordPos] = word
	}
	mask := new(uint256.Int).Lsh(uint256.NewInt(1), bitPos)
	word.Xor(word, mask)
	if word.IsZero() {
		delete(b.words, wordPos)
	}
	return nil
}

// IsSet reports whether the bit for tick is set.
func (b *Bitmap) IsSet(tick int32) bool {
	if tick%b.spacing != 0 {
		return false
	}
	wordPos, bitPos := position(tick / b.spacing)
	word, ok := b.words[wordPos]
	if !ok {
		return false
	}
	return word.Clone().Rsh(word, bitPos).Uint64()&1 == 1
}

// NextInitializedWithinWord returns the next initialized tick at or below tick
// (lte) or strictly above it, searching no further than the current word. When
// no initialized tick exists in the word the word boundary is returned with
// initialized=false.
func (b *Bitmap) NextInitializedWithinWord(tick int32, lte bool) (int32, bool) {
	compressed := b.compress(tick)

	if lte {
		wordPos, bitPos := position(compressed)
		// all bits at or below bitPos
		mask := new(uint256.Int).Lsh(uint256.NewInt(1), bitPos)
		mask.Sub(mask, uint256.NewInt(1)).Add(mask, new(uint256.Int).Lsh(uint256.NewInt(1), bitPos))
		masked := mask.And(mask, b.word(wordPos))
		if masked.IsZero() {
			return (compressed - int32(bitPos)) * b.spacing, false
		}
		msb := uint(masked.BitLen() - 1)
		return (compressed - int32(bitPos-msb)) * b.spacing, true
	}

	wordPos, bitPos := position(compressed + 1)
	// all bits at or above bitPos
	mask := new(uint256.Int).Lsh(uint256.NewInt(1), bitPos)
	mask.Sub(mask, uint256.NewInt(1)).Not(mask)
	masked := mask.And(mask, b.word(wordPos))
	if masked.IsZero() {
		return (compressed + 1 + int32(255-bitPos)) * b.spacing, false
	}
	return (compressed + 1 + int32(leastSignificantBit(masked)-bitPos)) * b.spacing, true
}

func (b *Bitmap) word(pos int16) *uint256.Int {
	if w, ok := b.words[pos]; ok {
		return w
	}
	return new(uint256.Int)
}

func leastSignificantBit(x *uint256.Int) uint {
	for i, limb := range *x {
		if limb != 0 {
			return uint(i*64 + bits.TrailingZeros64(limb))
		}
	}
	return 0
}

func (b *Bitmap) clone() *Bitmap {
	out := NewBitmap(b.spacing)
	for pos, w := range b.words {
		out.words[pos] = w.Clone()
	}
	return out
}
