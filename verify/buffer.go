package verify

import (
	"encoding/binary"
)

// BlockBuffer is the scratch area holding single block as a sequence of little-endian words.
type BlockBuffer struct {
	b []byte
}

// NewBlockBuffer allocates buffer for the block of the layout.
func NewBlockBuffer(layout Layout) *BlockBuffer {
	return &BlockBuffer{b: make([]byte, layout.BlockSize)}
}

// Bytes returns the raw bytes of the buffer.
func (bb *BlockBuffer) Bytes() []byte {
	return bb.b
}

// Words returns the number of words in the buffer.
func (bb *BlockBuffer) Words() int {
	return len(bb.b) / WordSize
}

// Word returns the i-th word.
func (bb *BlockBuffer) Word(i int) uint32 {
	return binary.LittleEndian.Uint32(bb.b[i*WordSize:])
}

// SetWord sets the i-th word.
func (bb *BlockBuffer) SetWord(i int, v uint32) {
	binary.LittleEndian.PutUint32(bb.b[i*WordSize:], v)
}

// Fill fills the buffer with the counter sequence starting at counter and returns the counter following
// the last word.
func (bb *BlockBuffer) Fill(counter uint32) uint32 {
	for i := 0; i < bb.Words(); i++ {
		bb.SetWord(i, counter)
		counter += WordSize
	}
	return counter
}
