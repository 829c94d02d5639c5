package mtd

import (
	"github.com/pkg/errors"
)

// ErasedByte is the value of every byte of the erased flash.
const ErasedByte = 0xff

// ErrOutOfRange is returned when requested blocks lie outside the device.
var ErrOutOfRange = errors.New("block range is outside the device")

// Geometry describes the structure of the flash device.
type Geometry struct {
	// BlockSize is the size of the read/write unit.
	BlockSize uint32

	// EraseSize is the size of the erase unit.
	EraseSize uint32

	// NEraseBlocks is the number of erase units.
	NEraseBlocks uint32
}

// BlocksPerErase returns number of blocks in single erase unit.
func (g Geometry) BlocksPerErase() uint32 {
	return g.EraseSize / g.BlockSize
}

// NBlocks returns the total number of blocks.
func (g Geometry) NBlocks() uint64 {
	return uint64(g.NEraseBlocks) * uint64(g.BlocksPerErase())
}

// Size returns the byte capacity of the device.
func (g Geometry) Size() int64 {
	return int64(g.NEraseBlocks) * int64(g.EraseSize)
}

// Validate checks that the geometry is usable.
func (g Geometry) Validate() error {
	if g.BlockSize == 0 || g.EraseSize == 0 || g.NEraseBlocks == 0 {
		return errors.Errorf("geometry fields must be positive: %+v", g)
	}
	if g.EraseSize%g.BlockSize != 0 {
		return errors.Errorf("erase size %d is not a multiple of block size %d", g.EraseSize, g.BlockSize)
	}
	return nil
}

// Device is the interface of the flash device.
type Device interface {
	// Geometry reports the geometry of the device.
	Geometry() (Geometry, error)

	// BulkErase erases the entire device.
	BulkErase() error

	// Erase erases nBlocks erase units starting from the erase unit startBlock.
	Erase(startBlock, nBlocks uint64) error

	// ReadBlocks reads len(p)/BlockSize blocks starting from startBlock.
	ReadBlocks(startBlock uint64, p []byte) error

	// WriteBlocks programs len(p)/BlockSize blocks starting from startBlock.
	WriteBlocks(startBlock uint64, p []byte) error
}

// CheckBlockRange verifies that the buffer covers whole blocks lying inside the device.
func CheckBlockRange(geo Geometry, startBlock uint64, p []byte) (uint64, error) {
	if len(p) == 0 || uint64(len(p))%uint64(geo.BlockSize) != 0 {
		return 0, errors.Errorf("buffer size %d is not a multiple of block size %d", len(p), geo.BlockSize)
	}
	nBlocks := uint64(len(p)) / uint64(geo.BlockSize)
	if startBlock+nBlocks > geo.NBlocks() {
		return 0, errors.Wrapf(ErrOutOfRange, "blocks %d-%d, device has %d", startBlock, startBlock+nBlocks-1,
			geo.NBlocks())
	}
	return nBlocks, nil
}
