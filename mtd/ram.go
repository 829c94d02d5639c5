package mtd

import (
	"io"

	"github.com/pkg/errors"
)

// Dev is the interface required from the backing store.
type Dev interface {
	io.ReadWriteSeeker
	Sync() error
	Size() int64
}

// SectorSizer is implemented by backing stores accessed in units of sectors.
type SectorSizer interface {
	// SectorSize returns the sector size in bytes, 0 if the store has no such constraint.
	SectorSize() int64
}

// RAM is the flash device simulated on top of the backing store.
// Erasing sets bytes to ErasedByte and programming is only able to clear bits,
// so rewriting a block requires erasing its erase unit first.
type RAM struct {
	dev   Dev
	geo   Geometry
	erase []byte
	merge []byte
}

// NewRAM creates flash device of the given geometry on the backing store.
// The store must be at least as large as the flash, bytes beyond it are not used.
// If the store implements SectorSizer, block size must be a multiple of its sector size.
func NewRAM(dev Dev, geo Geometry) (*RAM, error) {
	if err := geo.Validate(); err != nil {
		return nil, err
	}
	if dev.Size() < geo.Size() {
		return nil, errors.Errorf("backing store of %d bytes can't hold flash of %d bytes", dev.Size(), geo.Size())
	}
	if ss, ok := dev.(SectorSizer); ok {
		if sectorSize := ss.SectorSize(); sectorSize > 0 && int64(geo.BlockSize)%sectorSize != 0 {
			return nil, errors.Errorf("block size %d is not a multiple of backing store sector size %d",
				geo.BlockSize, sectorSize)
		}
	}

	erased := make([]byte, geo.EraseSize)
	for i := range erased {
		erased[i] = ErasedByte
	}

	return &RAM{
		dev:   dev,
		geo:   geo,
		erase: erased,
		merge: make([]byte, geo.BlockSize),
	}, nil
}

// Geometry reports the geometry of the device.
func (r *RAM) Geometry() (Geometry, error) {
	return r.geo, nil
}

// BulkErase erases the entire device.
func (r *RAM) BulkErase() error {
	return r.Erase(0, uint64(r.geo.NEraseBlocks))
}

// Erase erases nBlocks erase units starting from the erase unit startBlock.
func (r *RAM) Erase(startBlock, nBlocks uint64) error {
	if startBlock+nBlocks > uint64(r.geo.NEraseBlocks) {
		return errors.Wrapf(ErrOutOfRange, "erase units %d-%d, device has %d", startBlock, startBlock+nBlocks-1,
			r.geo.NEraseBlocks)
	}

	if _, err := r.dev.Seek(int64(startBlock)*int64(r.geo.EraseSize), io.SeekStart); err != nil {
		return errors.WithStack(err)
	}
	for i := uint64(0); i < nBlocks; i++ {
		if _, err := r.dev.Write(r.erase); err != nil {
			return errors.WithStack(err)
		}
	}
	return errors.WithStack(r.dev.Sync())
}

// ReadBlocks reads len(p)/BlockSize blocks starting from startBlock.
func (r *RAM) ReadBlocks(startBlock uint64, p []byte) error {
	if _, err := CheckBlockRange(r.geo, startBlock, p); err != nil {
		return err
	}
	if _, err := r.dev.Seek(int64(startBlock)*int64(r.geo.BlockSize), io.SeekStart); err != nil {
		return errors.WithStack(err)
	}
	if _, err := io.ReadFull(r.dev, p); err != nil {
		return errors.WithStack(err)
	}
	return nil
}

// WriteBlocks programs len(p)/BlockSize blocks starting from startBlock.
func (r *RAM) WriteBlocks(startBlock uint64, p []byte) error {
	nBlocks, err := CheckBlockRange(r.geo, startBlock, p)
	if err != nil {
		return err
	}

	blockSize := uint64(r.geo.BlockSize)
	for i := uint64(0); i < nBlocks; i++ {
		offset := int64((startBlock + i) * blockSize)
		if _, err := r.dev.Seek(offset, io.SeekStart); err != nil {
			return errors.WithStack(err)
		}
		if _, err := io.ReadFull(r.dev, r.merge); err != nil {
			return errors.WithStack(err)
		}

		src := p[i*blockSize : (i+1)*blockSize]
		for j := range r.merge {
			r.merge[j] &= src[j]
		}

		if _, err := r.dev.Seek(offset, io.SeekStart); err != nil {
			return errors.WithStack(err)
		}
		if _, err := r.dev.Write(r.merge); err != nil {
			return errors.WithStack(err)
		}
	}
	return errors.WithStack(r.dev.Sync())
}
