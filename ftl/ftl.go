package ftl

import (
	"github.com/hashicorp/go-hclog"
	"github.com/pkg/errors"

	"github.com/outofforest/mtdcheck/mtd"
)

// Flusher is implemented by devices buffering writes.
type Flusher interface {
	Flush() error
}

// Geometry describes the block driver.
type Geometry struct {
	SectorSize uint32
	NSectors   uint64
}

// Size returns the byte capacity of the driver.
func (g Geometry) Size() int64 {
	return int64(g.NSectors) * int64(g.SectorSize)
}

// FTL exposes flash device as a block driver. Sectors are the blocks of the flash device.
// Writing a sector which isn't aligned to the erase unit rewrites the whole unit.
type FTL struct {
	dev    mtd.Device
	geo    mtd.Geometry
	log    hclog.Logger
	eblock []byte
}

// New creates block driver on top of the flash device.
func New(dev mtd.Device, log hclog.Logger) (*FTL, error) {
	geo, err := dev.Geometry()
	if err != nil {
		return nil, err
	}
	if err := geo.Validate(); err != nil {
		return nil, err
	}

	return &FTL{
		dev:    dev,
		geo:    geo,
		log:    log.Named("ftl"),
		eblock: make([]byte, geo.EraseSize),
	}, nil
}

// Geometry returns the geometry of the block driver.
func (f *FTL) Geometry() Geometry {
	return Geometry{
		SectorSize: f.geo.BlockSize,
		NSectors:   f.geo.NBlocks(),
	}
}

// ReadSectors reads len(p)/SectorSize sectors starting from startSector.
func (f *FTL) ReadSectors(startSector uint64, p []byte) error {
	return f.dev.ReadBlocks(startSector, p)
}

// WriteSectors writes len(p)/SectorSize sectors starting from startSector.
func (f *FTL) WriteSectors(startSector uint64, p []byte) error {
	nSectors, err := mtd.CheckBlockRange(f.geo, startSector, p)
	if err != nil {
		return err
	}

	blocksPerErase := uint64(f.geo.BlocksPerErase())
	sectorSize := uint64(f.geo.BlockSize)

	for nSectors > 0 {
		eraseBlock := startSector / blocksPerErase
		firstSector := eraseBlock * blocksPerErase
		offset := startSector - firstSector
		n := min(blocksPerErase-offset, nSectors)
		chunk := p[:n*sectorSize]

		if offset == 0 && n == blocksPerErase {
			if err := f.dev.Erase(eraseBlock, 1); err != nil {
				return err
			}
			if err := f.dev.WriteBlocks(firstSector, chunk); err != nil {
				return err
			}
		} else {
			f.log.Trace("rewriting erase unit", "eraseBlock", eraseBlock, "sector", startSector, "count", n)
			if err := f.dev.ReadBlocks(firstSector, f.eblock); err != nil {
				return err
			}
			copy(f.eblock[offset*sectorSize:], chunk)
			if err := f.dev.Erase(eraseBlock, 1); err != nil {
				return err
			}
			if err := f.dev.WriteBlocks(firstSector, f.eblock); err != nil {
				return err
			}
		}

		p = p[n*sectorSize:]
		startSector += n
		nSectors -= n
	}
	return nil
}

// Flush flushes buffered writes of the flash device, if it buffers them.
func (f *FTL) Flush() error {
	flusher, ok := f.dev.(Flusher)
	if !ok {
		return nil
	}
	return errors.WithStack(flusher.Flush())
}
