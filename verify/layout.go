package verify

import (
	"github.com/pkg/errors"

	"github.com/outofforest/mtdcheck/fault"
	"github.com/outofforest/mtdcheck/mtd"
)

// WordSize is the size of the pattern word.
const WordSize = 4

// GeometryQuerier is implemented by the layers able to report flash geometry.
type GeometryQuerier interface {
	Geometry() (mtd.Geometry, error)
}

// Layout is the block arithmetic derived from the geometry.
type Layout struct {
	BlockSize      uint32
	BlocksPerErase uint32
	TotalBlocks    uint64
}

// NewLayout derives layout from the geometry. Geometry which doesn't split exactly into blocks of whole words
// is rejected.
func NewLayout(geo mtd.Geometry) (Layout, error) {
	if err := geo.Validate(); err != nil {
		return Layout{}, err
	}
	if geo.BlockSize%WordSize != 0 {
		return Layout{}, errors.Errorf("block size %d is not a multiple of word size %d", geo.BlockSize, WordSize)
	}

	blocksPerErase := geo.EraseSize / geo.BlockSize
	return Layout{
		BlockSize:      geo.BlockSize,
		BlocksPerErase: blocksPerErase,
		TotalBlocks:    uint64(geo.NEraseBlocks) * uint64(blocksPerErase),
	}, nil
}

// ResolveGeometry queries the device for geometry and derives the layout from it.
func ResolveGeometry(dev GeometryQuerier) (mtd.Geometry, Layout, error) {
	geo, err := dev.Geometry()
	if err != nil {
		return mtd.Geometry{}, Layout{}, fault.New(fault.DeviceQueryFailure, fault.SiteGeometryQuery, err)
	}

	layout, err := NewLayout(geo)
	if err != nil {
		return mtd.Geometry{}, Layout{}, fault.New(fault.InvalidGeometry, fault.SiteInvalidGeometry, err)
	}
	return geo, layout, nil
}

// WordsPerBlock returns the number of pattern words in the block.
func (l Layout) WordsPerBlock() int {
	return int(l.BlockSize / WordSize)
}

// Offset returns the byte offset of the block.
func (l Layout) Offset(block uint64) int64 {
	return int64(block) * int64(l.BlockSize)
}

// Size returns the byte size of all the blocks.
func (l Layout) Size() int64 {
	return l.Offset(l.TotalBlocks)
}
