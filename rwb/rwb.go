package rwb

import (
	"encoding/binary"

	"github.com/cespare/xxhash/v2"
	"github.com/hashicorp/go-hclog"
	"github.com/pkg/errors"

	"github.com/outofforest/mtdcheck/mtd"
)

var _ mtd.Device = &RWB{}

// RWB buffers writes and caches reads of the underlying flash device.
// It presents the same interface as the device it wraps. Data written to RWB are visible
// to subsequent reads immediately, even if they haven't reached the device yet.
type RWB struct {
	dev        mtd.Device
	geo        mtd.Geometry
	log        hclog.Logger
	nSlots     uint64
	headers    []header
	data       []byte
	dirtySlots map[uint64]struct{}
}

// New creates write buffer of the given byte size on top of the device.
func New(dev mtd.Device, size int64, log hclog.Logger) (*RWB, error) {
	geo, err := dev.Geometry()
	if err != nil {
		return nil, err
	}
	if err := geo.Validate(); err != nil {
		return nil, err
	}

	nSlots := uint64(size) / uint64(geo.BlockSize)
	if size <= 0 || nSlots == 0 {
		return nil, errors.Errorf("buffer of %d bytes can't hold a single block of %d bytes", size, geo.BlockSize)
	}

	return &RWB{
		dev:        dev,
		geo:        geo,
		log:        log.Named("rwb"),
		nSlots:     nSlots,
		headers:    make([]header, nSlots),
		data:       make([]byte, nSlots*uint64(geo.BlockSize)),
		dirtySlots: make(map[uint64]struct{}, MaxDirtyBlocks),
	}, nil
}

// Geometry reports the geometry of the underlying device.
func (c *RWB) Geometry() (mtd.Geometry, error) {
	return c.dev.Geometry()
}

// BulkErase drops all the buffered blocks and erases the entire device.
func (c *RWB) BulkErase() error {
	for i := range c.headers {
		if c.headers[i].State != freeSlotState {
			c.headers[i].State = invalidSlotState
		}
	}
	for slot := range c.dirtySlots {
		delete(c.dirtySlots, slot)
	}
	return c.dev.BulkErase()
}

// Erase drops buffered blocks belonging to the erase units and erases them on the device.
func (c *RWB) Erase(startBlock, nBlocks uint64) error {
	blocksPerErase := uint64(c.geo.BlocksPerErase())
	first := startBlock * blocksPerErase
	last := (startBlock + nBlocks) * blocksPerErase

	for i := range c.headers {
		h := &c.headers[i]
		if (h.State == fetchedSlotState || h.State == dirtySlotState) && h.Address >= first && h.Address < last {
			h.State = invalidSlotState
			delete(c.dirtySlots, uint64(i))
		}
	}
	return c.dev.Erase(startBlock, nBlocks)
}

// ReadBlocks reads blocks, taking them from the buffer if they are there.
func (c *RWB) ReadBlocks(startBlock uint64, p []byte) error {
	nBlocks, err := mtd.CheckBlockRange(c.geo, startBlock, p)
	if err != nil {
		return err
	}

	blockSize := uint64(c.geo.BlockSize)
	for i := uint64(0); i < nBlocks; i++ {
		block, err := c.fetchBlock(startBlock + i)
		if err != nil {
			return err
		}
		copy(p[i*blockSize:(i+1)*blockSize], block)
	}
	return nil
}

// WriteBlocks stores blocks in the buffer. They are written to the device on flush or eviction.
func (c *RWB) WriteBlocks(startBlock uint64, p []byte) error {
	nBlocks, err := mtd.CheckBlockRange(c.geo, startBlock, p)
	if err != nil {
		return err
	}

	blockSize := uint64(c.geo.BlockSize)
	for i := uint64(0); i < nBlocks; i++ {
		address := startBlock + i
		slot, err := c.findSlot(address)
		if err != nil {
			return err
		}

		if _, exists := c.dirtySlots[slot]; !exists && len(c.dirtySlots) >= MaxDirtyBlocks {
			if err := c.Flush(); err != nil {
				return err
			}
		}

		copy(c.slotData(slot), p[i*blockSize:(i+1)*blockSize])
		c.headers[slot] = header{Address: address, State: dirtySlotState}
		c.dirtySlots[slot] = struct{}{}
	}
	return nil
}

// Flush writes all the dirty blocks to the device.
func (c *RWB) Flush() error {
	if len(c.dirtySlots) == 0 {
		return nil
	}

	c.log.Debug("flushing dirty blocks", "count", len(c.dirtySlots))
	for slot := range c.dirtySlots {
		h := &c.headers[slot]
		if err := c.dev.WriteBlocks(h.Address, c.slotData(slot)); err != nil {
			return err
		}
		h.State = fetchedSlotState
	}

	// This is intentionally done in separate loop to take advantage of the optimisation
	// golang applies when seeing this code.
	for slot := range c.dirtySlots {
		delete(c.dirtySlots, slot)
	}

	return nil
}

func (c *RWB) fetchBlock(address uint64) ([]byte, error) {
	slot, err := c.findSlot(address)
	if err != nil {
		return nil, err
	}

	h := &c.headers[slot]
	if (h.State == fetchedSlotState || h.State == dirtySlotState) && h.Address == address {
		return c.slotData(slot), nil
	}

	block := c.slotData(slot)
	if err := c.dev.ReadBlocks(address, block); err != nil {
		h.State = invalidSlotState
		return nil, err
	}
	*h = header{Address: address, State: fetchedSlotState}

	return block, nil
}

func (c *RWB) findSlot(address uint64) (uint64, error) {
	var key [8]byte
	binary.LittleEndian.PutUint64(key[:], address)

	// If there is no free slot found in `MaxCacheTries` tries, the first invalid one or the first tried one
	// is taken over.
	selectedSlot := xxhash.Sum64(key[:]) % c.nSlots
	var invalidSlotFound bool

	for i, slot := 0, selectedSlot; i < MaxCacheTries; i, slot = i+1, (slot+1)%c.nSlots {
		h := c.headers[slot]

		switch h.State {
		case freeSlotState:
			if invalidSlotFound {
				return selectedSlot, nil
			}
			return slot, nil
		case invalidSlotState:
			if !invalidSlotFound {
				invalidSlotFound = true
				selectedSlot = slot
			}
		case fetchedSlotState, dirtySlotState:
			if h.Address == address {
				return slot, nil
			}
		}
	}

	h := &c.headers[selectedSlot]
	if h.State == dirtySlotState {
		c.log.Trace("evicting dirty block", "block", h.Address)
		if err := c.dev.WriteBlocks(h.Address, c.slotData(selectedSlot)); err != nil {
			return 0, err
		}
		delete(c.dirtySlots, selectedSlot)
	}
	if h.State != freeSlotState {
		h.State = invalidSlotState
	}

	return selectedSlot, nil
}

func (c *RWB) slotData(slot uint64) []byte {
	offset := slot * uint64(c.geo.BlockSize)
	return c.data[offset : offset+uint64(c.geo.BlockSize)]
}
