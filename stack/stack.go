// Package stack brings up the flash storage stack under test: simulated flash, write buffer,
// flash translation layer and the character device registered under a path.
package stack

import (
	"os"

	"github.com/dustin/go-humanize"
	"github.com/hashicorp/go-hclog"
	"github.com/pkg/errors"

	"github.com/outofforest/mtdcheck/bch"
	"github.com/outofforest/mtdcheck/config"
	"github.com/outofforest/mtdcheck/fault"
	"github.com/outofforest/mtdcheck/ftl"
	"github.com/outofforest/mtdcheck/mtd"
	"github.com/outofforest/mtdcheck/rwb"
)

const (
	// DevicePath is the path the character device is registered under.
	DevicePath = "/dev/mtd0"

	// BufferBlocks is the number of blocks held by the write buffer.
	BufferBlocks = 16
)

// Stack is the brought-up storage stack.
type Stack struct {
	rwb     *rwb.RWB
	ftl     *ftl.FTL
	devices map[string]*bch.Driver
}

// New brings up the stack on the backing store. Ownership of dev passes to the stack.
func New(cfg config.Config, dev mtd.Dev, log hclog.Logger) (*Stack, error) {
	geo := cfg.Geometry()
	raw, err := mtd.NewRAM(dev, geo)
	if err != nil {
		return nil, fault.New(fault.InitFailure, fault.SiteRawInit, err)
	}
	log.Debug("flash created", "capacity", humanize.IBytes(uint64(geo.Size())))

	if err := raw.BulkErase(); err != nil {
		return nil, fault.New(fault.InitFailure, fault.SiteBulkErase, err)
	}

	buffer, err := rwb.New(raw, int64(BufferBlocks)*int64(geo.BlockSize), log)
	if err != nil {
		return nil, fault.New(fault.InitFailure, fault.SiteRWBInit, err)
	}

	blockDriver, err := ftl.New(buffer, log)
	if err != nil {
		return nil, fault.New(fault.InitFailure, fault.SiteFTLInit, err)
	}

	s := &Stack{
		rwb:     buffer,
		ftl:     blockDriver,
		devices: map[string]*bch.Driver{},
	}
	if err := s.Register(DevicePath, log); err != nil {
		return nil, fault.New(fault.InitFailure, fault.SiteBCHRegister, err)
	}
	return s, nil
}

// Register exposes the block driver as a character device under the path.
func (s *Stack) Register(path string, log hclog.Logger) error {
	if _, exists := s.devices[path]; exists {
		return errors.Wrapf(os.ErrExist, "device %s", path)
	}

	driver, err := bch.New(s.ftl, log.With("path", path))
	if err != nil {
		return err
	}
	s.devices[path] = driver
	return nil
}

// Open opens the character device registered under the path.
func (s *Stack) Open(path string, flag int) (*bch.File, error) {
	driver, exists := s.devices[path]
	if !exists {
		return nil, errors.Wrapf(os.ErrNotExist, "device %s", path)
	}
	return driver.Open(flag)
}

// Geometry queries the write buffering layer for the geometry of the flash.
func (s *Stack) Geometry() (mtd.Geometry, error) {
	return s.rwb.Geometry()
}
