package bch

import (
	"io"
	"os"

	"github.com/hashicorp/go-hclog"
	"github.com/pkg/errors"

	"github.com/outofforest/mtdcheck/ftl"
)

// ErrBadMode is returned if the operation is not permitted by the mode file was opened with.
var ErrBadMode = errors.New("operation not permitted by open mode")

// BlockDriver is the interface required from the block driver.
type BlockDriver interface {
	Geometry() ftl.Geometry
	ReadSectors(startSector uint64, p []byte) error
	WriteSectors(startSector uint64, p []byte) error
	Flush() error
}

var _ BlockDriver = &ftl.FTL{}

// Driver exposes block driver as a stream of bytes.
type Driver struct {
	dev    BlockDriver
	geo    ftl.Geometry
	log    hclog.Logger
	sector []byte
}

// New creates character driver on top of the block driver.
func New(dev BlockDriver, log hclog.Logger) (*Driver, error) {
	geo := dev.Geometry()
	if geo.SectorSize == 0 || geo.NSectors == 0 {
		return nil, errors.Errorf("block driver reports empty geometry: %+v", geo)
	}

	return &Driver{
		dev:    dev,
		geo:    geo,
		log:    log.Named("bch"),
		sector: make([]byte, geo.SectorSize),
	}, nil
}

// Size returns the byte size of the device.
func (d *Driver) Size() int64 {
	return d.geo.Size()
}

// Open opens the device. Access mode is taken from the flag: os.O_RDONLY, os.O_WRONLY or os.O_RDWR.
func (d *Driver) Open(flag int) (*File, error) {
	f := &File{d: d}
	switch flag & (os.O_RDONLY | os.O_WRONLY | os.O_RDWR) {
	case os.O_RDONLY:
		f.readable = true
	case os.O_WRONLY:
		f.writable = true
	case os.O_RDWR:
		f.readable = true
		f.writable = true
	default:
		return nil, errors.Errorf("invalid access mode in flag %#x", flag)
	}
	d.log.Trace("device opened", "readable", f.readable, "writable", f.writable)
	return f, nil
}

// File is the open handle of the character driver.
type File struct {
	d        *Driver
	readable bool
	writable bool
	closed   bool
	pos      int64
}

var _ io.ReadWriteSeeker = &File{}

// Read reads bytes from the current position. At the end of the device it returns 0 and io.EOF.
func (f *File) Read(p []byte) (int, error) {
	if err := f.check(f.readable); err != nil {
		return 0, err
	}
	if len(p) == 0 {
		return 0, nil
	}
	size := f.d.Size()
	if f.pos >= size {
		return 0, io.EOF
	}
	if int64(len(p)) > size-f.pos {
		p = p[:size-f.pos]
	}

	sectorSize := int64(f.d.geo.SectorSize)
	var n int
	for n < len(p) {
		sector := f.pos / sectorSize
		offset := f.pos % sectorSize

		var chunk int
		if offset == 0 && int64(len(p)-n) >= sectorSize {
			nSectors := int64(len(p)-n) / sectorSize
			chunk = int(nSectors * sectorSize)
			if err := f.d.dev.ReadSectors(uint64(sector), p[n:n+chunk]); err != nil {
				return n, err
			}
		} else {
			if err := f.d.dev.ReadSectors(uint64(sector), f.d.sector); err != nil {
				return n, err
			}
			chunk = copy(p[n:], f.d.sector[offset:])
		}

		n += chunk
		f.pos += int64(chunk)
	}
	return n, nil
}

// Write writes bytes at the current position. Bytes which don't fit into the device are not written
// and io.ErrShortWrite is returned.
func (f *File) Write(p []byte) (int, error) {
	if err := f.check(f.writable); err != nil {
		return 0, err
	}
	if len(p) == 0 {
		return 0, nil
	}

	size := f.d.Size()
	short := int64(len(p)) > size-f.pos
	if short {
		p = p[:max(size-f.pos, 0)]
	}

	sectorSize := int64(f.d.geo.SectorSize)
	var n int
	for n < len(p) {
		sector := f.pos / sectorSize
		offset := f.pos % sectorSize

		var chunk int
		if offset == 0 && int64(len(p)-n) >= sectorSize {
			nSectors := int64(len(p)-n) / sectorSize
			chunk = int(nSectors * sectorSize)
			if err := f.d.dev.WriteSectors(uint64(sector), p[n:n+chunk]); err != nil {
				return n, err
			}
		} else {
			if err := f.d.dev.ReadSectors(uint64(sector), f.d.sector); err != nil {
				return n, err
			}
			chunk = copy(f.d.sector[offset:], p[n:])
			if err := f.d.dev.WriteSectors(uint64(sector), f.d.sector); err != nil {
				return n, err
			}
		}

		n += chunk
		f.pos += int64(chunk)
	}

	if short {
		return n, errors.WithStack(io.ErrShortWrite)
	}
	return n, nil
}

// Seek sets the position. Positions past the end of the device are rejected.
func (f *File) Seek(offset int64, whence int) (int64, error) {
	if err := f.check(true); err != nil {
		return 0, err
	}

	switch whence {
	case io.SeekStart:
	case io.SeekCurrent:
		offset += f.pos
	case io.SeekEnd:
		offset += f.d.Size()
	default:
		return 0, errors.Errorf("invalid whence: %d", whence)
	}

	if offset < 0 || offset > f.d.Size() {
		return 0, errors.Errorf("invalid offset: %d", offset)
	}

	f.pos = offset
	return offset, nil
}

// Close flushes buffered writes and closes the file.
func (f *File) Close() error {
	if f.closed {
		return errors.WithStack(os.ErrClosed)
	}
	f.closed = true
	if !f.writable {
		return nil
	}
	return f.d.dev.Flush()
}

func (f *File) check(permitted bool) error {
	if f.closed {
		return errors.WithStack(os.ErrClosed)
	}
	if !permitted {
		return errors.WithStack(ErrBadMode)
	}
	return nil
}
