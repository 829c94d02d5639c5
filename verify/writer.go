package verify

import (
	"io"

	"github.com/pkg/errors"

	"github.com/outofforest/mtdcheck/fault"
)

// WriteAll fills every block of the device, in ascending order, with the continuous counter pattern
// starting at start. Blocks are written in one forward stream, without seeking. It returns the counter
// following the last word of the device.
func WriteAll(w io.Writer, layout Layout, buf *BlockBuffer, start uint32) (uint32, error) {
	if err := checkBuffer(layout, buf); err != nil {
		return start, err
	}

	counter := start
	for block := uint64(0); block < layout.TotalBlocks; block++ {
		counter = buf.Fill(counter)

		n, err := w.Write(buf.Bytes())
		if err := checkWrite(layout, block, n, err, fault.SiteWrite, fault.SiteShortWrite); err != nil {
			return counter, err
		}
	}
	return counter, nil
}

// checkWrite classifies the result of a block write. A write accepting fewer bytes than the block, or
// accepting none without an error, is a short write. A write failing before accepting any byte is an I/O
// failure reported at its own site.
func checkWrite(layout Layout, block uint64, n int, err error, ioSite, shortSite fault.Site) error {
	want := int(layout.BlockSize)
	switch {
	case n != want && (n > 0 || err == nil):
		return &fault.Error{
			Kind:   fault.ShortWriteFailure,
			Site:   shortSite,
			Offset: layout.Offset(block),
			Block:  block,
			N:      n,
			Want:   want,
			Err:    err,
		}
	case err != nil:
		return &fault.Error{
			Kind:   fault.IoFailure,
			Site:   ioSite,
			Offset: layout.Offset(block),
			Block:  block,
			Err:    err,
		}
	}
	return nil
}

func checkBuffer(layout Layout, buf *BlockBuffer) error {
	if len(buf.Bytes()) != int(layout.BlockSize) {
		return errors.Errorf("buffer holds %d bytes, block size is %d", len(buf.Bytes()), layout.BlockSize)
	}
	return nil
}
