package verify

import (
	"io"

	"github.com/outofforest/mtdcheck/fault"
)

// CheckEndOfDevice reads one more block right after the last one. The device must report its end
// by returning zero bytes.
func CheckEndOfDevice(r io.Reader, layout Layout, buf *BlockBuffer) error {
	if err := checkBuffer(layout, buf); err != nil {
		return err
	}

	n, err := r.Read(buf.Bytes())
	if n == 0 && (err == nil || err == io.EOF) { //nolint:errorlint // io.EOF is returned unwrapped by contract
		return nil
	}
	return &fault.Error{
		Kind:   fault.BoundaryViolation,
		Site:   fault.SiteBoundary,
		Offset: layout.Size(),
		Block:  layout.TotalBlocks,
		N:      n,
		Err:    err,
	}
}
