package verify

import (
	"io"

	"github.com/outofforest/mtdcheck/fault"
)

// VerifyAndRewrite reads every block back, in ascending order, checking that it carries the counter pattern
// starting at start. Every verified block is complemented word by word and written back to the same place.
// Each block is accessed by explicit seeks, so the pass alternates reads and writes of the same address.
// It returns the counter following the last word of the device.
func VerifyAndRewrite(f io.ReadWriteSeeker, layout Layout, buf *BlockBuffer, start uint32) (uint32, error) {
	if err := checkBuffer(layout, buf); err != nil {
		return start, err
	}

	expected := start
	for block := uint64(0); block < layout.TotalBlocks; block++ {
		offset := layout.Offset(block)

		if err := seek(f, layout, block, fault.SiteSeekRead); err != nil {
			return expected, err
		}
		n, err := f.Read(buf.Bytes())
		if err := checkRead(layout, block, n, err); err != nil {
			return expected, err
		}

		for i := 0; i < buf.Words(); i++ {
			actual := buf.Word(i)
			if actual != expected {
				return expected, &fault.Error{
					Kind:     fault.IntegrityMismatch,
					Site:     fault.SiteMismatch,
					Offset:   offset + int64(i*WordSize),
					Block:    block,
					Word:     i,
					Expected: expected,
					Actual:   actual,
				}
			}
			buf.SetWord(i, ^expected)
			expected += WordSize
		}

		if err := seek(f, layout, block, fault.SiteSeekWrite); err != nil {
			return expected, err
		}
		n, err = f.Write(buf.Bytes())
		if err := checkWrite(layout, block, n, err, fault.SiteRewrite, fault.SiteShortRewrite); err != nil {
			return expected, err
		}
	}
	return expected, nil
}

func seek(f io.Seeker, layout Layout, block uint64, site fault.Site) error {
	offset := layout.Offset(block)
	pos, err := f.Seek(offset, io.SeekStart)
	if err == nil && pos == offset {
		return nil
	}
	return &fault.Error{
		Kind:   fault.IoFailure,
		Site:   site,
		Offset: offset,
		Block:  block,
		N:      int(pos),
		Err:    err,
	}
}

func checkRead(layout Layout, block uint64, n int, err error) error {
	if err != nil && err != io.EOF { //nolint:errorlint // io.EOF is returned unwrapped by contract
		return &fault.Error{
			Kind:   fault.IoFailure,
			Site:   fault.SiteRead,
			Offset: layout.Offset(block),
			Block:  block,
			N:      n,
			Err:    err,
		}
	}

	switch n {
	case 0:
		return &fault.Error{
			Kind:   fault.UnexpectedEndOfDevice,
			Site:   fault.SiteUnexpectedEOF,
			Offset: layout.Offset(block),
			Block:  block,
		}
	case int(layout.BlockSize):
		return nil
	default:
		return &fault.Error{
			Kind:   fault.ShortReadFailure,
			Site:   fault.SiteShortRead,
			Offset: layout.Offset(block),
			Block:  block,
			N:      n,
			Want:   int(layout.BlockSize),
		}
	}
}
