package fault_test

import (
	"fmt"
	"io"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/outofforest/mtdcheck/fault"
)

func TestErrorMessages(t *testing.T) {
	for _, tc := range []struct {
		name   string
		err    *fault.Error
		expMsg string
	}{
		{
			name: "mismatch",
			err: &fault.Error{
				Kind:     fault.IntegrityMismatch,
				Site:     fault.SiteMismatch,
				Offset:   516,
				Block:    1,
				Word:     1,
				Expected: 516,
				Actual:   0xffffffff,
			},
			expMsg: "integrity mismatch at offset 516 (block 1, word 1): read 0xffffffff, expected 0x00000204",
		},
		{
			name: "short read",
			err: &fault.Error{
				Kind:   fault.ShortReadFailure,
				Site:   fault.SiteShortRead,
				Offset: 1024,
				Block:  2,
				N:      100,
				Want:   512,
			},
			expMsg: "short read at offset 1024 (block 2): 100 of 512 bytes",
		},
		{
			name: "boundary",
			err: &fault.Error{
				Kind:   fault.BoundaryViolation,
				Site:   fault.SiteBoundary,
				Offset: 32768,
				N:      512,
			},
			expMsg: "boundary violation at offset 32768: read returned 512 bytes",
		},
		{
			name:   "with cause",
			err:    fault.New(fault.InitFailure, fault.SiteRawInit, errors.New("no memory")),
			expMsg: "initialization failure: no memory",
		},
		{
			name: "io with cause",
			err: &fault.Error{
				Kind:   fault.IoFailure,
				Site:   fault.SiteRead,
				Offset: 512,
				Err:    io.ErrUnexpectedEOF,
			},
			expMsg: "I/O failure at offset 512: unexpected EOF",
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.expMsg, tc.err.Error())
		})
	}
}

func TestExitCode(t *testing.T) {
	requireT := require.New(t)

	requireT.Equal(0, fault.ExitCode(nil))
	requireT.Equal(int(fault.SiteBoundary), fault.ExitCode(fault.New(fault.BoundaryViolation, fault.SiteBoundary, nil)))

	wrapped := fmt.Errorf("run failed: %w", fault.New(fault.IoFailure, fault.SiteSeekRead, nil))
	requireT.Equal(int(fault.SiteSeekRead), fault.ExitCode(wrapped))
	requireT.Equal(int(fault.SiteClose)+1, fault.ExitCode(errors.New("unexpected")))
}

func TestExitCodesAreDistinct(t *testing.T) {
	seen := map[int]bool{0: true}
	for site := fault.SiteConfig; site <= fault.SiteClose; site++ {
		code := fault.ExitCode(fault.New(fault.IoFailure, site, nil))
		require.False(t, seen[code], "exit code %d reused", code)
		seen[code] = true
	}
}

func TestKindOf(t *testing.T) {
	requireT := require.New(t)

	requireT.Equal(fault.NoFailure, fault.KindOf(nil))
	requireT.Equal(fault.IoFailure, fault.KindOf(errors.New("plain")))
	requireT.Equal(fault.ShortWriteFailure,
		fault.KindOf(errors.WithStack(fault.New(fault.ShortWriteFailure, fault.SiteShortWrite, nil))))
	requireT.Equal("kind(99)", fault.Kind(99).String())
}
