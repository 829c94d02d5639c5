package verify

import (
	"encoding/binary"
	"io"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"

	"github.com/outofforest/mtdcheck/fault"
	"github.com/outofforest/mtdcheck/pkg/memdev"
)

type faultyFile struct {
	*memdev.MemDev

	readErr    error
	seekErr    error
	writeErr   error
	writeLimit int
}

func (f *faultyFile) Read(p []byte) (int, error) {
	if f.readErr != nil {
		return 0, f.readErr
	}
	return f.MemDev.Read(p)
}

func (f *faultyFile) Seek(offset int64, whence int) (int64, error) {
	if f.seekErr != nil {
		return 0, f.seekErr
	}
	return f.MemDev.Seek(offset, whence)
}

func (f *faultyFile) Write(p []byte) (int, error) {
	if f.writeErr != nil {
		return 0, f.writeErr
	}
	if f.writeLimit > 0 && len(p) > f.writeLimit {
		p = p[:f.writeLimit]
	}
	return f.MemDev.Write(p)
}

func TestVerifyAndRewrite(t *testing.T) {
	requireT := require.New(t)

	arena := patternArena(scenario.Size())
	end, err := VerifyAndRewrite(memdev.FromArena(arena), scenario, NewBlockBuffer(scenario), PatternOrigin)
	requireT.NoError(err)
	requireT.EqualValues(64*512, end)

	for i := 0; i < len(arena)/WordSize; i++ {
		requireT.Equal(^uint32(i*4), binary.LittleEndian.Uint32(arena[i*WordSize:]), "word %d", i)
	}
	requireT.EqualValues(0xffffffff, binary.LittleEndian.Uint32(arena))
}

func TestWriteThenVerifyAgree(t *testing.T) {
	requireT := require.New(t)

	dev := memdev.New(scenario.Size())
	buf := NewBlockBuffer(scenario)

	written, err := WriteAll(dev, scenario, buf, PatternOrigin)
	requireT.NoError(err)
	verified, err := VerifyAndRewrite(dev, scenario, buf, PatternOrigin)
	requireT.NoError(err)
	requireT.Equal(written, verified)

	// Second pass sees the complement, not the pattern.
	_, err = VerifyAndRewrite(dev, scenario, buf, PatternOrigin)
	requireT.Equal(fault.IntegrityMismatch, fault.KindOf(err))
}

func TestVerifyMismatch(t *testing.T) {
	requireT := require.New(t)

	arena := patternArena(scenario.Size())
	arena[3*512+2*WordSize] ^= 0x01

	_, err := VerifyAndRewrite(memdev.FromArena(arena), scenario, NewBlockBuffer(scenario), PatternOrigin)

	var fErr *fault.Error
	requireT.True(errors.As(err, &fErr))
	requireT.Equal(fault.IntegrityMismatch, fErr.Kind)
	requireT.Equal(fault.SiteMismatch, fErr.Site)
	requireT.EqualValues(3, fErr.Block)
	requireT.Equal(2, fErr.Word)
	requireT.EqualValues(1544, fErr.Offset)
	requireT.EqualValues(1544, fErr.Expected)
	requireT.EqualValues(1545, fErr.Actual)

	// Blocks before the corrupted one are rewritten, the corrupted one is left alone.
	requireT.Equal(^uint32(3*512-4), binary.LittleEndian.Uint32(arena[3*512-WordSize:]))
	requireT.EqualValues(3*512, binary.LittleEndian.Uint32(arena[3*512:]))
}

func TestVerifyTruncatedDevice(t *testing.T) {
	requireT := require.New(t)

	_, err := VerifyAndRewrite(memdev.FromArena(patternArena(scenario.Size()-512)), scenario,
		NewBlockBuffer(scenario), PatternOrigin)
	requireT.Equal(fault.UnexpectedEndOfDevice, fault.KindOf(err))
	requireT.Equal(int(fault.SiteUnexpectedEOF), fault.ExitCode(err))

	var fErr *fault.Error
	requireT.True(errors.As(err, &fErr))
	requireT.EqualValues(63, fErr.Block)
	requireT.EqualValues(63*512, fErr.Offset)
}

func TestVerifyShortRead(t *testing.T) {
	requireT := require.New(t)

	_, err := VerifyAndRewrite(memdev.FromArena(patternArena(scenario.Size()-412)), scenario,
		NewBlockBuffer(scenario), PatternOrigin)
	requireT.Equal(fault.ShortReadFailure, fault.KindOf(err))
	requireT.Equal(int(fault.SiteShortRead), fault.ExitCode(err))

	var fErr *fault.Error
	requireT.True(errors.As(err, &fErr))
	requireT.Equal(100, fErr.N)
	requireT.Equal(512, fErr.Want)
}

func TestVerifyIOFailures(t *testing.T) {
	ioErr := errors.New("EIO")

	for _, tc := range []struct {
		name    string
		file    *faultyFile
		expKind fault.Kind
		expSite fault.Site
	}{
		{
			name:    "read error",
			file:    &faultyFile{readErr: ioErr},
			expKind: fault.IoFailure,
			expSite: fault.SiteRead,
		},
		{
			name:    "seek error",
			file:    &faultyFile{seekErr: ioErr},
			expKind: fault.IoFailure,
			expSite: fault.SiteSeekRead,
		},
		{
			name:    "rewrite error",
			file:    &faultyFile{writeErr: ioErr},
			expKind: fault.IoFailure,
			expSite: fault.SiteRewrite,
		},
		{
			name:    "short rewrite",
			file:    &faultyFile{writeLimit: 256},
			expKind: fault.ShortWriteFailure,
			expSite: fault.SiteShortRewrite,
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			tc.file.MemDev = memdev.FromArena(patternArena(scenario.Size()))
			_, err := VerifyAndRewrite(tc.file, scenario, NewBlockBuffer(scenario), PatternOrigin)
			require.Equal(t, tc.expKind, fault.KindOf(err))
			require.Equal(t, int(tc.expSite), fault.ExitCode(err))
		})
	}
}

func TestVerifyReadErrorIsWrapped(t *testing.T) {
	ioErr := errors.New("EIO")
	file := &faultyFile{MemDev: memdev.FromArena(patternArena(scenario.Size())), readErr: ioErr}

	_, err := VerifyAndRewrite(file, scenario, NewBlockBuffer(scenario), PatternOrigin)
	require.ErrorIs(t, err, ioErr)
}

func TestCheckEndOfDevice(t *testing.T) {
	requireT := require.New(t)

	dev := memdev.New(scenario.Size())
	_, err := dev.Seek(0, io.SeekEnd)
	requireT.NoError(err)
	requireT.NoError(CheckEndOfDevice(dev, scenario, NewBlockBuffer(scenario)))

	dev = memdev.New(scenario.Size() + 512)
	_, err = dev.Seek(scenario.Size(), io.SeekStart)
	requireT.NoError(err)
	err = CheckEndOfDevice(dev, scenario, NewBlockBuffer(scenario))
	requireT.Equal(fault.BoundaryViolation, fault.KindOf(err))
	requireT.Equal(int(fault.SiteBoundary), fault.ExitCode(err))

	var fErr *fault.Error
	requireT.True(errors.As(err, &fErr))
	requireT.Equal(512, fErr.N)
	requireT.EqualValues(64*512, fErr.Offset)
	requireT.EqualValues(64, fErr.Block)
}

func TestCheckEndOfDeviceReadError(t *testing.T) {
	file := &faultyFile{MemDev: memdev.New(scenario.Size()), readErr: errors.New("EIO")}
	err := CheckEndOfDevice(file, scenario, NewBlockBuffer(scenario))
	require.Equal(t, fault.BoundaryViolation, fault.KindOf(err))
}

func patternArena(size int64) []byte {
	arena := make([]byte, size)
	for i := 0; i+WordSize <= len(arena); i += WordSize {
		binary.LittleEndian.PutUint32(arena[i:], uint32(i))
	}
	return arena
}
