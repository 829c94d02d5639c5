//go:build linux

package filedev

import (
	"os"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

func truncate(file *os.File, size int64) error {
	return errors.WithStack(unix.Ftruncate(int(file.Fd()), size))
}

func probeSectorSize(file *os.File) (int64, error) {
	info, err := file.Stat()
	if err != nil {
		return 0, errors.WithStack(err)
	}
	if info.Mode()&os.ModeDevice == 0 {
		return 0, nil
	}

	sectorSize, err := unix.IoctlGetInt(int(file.Fd()), unix.BLKSSZGET)
	if err != nil {
		return 0, errors.Wrapf(err, "BLKSSZGET on %s failed", file.Name())
	}
	return int64(sectorSize), nil
}
