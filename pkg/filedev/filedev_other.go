//go:build !linux

package filedev

import (
	"os"

	"github.com/pkg/errors"
)

func truncate(file *os.File, size int64) error {
	return errors.WithStack(file.Truncate(size))
}

func probeSectorSize(_ *os.File) (int64, error) {
	return 0, nil
}
