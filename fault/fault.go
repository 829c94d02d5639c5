// Package fault defines the failure taxonomy of the integrity check and maps every failure site
// to the exit status of the process.
package fault

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind is the category of failure.
type Kind int

// Failure kinds.
const (
	NoFailure Kind = iota
	InitFailure
	DeviceQueryFailure
	InvalidGeometry
	IoFailure
	ShortReadFailure
	ShortWriteFailure
	UnexpectedEndOfDevice
	IntegrityMismatch
	BoundaryViolation
)

var kindNames = map[Kind]string{
	NoFailure:             "no failure",
	InitFailure:           "initialization failure",
	DeviceQueryFailure:    "device query failure",
	InvalidGeometry:       "invalid geometry",
	IoFailure:             "I/O failure",
	ShortReadFailure:      "short read",
	ShortWriteFailure:     "short write",
	UnexpectedEndOfDevice: "unexpected end of device",
	IntegrityMismatch:     "integrity mismatch",
	BoundaryViolation:     "boundary violation",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Site identifies the place where failure was detected. Its value is used as the exit status.
//
// New sites must be added at the bottom to keep exit statuses stable.
type Site int

// Failure sites.
const (
	NoSite Site = iota
	SiteConfig
	SiteRawInit
	SiteBulkErase
	SiteRWBInit
	SiteFTLInit
	SiteBCHRegister
	SiteGeometryQuery
	SiteInvalidGeometry
	SiteOpenWrite
	SiteWrite
	SiteShortWrite
	SiteCloseWrite
	SiteOpenReadWrite
	SiteSeekRead
	SiteRead
	SiteUnexpectedEOF
	SiteShortRead
	SiteMismatch
	SiteSeekWrite
	SiteRewrite
	SiteShortRewrite
	SiteBoundary
	SiteClose
)

// Error is the failure reported by any stage of the check.
type Error struct {
	Kind Kind
	Site Site

	// Offset is the byte offset the failing operation was issued at.
	Offset int64
	// Block is the index of the block being processed.
	Block uint64
	// Word is the index of the word inside the block.
	Word int
	// Expected and Actual are the values compared by the integrity check.
	Expected uint32
	Actual   uint32
	// N is the byte count returned by the failing read or write, Want is the requested one.
	N    int
	Want int

	Err error
}

// New returns new error of the kind detected at site.
func New(kind Kind, site Site, err error) *Error {
	return &Error{
		Kind: kind,
		Site: site,
		Err:  err,
	}
}

// Error returns the diagnostic message.
func (e *Error) Error() string {
	var msg string
	switch e.Kind {
	case IntegrityMismatch:
		msg = fmt.Sprintf("%s at offset %d (block %d, word %d): read 0x%08x, expected 0x%08x",
			e.Kind, e.Offset, e.Block, e.Word, e.Actual, e.Expected)
	case ShortReadFailure, ShortWriteFailure:
		msg = fmt.Sprintf("%s at offset %d (block %d): %d of %d bytes", e.Kind, e.Offset, e.Block, e.N, e.Want)
	case UnexpectedEndOfDevice:
		msg = fmt.Sprintf("%s at offset %d (block %d)", e.Kind, e.Offset, e.Block)
	case BoundaryViolation:
		msg = fmt.Sprintf("%s at offset %d: read returned %d bytes", e.Kind, e.Offset, e.N)
	case IoFailure:
		msg = fmt.Sprintf("%s at offset %d", e.Kind, e.Offset)
	default:
		msg = e.Kind.String()
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of the failure, NoFailure for nil and IoFailure for errors not produced by this package.
func KindOf(err error) Kind {
	if err == nil {
		return NoFailure
	}
	var fErr *Error
	if errors.As(err, &fErr) {
		return fErr.Kind
	}
	return IoFailure
}

// ExitCode returns the exit status of the process terminated by the error.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var fErr *Error
	if errors.As(err, &fErr) && fErr.Site != NoSite {
		return int(fErr.Site)
	}
	return int(SiteClose) + 1
}
