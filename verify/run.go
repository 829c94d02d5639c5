package verify

import (
	"fmt"
	"io"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/hashicorp/go-hclog"

	"github.com/outofforest/mtdcheck/fault"
	"github.com/outofforest/mtdcheck/mtd"
)

// PatternOrigin is the counter value written to the first word of the device.
const PatternOrigin uint32 = 0

// State is the stage of the run.
type State int

// Stages of the run. Run moves forward through them and ends in StateDone or StateFailed.
const (
	StateInit State = iota
	StateGeometry
	StateWrite
	StateVerifyRewrite
	StateBoundary
	StateDone
	StateFailed
)

var stateNames = map[State]string{
	StateInit:          "init",
	StateGeometry:      "geometry",
	StateWrite:         "write",
	StateVerifyRewrite: "verify-rewrite",
	StateBoundary:      "boundary",
	StateDone:          "done",
	StateFailed:        "failed",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// File is the open handle of the character device.
type File interface {
	io.ReadWriteSeeker
	io.Closer
}

// Target is the storage stack under test.
type Target struct {
	// Device is the layer queried for geometry.
	Device GeometryQuerier

	// Open opens the character device with the access mode taken from flag.
	Open func(flag int) (File, error)
}

// Report is the outcome of the run.
type Report struct {
	// State is StateDone or StateFailed.
	State State

	// FailedIn is the stage the failure was detected in.
	FailedIn State

	Geometry mtd.Geometry
	Layout   Layout

	// Written is the counter following the last word written by the write pass.
	Written uint32

	// Verified is the counter following the last word checked by the verification pass.
	Verified uint32

	Err error
}

// Run executes the whole check against the target. It stops at the first failure.
func Run(target Target, log hclog.Logger) Report {
	r := &runner{
		target: target,
		log:    log,
	}
	r.run()
	return r.report
}

type runner struct {
	target Target
	log    hclog.Logger
	state  State
	report Report
}

func (r *runner) run() {
	r.enter(StateGeometry)
	geo, layout, err := ResolveGeometry(r.target.Device)
	if err != nil {
		r.fail(err)
		return
	}
	r.report.Geometry = geo
	r.report.Layout = layout
	r.log.Info("flash geometry",
		"blockSize", geo.BlockSize,
		"eraseSize", geo.EraseSize,
		"nEraseBlocks", geo.NEraseBlocks,
		"blocksPerErase", layout.BlocksPerErase,
		"nBlocks", layout.TotalBlocks,
		"capacity", humanize.IBytes(uint64(layout.Size())),
	)

	buf := NewBlockBuffer(layout)

	r.enter(StateWrite)
	f, err := r.target.Open(os.O_WRONLY)
	if err != nil {
		r.fail(fault.New(fault.IoFailure, fault.SiteOpenWrite, err))
		return
	}
	r.log.Info("initializing media")
	r.report.Written, err = WriteAll(f, layout, buf, PatternOrigin)
	if err != nil {
		r.fail(err)
		return
	}
	if err := f.Close(); err != nil {
		r.fail(fault.New(fault.IoFailure, fault.SiteCloseWrite, err))
		return
	}

	r.enter(StateVerifyRewrite)
	f, err = r.target.Open(os.O_RDWR)
	if err != nil {
		r.fail(fault.New(fault.IoFailure, fault.SiteOpenReadWrite, err))
		return
	}
	r.log.Info("verifying media")
	r.report.Verified, err = VerifyAndRewrite(f, layout, buf, PatternOrigin)
	if err != nil {
		r.fail(err)
		return
	}

	r.enter(StateBoundary)
	if err := CheckEndOfDevice(f, layout, buf); err != nil {
		r.fail(err)
		return
	}
	if err := f.Close(); err != nil {
		r.fail(fault.New(fault.IoFailure, fault.SiteClose, err))
		return
	}

	r.enter(StateDone)
}

func (r *runner) enter(state State) {
	r.log.Debug("entering state", "state", state, "previous", r.state)
	r.state = state
	r.report.State = state
}

func (r *runner) fail(err error) {
	r.log.Error("check failed", "state", r.state, "kind", fault.KindOf(err), "err", err)
	r.report.FailedIn = r.state
	r.report.Err = err
	r.state = StateFailed
	r.report.State = StateFailed
}

// Summary returns the single line describing the outcome of the run.
func Summary(report Report) string {
	if report.State == StateDone {
		return fmt.Sprintf("PASS: Everything looks good, %d blocks (%s) verified", report.Layout.TotalBlocks,
			humanize.IBytes(uint64(report.Layout.Size())))
	}
	if report.Err == nil {
		return fmt.Sprintf("FAIL: run stopped in state %s", report.State)
	}
	return fmt.Sprintf("FAIL: %s: %s", report.FailedIn, report.Err)
}

// ExitCode returns the exit status of the process reporting the run.
func ExitCode(report Report) int {
	if report.State == StateDone {
		return 0
	}
	if report.Err == nil {
		return fault.ExitCode(fault.New(fault.NoFailure, fault.NoSite, nil))
	}
	return fault.ExitCode(report.Err)
}
