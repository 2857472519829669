package psoc6

import (
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/tinkerator/psoc6prog/dap"
	"github.com/tinkerator/psoc6prog/memmap"
	"github.com/tinkerator/psoc6prog/progress"
	"github.com/tinkerator/psoc6prog/segment"
	"github.com/tinkerator/psoc6prog/swd"
)

// Programmer drives the program/erase/verify algorithms of spec.md §4.H
// over an already-Acquired Session.
type Programmer struct {
	Session  *swd.Session
	SendRecv dap.SendRecv
	Family   DeviceFamily
	Sink     progress.Sink
	Cancel   *CancelToken
}

// rowAlign pads (start,end) outward to rowSize, matching spec.md §4.H step
// 1: "align (start, end) to rowSize=512; pad trailing partial row with
// 0xFF".
func rowAlign(start, end, rowSize uint32) (uint32, uint32) {
	return memmap.AlignDown(start, rowSize), memmap.AlignUp(end, rowSize)
}

func paddedRow(s segment.Segment, rowStart uint32, rowSize uint32) []byte {
	row := make([]byte, rowSize)
	for i := range row {
		row[i] = 0xFF
	}
	addr := rowStart
	for i := range row {
		if addr >= s.First && addr <= s.Last {
			row[i] = s.Bytes[addr-s.First]
		}
		addr++
	}
	return row
}

// Program writes one flash block (spec.md §4.H "Programming algorithm"):
// row by row it bursts the row into SRAM scratch, calls ProgramRow, polls
// for completion, and emits progress across the whole image (totalBytes
// lets the caller report one running percentage across multiple blocks).
func (p *Programmer) Program(block segment.Segment, doneBytes, totalBytes uint32) (uint32, error) {
	rowSize := uint32(memmap.RowSize)
	rowStart, rowEnd := rowAlign(block.First, block.Last+1, rowSize)

	for addr := rowStart; addr < rowEnd; addr += rowSize {
		if p.Cancel.Requested() {
			p.teardownOnCancel()
			return doneBytes, &Cancelled{}
		}
		row := paddedRow(block, addr, rowSize)
		if err := swd.MemWriteBytes(p.Session, p.Family.SromDataAddr, row); err != nil {
			return doneBytes, err
		}
		params := []uint32{
			uint32(sromOpProgramRow) << 24,
			addr,
			p.Family.SromDataAddr,
			rowSize,
		}
		if _, err := sromCall(p.Session, p.Family, params, 0, p.Cancel); err != nil {
			return doneBytes, err
		}
		doneBytes += rowSize
		progress.Report(p.Sink, doneBytes, totalBytes)
	}
	return doneBytes, nil
}

// ProgramRecord programs every block of rec.ApplicationFlash in order,
// reporting progress against the record's total ApplicationFlash byte
// count.
func (p *Programmer) ProgramRecord(blocks []segment.Segment) error {
	var total uint32
	for _, b := range blocks {
		total += b.Len()
	}
	var done uint32
	for _, b := range blocks {
		var err error
		done, err = p.Program(b, done, total)
		if err != nil {
			return err
		}
	}
	return nil
}

// EraseFlash invokes EraseSector repeatedly at sector granularity, having
// aligned (start,end) outward to sector boundaries (spec.md §4.H "Erase
// algorithm").
func (p *Programmer) EraseFlash(start, end uint32) error {
	sector := p.Family.SectorSize
	alignedStart, alignedEnd := rowAlign(start, end, sector)
	for addr := alignedStart; addr < alignedEnd; addr += sector {
		if p.Cancel.Requested() {
			p.teardownOnCancel()
			return &Cancelled{}
		}
		params := []uint32{uint32(sromOpEraseSector) << 24, addr}
		if _, err := sromCall(p.Session, p.Family, params, 0, p.Cancel); err != nil {
			return err
		}
		progress.Logf(p.Sink, "erased sector at 0x%08x", addr)
	}
	return nil
}

// Verify reads back every row of block via AP-MEM and compares it to the
// expected bytes, returning the first VerifyMismatch found (spec.md §4.H
// "Verify algorithm").
func (p *Programmer) Verify(block segment.Segment) error {
	rowSize := uint32(memmap.RowSize)
	rowStart, rowEnd := rowAlign(block.First, block.Last+1, rowSize)
	for addr := rowStart; addr < rowEnd; addr += rowSize {
		if p.Cancel.Requested() {
			p.teardownOnCancel()
			return &Cancelled{}
		}
		got, err := swd.MemReadBytes(p.Session, addr, int(rowSize))
		if err != nil {
			return err
		}
		want := paddedRow(block, addr, rowSize)
		for i := range got {
			if got[i] != want[i] {
				return &VerifyMismatch{Addr: addr + uint32(i), Expected: want[i], Actual: got[i]}
			}
		}
	}
	return nil
}

// VerifyRecord verifies every block and aggregates each block's first
// mismatch instead of stopping at the first failing block, using
// go-multierror the way the rest of this module aggregates non-fatal
// diagnostics.
func (p *Programmer) VerifyRecord(blocks []segment.Segment) error {
	var errs *multierror.Error
	for _, b := range blocks {
		if err := p.Verify(b); err != nil {
			if _, ok := err.(*Cancelled); ok {
				return err
			}
			errs = multierror.Append(errs, err)
		}
	}
	return errs.ErrorOrNil()
}

// VerifyChecksumRow runs the ChecksumRow SROM call over one row instead of
// reading it back byte-for-byte, the fast path spec.md §4.H offers callers
// that opt in.
func (p *Programmer) VerifyChecksumRow(rowAddr uint32, want uint32) error {
	params := []uint32{uint32(sromOpChecksum) << 24, rowAddr, uint32(memmap.RowSize)}
	if _, err := sromCall(p.Session, p.Family, params, 0, p.Cancel); err != nil {
		return err
	}
	raw, err := swd.MemReadBytes(p.Session, p.Family.SromParamsAddr+4, 4)
	if err != nil {
		return err
	}
	got := uint32(raw[0]) | uint32(raw[1])<<8 | uint32(raw[2])<<16 | uint32(raw[3])<<24
	if got != want {
		return &VerifyMismatch{Addr: rowAddr, Expected: byte(want), Actual: byte(got)}
	}
	return nil
}

// teardownOnCancel runs the cancel-path recovery spec.md §5 specifies:
// WriteAbort, reset DP sticky bits, release SRST. Programmer holds no
// Acquire State, so no state change is recorded here.
func (p *Programmer) teardownOnCancel() {
	if p.SendRecv != nil {
		p.SendRecv(dap.EncodeWriteAbort(0, 0x1F))
	}
	p.Session.ClearStickyErrors()
	if p.SendRecv != nil {
		p.SendRecv(dap.EncodeSWJPins(pinSRST, pinSRST, 0))
	}
	time.Sleep(time.Millisecond)
}
