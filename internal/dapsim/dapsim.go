// Package dapsim is an in-memory stand-in for a CMSIS-DAP probe wired to a
// PSoC6 target, used to exercise Acquire/Program/Verify/SiliconID against
// the psoc6 package without real hardware (spec.md §8 "End-to-end
// scenarios", AMBIENT STACK's test-tooling note on an in-memory DAP
// simulator playing the fake-hardware-backend role, the same way the rest
// of the corpus tests visitors against in-memory fixtures rather than real
// devices).
package dapsim

import (
	"encoding/binary"

	"github.com/tinkerator/psoc6prog/dap"
)

// SROM opcodes and result sentinels mirrored from spec.md §4.H rather than
// imported from the psoc6 package: a real target implements this convention
// independently of the host driver, and the simulator plays the target's
// side of it.
const (
	opSiliconID   = 0x00
	opProgramRow  = 0x06
	opEraseSector = 0x14
	opChecksum    = 0x0B
)

const (
	resultSuccess  = 0xA0000000
	resultFailMask = 0xF0000000
)

// DefaultAHBAPIDR is a canned AP IDR value whose class field (bits 16:13)
// reads as the PSoC6 AHB-AP class psoc6.Acquire checks for.
const DefaultAHBAPIDR = 0x04770011

// Sim is the target-side collaborator behind a dap.SendRecv function: it
// answers SWJ bring-up commands unconditionally, tracks DP SELECT/AP-MEM
// CSW/TAR state, and backs every AP-MEM access with a single unified
// word-addressed memory (SRAM scratch and flash share one address space
// here, exactly as they do on real silicon reached through AP-MEM).
type Sim struct {
	IDCode uint32
	APIDR  uint32 // defaults to DefaultAHBAPIDR when zero

	SromParamsAddr  uint32
	SromDataAddr    uint32
	SromTriggerAddr uint32
	SromResultAddr  uint32
	SectorSize      uint32

	// FamilyID/SiliconIDValue/RevisionID/ProtectionState are the canned
	// SiliconID payload (spec.md §4.H "Silicon info").
	FamilyID        uint16
	SiliconIDValue  uint16
	RevisionID      byte
	ProtectionState byte

	Mem map[uint32]uint32

	ctrlStat    uint32
	selectKnown bool
	selectBank  byte
	tar         uint32
	rdbuff      uint32 // value of the last AP read, returned by DP RDBUFF
}

// New returns a Sim reporting idcode on DP IDCODE reads, with an empty
// backing memory.
func New(idcode uint32) *Sim {
	return &Sim{IDCode: idcode, Mem: map[uint32]uint32{}, SectorSize: 256 * 1024}
}

func (s *Sim) apIDR() uint32 {
	if s.APIDR != 0 {
		return s.APIDR
	}
	return DefaultAHBAPIDR
}

// SendRecv satisfies dap.SendRecv, answering CMSIS-DAP commands the
// swd/psoc6 packages issue during Acquire, Program, Verify and SiliconID.
func (s *Sim) SendRecv(cmd []byte) ([]byte, error) {
	if len(cmd) == 0 {
		return nil, &dap.Error{Tag: "ProtocolError", Msg: "dapsim: empty command"}
	}
	switch cmd[0] {
	case dap.CmdSWJPins:
		return []byte{dap.CmdSWJPins, 0}, nil
	case dap.CmdSWJSequence:
		return []byte{dap.CmdSWJSequence, 0}, nil
	case dap.CmdWriteAbort:
		return []byte{dap.CmdWriteAbort, 0}, nil
	case dap.CmdConnect:
		return []byte{dap.CmdConnect, cmd[1]}, nil
	case dap.CmdDisconnect:
		return []byte{dap.CmdDisconnect, 0}, nil
	case dap.CmdTransfer:
		return s.transfer(cmd)
	case dap.CmdTransferBlock:
		return s.transferBlock(cmd)
	default:
		return nil, &dap.Error{Tag: "ProtocolError", Msg: "dapsim: unhandled command"}
	}
}

func (s *Sim) transfer(cmd []byte) ([]byte, error) {
	count := int(cmd[2])
	off := 3
	resp := []byte{dap.CmdTransfer, byte(count), 0b001}
	for i := 0; i < count; i++ {
		descr := cmd[off]
		off++
		write := descr&0b10 == 0
		ap := descr&0b01 != 0
		var regOffset byte
		if descr&0b100 != 0 {
			regOffset |= 0x4
		}
		if descr&0b1000 != 0 {
			regOffset |= 0x8
		}
		var data uint32
		if write {
			data = binary.LittleEndian.Uint32(cmd[off : off+4])
			off += 4
		}

		if ap {
			resp = s.apAccess(resp, write, regOffset, data)
			if !write {
				s.rdbuff = binary.LittleEndian.Uint32(resp[len(resp)-4:])
			}
			continue
		}
		switch regOffset {
		case 0x0: // IDCODE read / ABORT write
			if !write {
				resp = binary.LittleEndian.AppendUint32(resp, s.IDCode)
			}
		case 0x4: // CTRL/STAT
			if write {
				s.ctrlStat = data | (1<<31 | 1<<29) // ack immediately
			} else {
				resp = binary.LittleEndian.AppendUint32(resp, s.ctrlStat)
			}
		case 0x8: // SELECT, write-only
			if write {
				s.selectBank = byte((data >> 4) & 0xF)
				s.selectKnown = true
			}
		case 0xC: // RDBUFF, read-only
			resp = binary.LittleEndian.AppendUint32(resp, s.rdbuff)
		}
	}
	return resp, nil
}

// apAccess handles one AP register access within a DAP_Transfer, per the
// ADI pipelined-read convention: an AP read request's own response slot is
// a throwaway placeholder, the real value surfaces on the following DP
// RDBUFF read (spec.md §4.G "AP select").
func (s *Sim) apAccess(resp []byte, write bool, regOffset byte, data uint32) []byte {
	if s.selectKnown && s.selectBank == 0xF && regOffset == 0x0C {
		if !write {
			resp = binary.LittleEndian.AppendUint32(resp, s.apIDR())
		}
		return resp
	}
	switch regOffset {
	case 0x00: // CSW
		if !write {
			resp = binary.LittleEndian.AppendUint32(resp, 0)
		}
	case 0x04: // TAR
		if write {
			s.tar = data
		} else {
			resp = binary.LittleEndian.AppendUint32(resp, s.tar)
		}
	case 0x0C: // DRW
		if write {
			s.Mem[s.tar] = data
			s.checkTrigger(s.tar, data)
		} else {
			resp = binary.LittleEndian.AppendUint32(resp, s.Mem[s.tar])
		}
	default:
		if !write {
			resp = binary.LittleEndian.AppendUint32(resp, 0)
		}
	}
	return resp
}

func (s *Sim) transferBlock(cmd []byte) ([]byte, error) {
	count := int(binary.LittleEndian.Uint16(cmd[2:4]))
	descr := cmd[4]
	write := descr&0b10 == 0

	resp := make([]byte, 4)
	resp[0] = dap.CmdTransferBlock
	binary.LittleEndian.PutUint16(resp[1:3], uint16(count))
	resp[3] = 0b001

	off := 5
	base := s.tar
	for i := 0; i < count; i++ {
		addr := base + uint32(i)*4
		if write {
			v := binary.LittleEndian.Uint32(cmd[off : off+4])
			off += 4
			s.Mem[addr] = v
			s.checkTrigger(addr, v)
		} else {
			resp = binary.LittleEndian.AppendUint32(resp, s.Mem[addr])
		}
	}
	s.tar = base + uint32(count)*4
	return resp, nil
}

// checkTrigger runs the SROM call emulation when addr is the family's
// trigger register: value is the address of the parameter block, word 0 of
// which carries the opcode in its high byte (spec.md §4.H "SROM call
// convention").
func (s *Sim) checkTrigger(addr, value uint32) {
	if addr != s.SromTriggerAddr {
		return
	}
	paramsAddr := value
	word0 := s.Mem[paramsAddr]
	op := byte(word0 >> 24)
	switch op {
	case opProgramRow:
		rowAddr := s.Mem[paramsAddr+4]
		dataAddr := s.Mem[paramsAddr+8]
		length := s.Mem[paramsAddr+12]
		for i := uint32(0); i < length; i += 4 {
			s.Mem[rowAddr+i] = s.Mem[dataAddr+i]
		}
		s.Mem[s.SromResultAddr] = resultSuccess
	case opEraseSector:
		sectorAddr := s.Mem[paramsAddr+4]
		for i := uint32(0); i < s.SectorSize; i += 4 {
			s.Mem[sectorAddr+i] = 0xFFFFFFFF
		}
		s.Mem[s.SromResultAddr] = resultSuccess
	case opSiliconID:
		s.Mem[paramsAddr+4] = uint32(s.FamilyID) | uint32(s.SiliconIDValue)<<16
		s.Mem[paramsAddr+8] = uint32(s.RevisionID) | uint32(s.ProtectionState)<<8
		s.Mem[s.SromResultAddr] = resultSuccess
	case opChecksum:
		rowAddr := s.Mem[paramsAddr+4]
		length := s.Mem[paramsAddr+8]
		var sum uint32
		for i := uint32(0); i < length; i += 4 {
			sum += s.Mem[rowAddr+i]
		}
		s.Mem[paramsAddr+4] = sum
		s.Mem[s.SromResultAddr] = resultSuccess
	default:
		s.Mem[s.SromResultAddr] = resultFailMask | 1
	}
}

// ReadFlashBytes reads n bytes back from the simulated target memory
// starting at addr, unpacked from the unified word-addressed store — a test
// helper for asserting what Program actually wrote.
func (s *Sim) ReadFlashBytes(addr uint32, n int) []byte {
	out := make([]byte, n)
	for i := 0; i < n; i += 4 {
		w := s.Mem[addr+uint32(i)]
		out[i] = byte(w)
		if i+1 < n {
			out[i+1] = byte(w >> 8)
		}
		if i+2 < n {
			out[i+2] = byte(w >> 16)
		}
		if i+3 < n {
			out[i+3] = byte(w >> 24)
		}
	}
	return out
}

// PokeFlashBytes seeds the simulated target memory at addr with data,
// packed into the unified word-addressed store — a test helper for setting
// up a pre-programmed image before a Verify run.
func (s *Sim) PokeFlashBytes(addr uint32, data []byte) {
	for i := 0; i < len(data); i += 4 {
		var w uint32
		w = uint32(data[i])
		if i+1 < len(data) {
			w |= uint32(data[i+1]) << 8
		}
		if i+2 < len(data) {
			w |= uint32(data[i+2]) << 16
		}
		if i+3 < len(data) {
			w |= uint32(data[i+3]) << 24
		}
		s.Mem[addr+uint32(i)] = w
	}
}
