// Package swd implements SWJ bring-up, DP/AP register access and AP-MEM
// memory read/write on top of the dap command layer (spec.md §4.G).
package swd

import (
	"fmt"

	"github.com/tinkerator/psoc6prog/dap"
)

// DP register offsets (4-byte aligned, used with dap.RegisterFromOffset).
const (
	dpIDCODE  = 0x0 // read
	dpABORT   = 0x0 // write
	dpCTRLSTAT = 0x4
	dpSELECT  = 0x8 // write-only
	dpRDBUFF  = 0xC // read-only
)

// AP-MEM (bank 0) register offsets.
const (
	apCSW = 0x00
	apTAR = 0x04
	apDRW = 0x0C
)

// CTRL/STAT bits.
const (
	CtrlCSYSPWRUPREQ = 1 << 30
	CtrlCDBGPWRUPREQ = 1 << 28
	CtrlCSYSPWRUPACK = 1 << 31
	CtrlCDBGPWRUPACK = 1 << 29
)

// ABORT register bits.
const (
	AbortDAPABORT   = 1 << 0
	AbortSTKCMPCLR  = 1 << 1
	AbortSTKERRCLR  = 1 << 2
	AbortWDERRCLR   = 1 << 3
	AbortORUNERRCLR = 1 << 4
	AbortClearAll   = AbortSTKCMPCLR | AbortSTKERRCLR | AbortWDERRCLR | AbortORUNERRCLR
)

// CSW bits this module sets for 32-bit auto-incrementing block transfers.
const (
	cswSize32   = 0x2
	cswAddrIncSingle = 0x1 << 4
)

// Error tags an SWD-layer failure.
type Error struct {
	Tag string
	Msg string
}

func (e *Error) Error() string { return fmt.Sprintf("swd: %s: %s", e.Tag, e.Msg) }

// Session tracks DP/AP bring-up state and caches CSW/TAR to elide
// redundant writes when the next address matches the predicted
// auto-increment (spec.md §3 TargetSession, §4.G).
type Session struct {
	Queue *dap.Queue

	SelectedAP  byte
	apBankKnown bool
	apBank      byte

	cswValid bool
	csw      uint32
	tarValid bool
	tar      uint32
}

func dpReg(write bool, offset byte) dap.Register {
	return dap.RegisterFromOffset(false, write, offset)
}

func apReg(write bool, offset byte) dap.Register {
	return dap.RegisterFromOffset(true, write, offset)
}

// ReadIDCODE reads the DP IDCODE register.
func (s *Session) ReadIDCODE() (uint32, error) {
	vals, err := s.Queue.Execute([]dap.TransferRequest{{Reg: dpReg(false, dpIDCODE)}})
	if err != nil {
		return 0, err
	}
	return vals[0], nil
}

// ClearStickyErrors writes the DP ABORT register to clear STKCMP/STKERR/
// WDERR/ORUNERR (spec.md §4.G "DP init").
func (s *Session) ClearStickyErrors() error {
	_, err := s.Queue.Execute([]dap.TransferRequest{{Reg: dpReg(true, dpABORT), Data: AbortClearAll}})
	return err
}

// ReadCtrlStat reads the DP CTRL/STAT register.
func (s *Session) ReadCtrlStat() (uint32, error) {
	vals, err := s.Queue.Execute([]dap.TransferRequest{{Reg: dpReg(false, dpCTRLSTAT)}})
	if err != nil {
		return 0, err
	}
	return vals[0], nil
}

// WriteCtrlStat writes the DP CTRL/STAT register.
func (s *Session) WriteCtrlStat(v uint32) error {
	_, err := s.Queue.Execute([]dap.TransferRequest{{Reg: dpReg(true, dpCTRLSTAT), Data: v}})
	return err
}

// PowerUp sets CSYSPWRUPREQ|CDBGPWRUPREQ and polls until both *ACK bits are
// set, up to maxPolls attempts (spec.md §4.G "DP init").
func (s *Session) PowerUp(maxPolls int) error {
	if err := s.WriteCtrlStat(CtrlCSYSPWRUPREQ | CtrlCDBGPWRUPREQ); err != nil {
		return err
	}
	for i := 0; i < maxPolls; i++ {
		v, err := s.ReadCtrlStat()
		if err != nil {
			return err
		}
		if v&(CtrlCSYSPWRUPACK|CtrlCDBGPWRUPACK) == (CtrlCSYSPWRUPACK | CtrlCDBGPWRUPACK) {
			return nil
		}
	}
	return &Error{"PowerUpTimeout", "CTRL/STAT power-up ACK bits never set"}
}

// SelectAP writes DP SELECT with the given APSEL (AP index, bits 31:24)
// and APBANKSEL (register bank, bits 7:4), per spec.md §4.G "AP select".
func (s *Session) SelectAP(apsel, bank byte) error {
	if s.apBankKnown && s.SelectedAP == apsel && s.apBank == bank {
		return nil
	}
	value := uint32(apsel)<<24 | uint32(bank&0xF)<<4
	if _, err := s.Queue.Execute([]dap.TransferRequest{{Reg: dpReg(true, dpSELECT), Data: value}}); err != nil {
		return err
	}
	s.SelectedAP = apsel
	s.apBank = bank
	s.apBankKnown = true
	s.cswValid = false
	s.tarValid = false
	return nil
}

// ReadAP reads an AP register (bank must already be selected via SelectAP);
// the value comes back on the following DP RDBUFF read per the ADI
// pipelined-read convention.
func (s *Session) ReadAP(offset byte) (uint32, error) {
	vals, err := s.Queue.Execute([]dap.TransferRequest{
		{Reg: apReg(false, offset)},
		{Reg: dpReg(false, dpRDBUFF)},
	})
	if err != nil {
		return 0, err
	}
	if len(vals) < 2 {
		return 0, &Error{"ProtocolError", "AP read did not return a buffered value"}
	}
	return vals[1], nil
}

// WriteAP writes an AP register.
func (s *Session) WriteAP(offset byte, v uint32) error {
	_, err := s.Queue.Execute([]dap.TransferRequest{{Reg: apReg(true, offset), Data: v}})
	return err
}

// setCSW writes AP-MEM CSW only if it differs from the cached value
// (spec.md §4.G: "csw/tar are cached per session to elide redundant
// writes").
func (s *Session) setCSW(v uint32) error {
	if s.cswValid && s.csw == v {
		return nil
	}
	if err := s.WriteAP(apCSW, v); err != nil {
		return err
	}
	s.csw = v
	s.cswValid = true
	return nil
}

// setTAR writes AP-MEM TAR only if it differs from the cached prediction.
func (s *Session) setTAR(addr uint32) error {
	if s.tarValid && s.tar == addr {
		return nil
	}
	if err := s.WriteAP(apTAR, addr); err != nil {
		return err
	}
	s.tar = addr
	s.tarValid = true
	return nil
}

// MemReadBlock reads count 32-bit words starting at addr via AP-MEM DRW,
// auto-increment enabled, updating the cached TAR prediction afterward.
func (s *Session) MemReadBlock(addr uint32, count int) ([]uint32, error) {
	if err := s.setCSW(cswSize32 | cswAddrIncSingle); err != nil {
		return nil, err
	}
	if err := s.setTAR(addr); err != nil {
		return nil, err
	}
	vals, err := s.Queue.ExecuteBlock(apReg(false, apDRW), uint16(count), nil)
	if err != nil {
		s.tarValid = false
		return nil, err
	}
	s.tar = addr + uint32(count)*4
	s.tarValid = true
	return vals, nil
}

// MemWriteBlock writes data as consecutive 32-bit words starting at addr.
func (s *Session) MemWriteBlock(addr uint32, data []uint32) error {
	if err := s.setCSW(cswSize32 | cswAddrIncSingle); err != nil {
		return err
	}
	if err := s.setTAR(addr); err != nil {
		return err
	}
	if _, err := s.Queue.ExecuteBlock(apReg(true, apDRW), uint16(len(data)), data); err != nil {
		s.tarValid = false
		return err
	}
	s.tar = addr + uint32(len(data))*4
	s.tarValid = true
	return nil
}

// MemWriteBytes packs a byte slice (len must be a multiple of 4) into
// little-endian words and writes it via MemWriteBlock.
func MemWriteBytes(s *Session, addr uint32, data []byte) error {
	words := bytesToWordsLE(data)
	return s.MemWriteBlock(addr, words)
}

// MemReadBytes reads n bytes (must be a multiple of 4) via MemReadBlock and
// unpacks them to little-endian bytes.
func MemReadBytes(s *Session, addr uint32, n int) ([]byte, error) {
	words, err := s.MemReadBlock(addr, n/4)
	if err != nil {
		return nil, err
	}
	return wordsToBytesLE(words), nil
}

func bytesToWordsLE(b []byte) []uint32 {
	out := make([]uint32, len(b)/4)
	for i := range out {
		out[i] = uint32(b[4*i]) | uint32(b[4*i+1])<<8 | uint32(b[4*i+2])<<16 | uint32(b[4*i+3])<<24
	}
	return out
}

func wordsToBytesLE(words []uint32) []byte {
	out := make([]byte, len(words)*4)
	for i, w := range words {
		out[4*i] = byte(w)
		out[4*i+1] = byte(w >> 8)
		out[4*i+2] = byte(w >> 16)
		out[4*i+3] = byte(w >> 24)
	}
	return out
}
