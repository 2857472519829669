package swd

import "github.com/tinkerator/psoc6prog/dap"

// jtagToSWD is the 16-bit JTAG-to-SWD line reset sequence from the ARM ADI
// spec, sent LSB-first as two bytes (spec.md §4.G "SWJ bring-up").
const jtagToSWD = 0xE79E

// lineResetCycles is the minimum run of SWDIO=1 clock cycles either side of
// the JTAG-to-SWD sequence that constitutes a line reset.
const lineResetCycles = 50

// Bringup drives the SWJ_Pins/SWJ_Sequence handshake that switches the
// probe's physical interface into SWD and resets the line state, before any
// DP register is touched (spec.md §4.G "SWJ bring-up").
func Bringup(sendRecv dap.SendRecv) error {
	if _, err := sendRecv(dap.EncodeSWJPins(0, 0, 0)); err != nil {
		return err
	}
	if err := sendLineReset(sendRecv); err != nil {
		return err
	}
	if _, err := sendRecv(dap.EncodeSWJSequence(16, []byte{byte(jtagToSWD), byte(jtagToSWD >> 8)})); err != nil {
		return err
	}
	if err := sendLineReset(sendRecv); err != nil {
		return err
	}
	// idle cycles, SWDIO low, to park the line before the first DP access.
	if _, err := sendRecv(dap.EncodeSWJSequence(8, []byte{0x00})); err != nil {
		return err
	}
	return nil
}

func sendLineReset(sendRecv dap.SendRecv) error {
	ones := make([]byte, (lineResetCycles+7)/8)
	for i := range ones {
		ones[i] = 0xFF
	}
	_, err := sendRecv(dap.EncodeSWJSequence(lineResetCycles, ones))
	return err
}

// NewSession performs Bringup, then DP IDCODE read, sticky-error clear and
// power-up, returning a Session ready for AP select (spec.md §4.G).
func NewSession(q *dap.Queue, sendRecv dap.SendRecv, maxPowerUpPolls int) (*Session, uint32, error) {
	if err := Bringup(sendRecv); err != nil {
		return nil, 0, err
	}
	s := &Session{Queue: q}
	idcode, err := s.ReadIDCODE()
	if err != nil {
		return nil, 0, err
	}
	if err := s.ClearStickyErrors(); err != nil {
		return nil, 0, err
	}
	if err := s.PowerUp(maxPowerUpPolls); err != nil {
		return nil, 0, err
	}
	return s, idcode, nil
}
