package psoc6

import (
	"encoding/binary"
	"time"

	"github.com/tinkerator/psoc6prog/swd"
)

// SROM opcodes, the high byte of parameter-block word 0 (spec.md §4.H).
const (
	sromOpSiliconID  = 0x00
	sromOpProgramRow = 0x06
	sromOpEraseAll   = 0x0A
	sromOpChecksum   = 0x0B
	sromOpEraseSector = 0x14
)

// Result-word sentinels (spec.md §4.H).
const (
	sromSuccess  = 0xA0000000
	sromFailMask = 0xF0000000
)

// DefaultSromTimeout is the 2s-per-call bound spec.md §5 assigns to SROM
// completion.
const DefaultSromTimeout = 2000 * time.Millisecond

const sromPollInterval = 2 * time.Millisecond

// sromCall writes params to the family's parameter block, triggers the
// SROM call by writing the block's address to the trigger register, then
// polls the result word until it sees the success sentinel or a failure
// code (spec.md §4.H "SROM call convention").
func sromCall(sess *swd.Session, fam DeviceFamily, params []uint32, timeout time.Duration, cancel *CancelToken) (uint32, error) {
	if timeout == 0 {
		timeout = DefaultSromTimeout
	}
	buf := make([]byte, 4*len(params))
	for i, w := range params {
		binary.LittleEndian.PutUint32(buf[4*i:], w)
	}
	if err := swd.MemWriteBytes(sess, fam.SromParamsAddr, buf); err != nil {
		return 0, err
	}
	if err := swd.MemWriteBytes(sess, fam.SromTriggerAddr, le32(fam.SromParamsAddr)); err != nil {
		return 0, err
	}

	until := time.Now().Add(timeout)
	for {
		if cancel.Requested() {
			return 0, &Cancelled{}
		}
		raw, err := swd.MemReadBytes(sess, fam.SromResultAddr, 4)
		if err != nil {
			return 0, err
		}
		result := binary.LittleEndian.Uint32(raw)
		switch {
		case result == sromSuccess:
			return result, nil
		case result&sromFailMask == sromFailMask:
			return result, SromError(result)
		}
		if time.Now().After(until) {
			return 0, &AcquireError{Reason: "Timeout"}
		}
		time.Sleep(sromPollInterval)
	}
}

// SiliconIDResult decodes the SiliconID SROM call's result payload
// (spec.md §4.H "Silicon info").
type SiliconIDResult struct {
	FamilyID       uint16
	SiliconID      uint16
	RevisionID     byte
	ProtectionState byte
}

// ProtectionState values (spec.md §4.H).
const (
	ProtectionVirgin byte = 0x01
	ProtectionNormal byte = 0x02
	ProtectionSecure byte = 0x03
	ProtectionDead   byte = 0x04
)

// SiliconID runs the SiliconID SROM call and decodes the target's identity
// and protection state.
func SiliconID(sess *swd.Session, fam DeviceFamily, cancel *CancelToken) (SiliconIDResult, error) {
	params := []uint32{uint32(sromOpSiliconID) << 24}
	if _, err := sromCall(sess, fam, params, 0, cancel); err != nil {
		return SiliconIDResult{}, err
	}
	raw, err := swd.MemReadBytes(sess, fam.SromParamsAddr+4, 8)
	if err != nil {
		return SiliconIDResult{}, err
	}
	w0 := binary.LittleEndian.Uint32(raw[0:4])
	w1 := binary.LittleEndian.Uint32(raw[4:8])
	return SiliconIDResult{
		FamilyID:        uint16(w0),
		SiliconID:       uint16(w0 >> 16),
		RevisionID:      byte(w1),
		ProtectionState: byte(w1 >> 8),
	}, nil
}
