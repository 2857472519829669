package psoc6

import (
	"time"

	"github.com/tinkerator/psoc6prog/dap"
	"github.com/tinkerator/psoc6prog/swd"
)

// pinSRST is the CMSIS-DAP SWJ_Pins bit for nRESET.
const pinSRST = 1 << 7

// AP IDR lives in bank 0xF, offset 0xC of every Debug-Access-Port.
const (
	apBankID = 0xF
	apOffIDR = 0x0C
)

// State is a node of the Acquire state machine (spec.md §4.H).
type State int

const (
	StateIdle State = iota
	StateResetHeld
	StateWaitTestMode
	StateAPOpened
	StateReady
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateResetHeld:
		return "RESET_HELD"
	case StateWaitTestMode:
		return "WAIT_TEST_MODE"
	case StateAPOpened:
		return "AP_OPENED"
	case StateReady:
		return "READY"
	default:
		return "UNKNOWN"
	}
}

// AcquireMode selects the Acquire sub-procedure. ACQ_POWER is recognised
// for protocol completeness only (spec.md §4.H, §9).
type AcquireMode int

const (
	ACQ_RESET AcquireMode = iota
	ACQ_POWER
)

// DefaultAcquireDeadline is the 1.5s bound spec.md §5 assigns to Acquire.
const DefaultAcquireDeadline = 1500 * time.Millisecond

// testModePollInterval paces the TEST_MODE_REGISTER readback poll of step 6.
const testModePollInterval = 5 * time.Millisecond

// Acquire runs the Acquire state machine against a freshly bound Session:
// hold SRST, release it while racing IDCODE reads against a deadline, power
// up the debug domains, open the requested AP, then force the target into
// test mode (spec.md §4.H). On any failure it returns to StateIdle and a
// non-nil *AcquireError.
func Acquire(sess *swd.Session, sendRecv dap.SendRecv, fam DeviceFamily, mode AcquireMode, ap byte, deadline time.Duration) (State, error) {
	if mode != ACQ_RESET {
		return StateIdle, ErrAcquireModeUnsupported
	}
	if deadline == 0 {
		deadline = DefaultAcquireDeadline
	}

	// 1. Pull SRST low, hold >= 1ms.
	if _, err := sendRecv(dap.EncodeSWJPins(0, pinSRST, 1000)); err != nil {
		return StateIdle, &AcquireError{Reason: "Timeout"}
	}
	// state: RESET_HELD

	// 2/3. Release SRST; retry SWJ bring-up + IDCODE read until deadline.
	until := time.Now().Add(deadline)
	var idcode uint32
	var err error
	if _, perr := sendRecv(dap.EncodeSWJPins(pinSRST, pinSRST, 0)); perr != nil {
		return StateIdle, &AcquireError{Reason: "NoSwdResponse"}
	}
	for {
		if err = swd.Bringup(sendRecv); err == nil {
			idcode, err = sess.ReadIDCODE()
			if err == nil {
				break
			}
		}
		if time.Now().After(until) {
			return StateIdle, &AcquireError{Reason: "NoSwdResponse"}
		}
	}
	_ = idcode
	// state: WAIT_TEST_MODE

	// 4. Power up debug/system domains.
	if err := sess.ClearStickyErrors(); err != nil {
		return StateIdle, &AcquireError{Reason: "NoSwdResponse"}
	}
	remaining := time.Until(until)
	if remaining <= 0 {
		return StateIdle, &AcquireError{Reason: "Timeout"}
	}
	if err := sess.PowerUp(int(remaining / testModePollInterval)); err != nil {
		return StateIdle, &AcquireError{Reason: "Timeout"}
	}

	// 5. Open the requested AP; confirm its IDR matches the AHB-AP class.
	if err := sess.SelectAP(ap, apBankID); err != nil {
		return StateIdle, &AcquireError{Reason: "NoSwdResponse"}
	}
	idr, err := sess.ReadAP(apOffIDR)
	if err != nil {
		return StateIdle, &AcquireError{Reason: "NoSwdResponse"}
	}
	if !isAHBAP(idr) {
		return StateIdle, &AcquireError{Reason: "NoSwdResponse"}
	}
	if err := sess.SelectAP(ap, 0); err != nil {
		return StateIdle, &AcquireError{Reason: "NoSwdResponse"}
	}
	// state: AP_OPENED

	// 6. Force test mode, poll TEST_MODE_REGISTER bit31.
	if err := swd.MemWriteBytes(sess, fam.TestModeAddr, le32(0x80000000)); err != nil {
		return StateIdle, &AcquireError{Reason: "TestModeNotEntered"}
	}
	for {
		b, err := swd.MemReadBytes(sess, fam.TestModeAddr, 4)
		if err != nil {
			return StateIdle, &AcquireError{Reason: "TestModeNotEntered"}
		}
		if b[3]&0x80 != 0 {
			return StateReady, nil
		}
		if time.Now().After(until) {
			return StateIdle, &AcquireError{Reason: "TestModeNotEntered"}
		}
		time.Sleep(testModePollInterval)
	}
}

func le32(v uint32) []byte {
	return []byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)}
}
