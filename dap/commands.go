// Package dap encodes and decodes the CMSIS-DAP v1 HID command set and
// implements the DP/AP transfer queue with WAIT-retry (spec.md §4.F, §6).
package dap

// Command bytes, bit-for-bit as enumerated in spec.md §6.
const (
	CmdInfo               byte = 0x00
	CmdHostStatus         byte = 0x01
	CmdConnect            byte = 0x02
	CmdDisconnect         byte = 0x03
	CmdTransferConfigure  byte = 0x04
	CmdTransfer           byte = 0x05
	CmdTransferBlock      byte = 0x06
	CmdTransferAbort      byte = 0x07
	CmdWriteAbort         byte = 0x08
	CmdDelay              byte = 0x09
	CmdResetTarget        byte = 0x0A
	CmdSWJPins            byte = 0x10
	CmdSWJClock           byte = 0x11
	CmdSWJSequence        byte = 0x12
	CmdSWDConfigure       byte = 0x13
	CmdJTAGSequence       byte = 0x14
	CmdJTAGConfigure      byte = 0x15
	CmdJTAGIDCODE         byte = 0x16
)

// Connect port selectors (DAP_Connect).
const (
	PortDefault byte = 0
	PortSWD     byte = 1
	PortJTAG    byte = 2
)

// Info IDs (DAP_Info), the subset this module queries.
const (
	InfoVendorID    byte = 0x01
	InfoProductID   byte = 0x02
	InfoSerialNum   byte = 0x03
	InfoFirmwareVer byte = 0x04
	InfoCapabilities byte = 0xF0
)

// Ack is the 3-bit acknowledge code returned by a DP/AP transfer, plus the
// two software-detected conditions spec.md §7 folds into the same enum
// (NoAck, ProtocolError).
type Ack int

const (
	AckOK Ack = iota
	AckWait
	AckFault
	AckProtocolError
	AckNoAck
)

func (a Ack) String() string {
	switch a {
	case AckOK:
		return "OK"
	case AckWait:
		return "WAIT"
	case AckFault:
		return "FAULT"
	case AckProtocolError:
		return "PROTOCOL_ERROR"
	case AckNoAck:
		return "NO_ACK"
	default:
		return "UNKNOWN"
	}
}

// raw wire ack values, the low 3 bits of a DAP_Transfer response byte.
const (
	wireAckOK    = 0b001
	wireAckWait  = 0b010
	wireAckFault = 0b100
)

func decodeAck(b byte) Ack {
	switch b & 0b111 {
	case wireAckOK:
		return AckOK
	case wireAckWait:
		return AckWait
	case wireAckFault:
		return AckFault
	case 0:
		return AckNoAck
	default:
		return AckProtocolError
	}
}

// Transfer request register selector bits (DAP_Transfer / DAP_TransferBlock
// request byte), matching the published CMSIS-DAP bit layout.
const (
	bitAPnDP      = 1 << 0
	bitRnW        = 1 << 1
	bitA2         = 1 << 2
	bitA3         = 1 << 3
	bitValueMatch = 1 << 4
	bitMatchMask  = 1 << 5
)

// Register identifies a DP or AP register transfer, spec.md §3's
// "4-bit DP/AP selector + R/W bit + optional ValueMatch/MatchMask flag".
type Register struct {
	AP         bool // false = DP, true = AP
	Write      bool // false = read
	A2, A3     bool // address bits 2:3 of the target register
	ValueMatch bool
	MatchMask  bool
}

func (r Register) encode() byte {
	var b byte
	if r.AP {
		b |= bitAPnDP
	}
	if !r.Write {
		b |= bitRnW
	}
	if r.A2 {
		b |= bitA2
	}
	if r.A3 {
		b |= bitA3
	}
	if r.ValueMatch {
		b |= bitValueMatch
	}
	if r.MatchMask {
		b |= bitMatchMask
	}
	return b
}

// RegisterFromOffset builds a Register for the DP or AP register at the
// given 4-byte-aligned offset (A2/A3 encode offsets 0x0, 0x4, 0x8, 0xC).
func RegisterFromOffset(ap, write bool, offset byte) Register {
	return Register{
		AP:    ap,
		Write: write,
		A2:    offset&0x4 != 0,
		A3:    offset&0x8 != 0,
	}
}
