package dap

import "encoding/binary"

// EncodeInfo builds a DAP_Info request.
func EncodeInfo(id byte) []byte {
	return []byte{CmdInfo, id}
}

// DecodeInfo parses a DAP_Info response into its raw byte payload.
func DecodeInfo(resp []byte) ([]byte, error) {
	if len(resp) < 2 || resp[0] != CmdInfo {
		return nil, errShortResponse("Info", resp)
	}
	n := int(resp[1])
	if len(resp) < 2+n {
		return nil, errShortResponse("Info", resp)
	}
	return resp[2 : 2+n], nil
}

// EncodeConnect builds a DAP_Connect request for the given port.
func EncodeConnect(port byte) []byte {
	return []byte{CmdConnect, port}
}

// DecodeConnect parses a DAP_Connect response, returning the port actually
// selected (0 means the probe failed to connect).
func DecodeConnect(resp []byte) (byte, error) {
	if len(resp) < 2 || resp[0] != CmdConnect {
		return 0, errShortResponse("Connect", resp)
	}
	return resp[1], nil
}

// EncodeDisconnect builds a DAP_Disconnect request.
func EncodeDisconnect() []byte { return []byte{CmdDisconnect} }

// DecodeStatus parses the single-status-byte response common to several
// commands (Disconnect, SWJ_Clock, SWJ_Sequence, SWD_Configure,
// TransferConfigure, WriteAbort): 0 means success.
func DecodeStatus(cmd byte, resp []byte) error {
	if len(resp) < 2 || resp[0] != cmd {
		return errShortResponse("Status", resp)
	}
	if resp[1] != 0 {
		return &Error{Tag: "ProtocolError", Msg: "non-zero status byte"}
	}
	return nil
}

// EncodeTransferConfigure builds a DAP_TransferConfigure request.
func EncodeTransferConfigure(idleCycles byte, waitRetry, matchRetry uint16) []byte {
	buf := make([]byte, 6)
	buf[0] = CmdTransferConfigure
	buf[1] = idleCycles
	binary.LittleEndian.PutUint16(buf[2:], waitRetry)
	binary.LittleEndian.PutUint16(buf[4:], matchRetry)
	return buf
}

// EncodeSWJPins builds a DAP_SWJ_Pins request.
func EncodeSWJPins(output, selectMask byte, waitUS uint32) []byte {
	buf := make([]byte, 7)
	buf[0] = CmdSWJPins
	buf[1] = output
	buf[2] = selectMask
	binary.LittleEndian.PutUint32(buf[3:], waitUS)
	return buf
}

// DecodeSWJPins parses a DAP_SWJ_Pins response, returning the pin input
// state.
func DecodeSWJPins(resp []byte) (byte, error) {
	if len(resp) < 2 || resp[0] != CmdSWJPins {
		return 0, errShortResponse("SWJ_Pins", resp)
	}
	return resp[1], nil
}

// EncodeSetClock builds a DAP_SWJ_Clock request.
func EncodeSetClock(hz uint32) []byte {
	buf := make([]byte, 5)
	buf[0] = CmdSWJClock
	binary.LittleEndian.PutUint32(buf[1:], hz)
	return buf
}

// EncodeSWJSequence builds a DAP_SWJ_Sequence request for bitCount bits of
// data (MSB-first within data, LSB-first within each byte, per CMSIS-DAP).
func EncodeSWJSequence(bitCount int, data []byte) []byte {
	// bitCount==256 is encoded as a count byte of 0 per CMSIS-DAP's
	// "count of 0 means 256" convention; this module never emits that case
	// since SWJ bring-up uses 50-, 16- and 8-bit sequences.
	buf := make([]byte, 0, 2+len(data))
	buf = append(buf, CmdSWJSequence, byte(bitCount))
	buf = append(buf, data...)
	return buf
}

// EncodeSWDConfigure builds a DAP_SWD_Configure request.
func EncodeSWDConfigure(turnaround byte, dataPhase bool) []byte {
	cfg := turnaround & 0x3
	if dataPhase {
		cfg |= 0x4
	}
	return []byte{CmdSWDConfigure, cfg}
}

// EncodeResetTarget builds a DAP_ResetTarget request.
func EncodeResetTarget() []byte { return []byte{CmdResetTarget} }

// DecodeResetTarget parses a DAP_ResetTarget response.
func DecodeResetTarget(resp []byte) error {
	if len(resp) < 3 || resp[0] != CmdResetTarget {
		return errShortResponse("ResetTarget", resp)
	}
	if resp[1] != 0 {
		return &Error{Tag: "ProtocolError", Msg: "reset status non-zero"}
	}
	return nil
}

// EncodeWriteAbort builds a DAP_WriteAbort request.
func EncodeWriteAbort(dapIndex byte, abort uint32) []byte {
	buf := make([]byte, 6)
	buf[0] = CmdWriteAbort
	buf[1] = dapIndex
	binary.LittleEndian.PutUint32(buf[2:], abort)
	return buf
}

// EncodeTransferAbort builds a DAP_TransferAbort request.
func EncodeTransferAbort() []byte { return []byte{CmdTransferAbort} }

// EncodeDelay builds a DAP_Delay request for the given microsecond count.
func EncodeDelay(us uint16) []byte {
	buf := make([]byte, 3)
	buf[0] = CmdDelay
	binary.LittleEndian.PutUint16(buf[1:], us)
	return buf
}

// EncodeHostStatus builds a DAP_HostStatus (LED) request.
func EncodeHostStatus(statusType, status byte) []byte {
	return []byte{CmdHostStatus, statusType, status}
}

func errShortResponse(what string, resp []byte) error {
	return &Error{Tag: "ProtocolError", Msg: what + ": response too short or wrong command echo"}
}

// Error tags a DAP-layer failure per spec.md §7.
type Error struct {
	Tag string // NoAck | Fault | ProtocolError | WaitExceeded
	Msg string
}

func (e *Error) Error() string {
	return "dap: " + e.Tag + ": " + e.Msg
}
