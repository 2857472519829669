package dap

import "encoding/binary"

// MaxRetries is the DP register ACK retry budget (spec.md §4.F, §5): a
// WAIT on any single request in a transfer causes the whole transfer to be
// retried, with no delay, up to MaxRetries times.
const MaxRetries = 100

// TransferRequest is one entry of a DAP_Transfer/TransferBlock request,
// spec.md §3's DapTransferRequest.
type TransferRequest struct {
	Reg  Register
	Data uint32 // used when Reg.Write or Reg.ValueMatch
}

// EncodeTransfer assembles up to len(reqs) requests into a single
// DAP_Transfer command (spec.md §4.F "Transfer assembly"): each request
// emits its 1-byte descriptor followed by 4 little-endian data bytes when
// it's a write or match, nothing otherwise.
func EncodeTransfer(dapIndex byte, reqs []TransferRequest) []byte {
	buf := make([]byte, 0, 3+4*len(reqs))
	buf = append(buf, CmdTransfer, dapIndex, byte(len(reqs)))
	for _, r := range reqs {
		buf = append(buf, r.Reg.encode())
		if r.Reg.Write || r.Reg.ValueMatch {
			var word [4]byte
			binary.LittleEndian.PutUint32(word[:], r.Data)
			buf = append(buf, word[:]...)
		}
	}
	return buf
}

// TransferResult is the decoded outcome of a DAP_Transfer response.
type TransferResult struct {
	Executed int
	LastAck  Ack
	Values   []uint32 // one per successfully executed read, in request order
}

// DecodeTransfer parses a DAP_Transfer response against the requests that
// produced it (spec.md §4.F: "parses count_executed, last_ack, then
// values[] for every read request of the first count_executed entries").
func DecodeTransfer(resp []byte, reqs []TransferRequest) (TransferResult, error) {
	if len(resp) < 3 || resp[0] != CmdTransfer {
		return TransferResult{}, errShortResponse("Transfer", resp)
	}
	executed := int(resp[1])
	ack := decodeAck(resp[2])
	if executed > len(reqs) {
		return TransferResult{}, &Error{"ProtocolError", "executed count exceeds request count"}
	}

	off := 3
	var values []uint32
	for i := 0; i < executed; i++ {
		if !reqs[i].Reg.Write {
			if off+4 > len(resp) {
				return TransferResult{}, errShortResponse("Transfer", resp)
			}
			values = append(values, binary.LittleEndian.Uint32(resp[off:off+4]))
			off += 4
		}
	}
	return TransferResult{Executed: executed, LastAck: ack, Values: values}, nil
}

// EncodeTransferBlock assembles a DAP_TransferBlock command for a bulk
// memory read/write (spec.md §4.F): count and a single request descriptor
// in the header, followed by count*4 data bytes for writes.
func EncodeTransferBlock(dapIndex byte, reg Register, count uint16, data []uint32) []byte {
	buf := make([]byte, 0, 4+4*len(data))
	buf = append(buf, CmdTransferBlock, dapIndex, 0, 0)
	binary.LittleEndian.PutUint16(buf[2:4], count)
	buf = append(buf, reg.encode())
	if reg.Write {
		for _, v := range data {
			var word [4]byte
			binary.LittleEndian.PutUint32(word[:], v)
			buf = append(buf, word[:]...)
		}
	}
	return buf
}

// TransferBlockResult is the decoded outcome of a DAP_TransferBlock
// response.
type TransferBlockResult struct {
	Executed int
	Ack      Ack
	Values   []uint32 // populated for read blocks
}

// DecodeTransferBlock parses a DAP_TransferBlock response.
func DecodeTransferBlock(resp []byte, reg Register) (TransferBlockResult, error) {
	if len(resp) < 4 || resp[0] != CmdTransferBlock {
		return TransferBlockResult{}, errShortResponse("TransferBlock", resp)
	}
	count := int(binary.LittleEndian.Uint16(resp[1:3]))
	ack := decodeAck(resp[3])

	var values []uint32
	if !reg.Write {
		off := 4
		for i := 0; i < count; i++ {
			if off+4 > len(resp) {
				return TransferBlockResult{}, errShortResponse("TransferBlock", resp)
			}
			values = append(values, binary.LittleEndian.Uint32(resp[off:off+4]))
			off += 4
		}
	}
	return TransferBlockResult{Executed: count, Ack: ack, Values: values}, nil
}

// SendRecv is the synchronous round-trip a Queue drives requests over; it
// is satisfied by the HID transport's Send+Recv pair (spec.md §4.E/§4.F).
type SendRecv func(cmd []byte) (resp []byte, err error)

// Queue executes DAP_Transfer requests with the WAIT-retry policy spec.md
// §4.F and §5 describe: a single WAIT anywhere in the transfer retries the
// whole transfer, with no delay, up to MaxRetries times; FAULT aborts with
// a WriteAbort and surfaces; NO_ACK/PROTOCOL_ERROR are immediately fatal.
type Queue struct {
	SendRecv SendRecv
	DAPIndex byte
}

// Execute runs reqs to completion (or exhausts MaxRetries) and returns the
// read values in request order.
func (q *Queue) Execute(reqs []TransferRequest) ([]uint32, error) {
	for attempt := 0; attempt <= MaxRetries; attempt++ {
		resp, err := q.SendRecv(EncodeTransfer(q.DAPIndex, reqs))
		if err != nil {
			return nil, err
		}
		result, err := DecodeTransfer(resp, reqs)
		if err != nil {
			return nil, err
		}
		switch result.LastAck {
		case AckOK:
			return result.Values, nil
		case AckWait:
			continue
		case AckFault:
			q.SendRecv(EncodeWriteAbort(q.DAPIndex, 0x1F)) // clear DP sticky errors
			return nil, &Error{"Fault", "transfer faulted"}
		default:
			return nil, &Error{result.LastAck.String(), "transfer failed"}
		}
	}
	return nil, &Error{"WaitExceeded", "exceeded retry budget waiting for ACK"}
}

// ExecuteBlock runs a single DAP_TransferBlock to completion, applying the
// same WAIT-retry policy as Execute.
func (q *Queue) ExecuteBlock(reg Register, count uint16, data []uint32) ([]uint32, error) {
	for attempt := 0; attempt <= MaxRetries; attempt++ {
		resp, err := q.SendRecv(EncodeTransferBlock(q.DAPIndex, reg, count, data))
		if err != nil {
			return nil, err
		}
		result, err := DecodeTransferBlock(resp, reg)
		if err != nil {
			return nil, err
		}
		switch result.Ack {
		case AckOK:
			return result.Values, nil
		case AckWait:
			continue
		case AckFault:
			q.SendRecv(EncodeWriteAbort(q.DAPIndex, 0x1F))
			return nil, &Error{"Fault", "transfer block faulted"}
		default:
			return nil, &Error{result.Ack.String(), "transfer block failed"}
		}
	}
	return nil, &Error{"WaitExceeded", "exceeded retry budget waiting for ACK"}
}
