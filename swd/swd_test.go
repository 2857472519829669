package swd_test

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tinkerator/psoc6prog/dap"
	"github.com/tinkerator/psoc6prog/swd"
)

// fakeProbe answers DAP_Transfer/TransferBlock requests from a tiny
// register file, mimicking just enough of a real CMSIS-DAP + PSoC6 DP/AP
// to exercise Session's bring-up and AP-MEM paths.
type fakeProbe struct {
	idcode   uint32
	ctrlStat uint32
	mem      map[uint32]uint32 // word-addressed
	lastSel  byte
}

func (p *fakeProbe) sendRecv(cmd []byte) ([]byte, error) {
	switch cmd[0] {
	case dap.CmdSWJPins:
		return []byte{dap.CmdSWJPins, 0}, nil
	case dap.CmdSWJSequence:
		return []byte{dap.CmdSWJSequence, 0}, nil
	case dap.CmdTransfer:
		return p.handleTransfer(cmd)
	case dap.CmdTransferBlock:
		return p.handleTransferBlock(cmd)
	case dap.CmdWriteAbort:
		return []byte{dap.CmdWriteAbort, 0}, nil
	}
	panic("unexpected command")
}

func (p *fakeProbe) handleTransfer(cmd []byte) ([]byte, error) {
	count := int(cmd[2])
	off := 3
	resp := []byte{dap.CmdTransfer, byte(count), 0b001}
	var lastAP struct {
		write  bool
		offset byte
	}
	for i := 0; i < count; i++ {
		descr := cmd[off]
		off++
		write := descr&0b10 == 0
		ap := descr&0b01 != 0
		a2 := descr&0b100 != 0
		a3 := descr&0b1000 != 0
		var regOffset byte
		if a2 {
			regOffset |= 0x4
		}
		if a3 {
			regOffset |= 0x8
		}
		var data uint32
		if write {
			data = binary.LittleEndian.Uint32(cmd[off : off+4])
			off += 4
		}
		if ap {
			switch regOffset {
			case 0x0: // CSW
				if write {
					// no behavioral state needed for CSW in these tests
				}
			case 0x4: // TAR
				if write {
					p.mem[0xFFFFFFFF] = data // stash "current TAR" under sentinel key
				}
			case 0xC: // DRW
				lastAP.write = write
				lastAP.offset = regOffset
				tar := p.mem[0xFFFFFFFF]
				if write {
					p.mem[tar] = data
				}
			}
		} else {
			switch regOffset {
			case 0x0: // IDCODE read / ABORT write
				if !write {
					resp = binary.LittleEndian.AppendUint32(resp, p.idcode)
				}
			case 0x4: // CTRL/STAT
				if write {
					p.ctrlStat = data | (1<<31 | 1<<29) // ack immediately
				} else {
					resp = binary.LittleEndian.AppendUint32(resp, p.ctrlStat)
				}
			case 0x8: // SELECT
				if write {
					p.lastSel = byte(data >> 24)
				}
			case 0xC: // RDBUFF
				tar := p.mem[0xFFFFFFFF]
				resp = binary.LittleEndian.AppendUint32(resp, p.mem[tar])
			}
		}
	}
	return resp, nil
}

func (p *fakeProbe) handleTransferBlock(cmd []byte) ([]byte, error) {
	count := int(binary.LittleEndian.Uint16(cmd[2:4]))
	descr := cmd[4]
	write := descr&0b10 == 0
	tar := p.mem[0xFFFFFFFF]
	resp := []byte{dap.CmdTransferBlock, 0, 0, 0b001}
	binary.LittleEndian.PutUint16(resp[1:3], uint16(count))
	off := 5
	for i := 0; i < count; i++ {
		addr := tar + uint32(i)*4
		if write {
			v := binary.LittleEndian.Uint32(cmd[off : off+4])
			off += 4
			p.mem[addr] = v
		} else {
			resp = binary.LittleEndian.AppendUint32(resp, p.mem[addr])
		}
	}
	return resp, nil
}

func newFakeSession(t *testing.T) (*swd.Session, *fakeProbe) {
	t.Helper()
	p := &fakeProbe{idcode: 0x2BA01477, mem: map[uint32]uint32{}}
	q := &dap.Queue{SendRecv: p.sendRecv}
	s, idcode, err := swd.NewSession(q, p.sendRecv, 10)
	require.NoError(t, err)
	require.Equal(t, uint32(0x2BA01477), idcode)
	return s, p
}

func TestNewSessionBringup(t *testing.T) {
	newFakeSession(t)
}

func TestSelectAPIsCached(t *testing.T) {
	s, p := newFakeSession(t)
	require.NoError(t, s.SelectAP(0, 0))
	require.Equal(t, byte(0), p.lastSel)
	p.lastSel = 0xFF
	require.NoError(t, s.SelectAP(0, 0)) // cached, no SELECT write issued
	require.Equal(t, byte(0xFF), p.lastSel)
	require.NoError(t, s.SelectAP(1, 0))
	require.Equal(t, byte(1), p.lastSel)
}

func TestMemWriteReadBlockRoundTrip(t *testing.T) {
	s, _ := newFakeSession(t)
	require.NoError(t, s.SelectAP(0, 0))
	data := []uint32{0xCAFEBABE, 0xDEADBEEF, 0x0BADF00D}
	require.NoError(t, s.MemWriteBlock(0x08000000, data))
	got, err := s.MemReadBlock(0x08000000, len(data))
	require.NoError(t, err)
	require.Equal(t, data, got)
}

func TestMemWriteBytesReadBytesRoundTrip(t *testing.T) {
	s, _ := newFakeSession(t)
	require.NoError(t, s.SelectAP(0, 0))
	payload := []byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08}
	require.NoError(t, swd.MemWriteBytes(s, 0x10000000, payload))
	got, err := swd.MemReadBytes(s, 0x10000000, len(payload))
	require.NoError(t, err)
	require.Equal(t, payload, got)
}
