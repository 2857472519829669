package psoc6_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tinkerator/psoc6prog/dap"
	"github.com/tinkerator/psoc6prog/internal/dapsim"
	"github.com/tinkerator/psoc6prog/psoc6"
	"github.com/tinkerator/psoc6prog/segment"
	"github.com/tinkerator/psoc6prog/swd"
)

// fakeSink is a no-op progress.Sink for tests that don't assert on it.
type fakeSink struct{}

func (fakeSink) Log(string)              {}
func (fakeSink) Progress(uint32, uint32) {}

// newAcquiredProgrammer runs Acquire against an in-memory dapsim.Sim and
// returns a Programmer bound to the resulting session, exercising spec.md
// §8 scenario E4 ("Acquire against a simulator ... transitions to READY
// within the deadline") as a side effect of every caller.
func newAcquiredProgrammer(t *testing.T) (*psoc6.Programmer, *dapsim.Sim) {
	t.Helper()
	fam := psoc6.PSoC6A2D
	sim := dapsim.New(0x6BA02477)
	sim.SromParamsAddr = fam.SromParamsAddr
	sim.SromDataAddr = fam.SromDataAddr
	sim.SromTriggerAddr = fam.SromTriggerAddr
	sim.SromResultAddr = fam.SromResultAddr
	sim.SectorSize = fam.SectorSize

	q := &dap.Queue{SendRecv: sim.SendRecv}
	sess := &swd.Session{Queue: q}

	state, err := psoc6.Acquire(sess, sim.SendRecv, fam, psoc6.ACQ_RESET, psoc6.APCm0, 200*time.Millisecond)
	require.NoError(t, err)
	require.Equal(t, psoc6.StateReady, state)

	return &psoc6.Programmer{
		Session:  sess,
		SendRecv: sim.SendRecv,
		Family:   fam,
		Sink:     fakeSink{},
		Cancel:   &psoc6.CancelToken{},
	}, sim
}

func TestAcquireReachesReady(t *testing.T) {
	newAcquiredProgrammer(t)
}

func TestAcquireUnsupportedMode(t *testing.T) {
	fam := psoc6.PSoC6A2D
	sim := dapsim.New(0x6BA02477)
	sess := &swd.Session{Queue: &dap.Queue{SendRecv: sim.SendRecv}}
	_, err := psoc6.Acquire(sess, sim.SendRecv, fam, psoc6.ACQ_POWER, psoc6.APCm0, 0)
	require.ErrorIs(t, err, psoc6.ErrAcquireModeUnsupported)
}

// TestProgramAndVerifyRoundTrip mirrors spec.md §8 scenario E5: programming
// one 512-byte row produces exactly the expected flash content, and a
// subsequent Verify of the same block succeeds.
func TestProgramAndVerifyRoundTrip(t *testing.T) {
	p, sim := newAcquiredProgrammer(t)
	data := make([]byte, 512)
	for i := range data {
		data[i] = 0xAA
	}
	block := segment.New(0x10000000, data)

	require.NoError(t, p.ProgramRecord([]segment.Segment{block}))
	require.NoError(t, p.Verify(block))
	require.Equal(t, data, sim.ReadFlashBytes(0x10000000, 512))
}

// TestVerifyMismatch mirrors spec.md §8 scenario E6: a single corrupted
// byte at offset 100 is reported with its exact address and expected/actual
// values.
func TestVerifyMismatch(t *testing.T) {
	p, sim := newAcquiredProgrammer(t)
	data := make([]byte, 512)
	for i := range data {
		data[i] = 0xAA
	}
	block := segment.New(0x10000000, data)
	require.NoError(t, p.ProgramRecord([]segment.Segment{block}))

	mismatchAddr := uint32(0x10000000 + 100)
	sim.Mem[mismatchAddr] = (sim.Mem[mismatchAddr] &^ 0xFF) | 0x55

	err := p.Verify(block)
	require.Error(t, err)
	var vm *psoc6.VerifyMismatch
	require.True(t, errors.As(err, &vm))
	require.Equal(t, mismatchAddr, vm.Addr)
	require.Equal(t, byte(0xAA), vm.Expected)
	require.Equal(t, byte(0x55), vm.Actual)
}

func TestVerifyRecordAggregatesMismatches(t *testing.T) {
	p, sim := newAcquiredProgrammer(t)
	data := make([]byte, 512)
	for i := range data {
		data[i] = 0xAA
	}
	blockA := segment.New(0x10000000, data)
	blockB := segment.New(0x10001000, data)
	require.NoError(t, p.ProgramRecord([]segment.Segment{blockA, blockB}))

	sim.Mem[0x10000000] = 0
	sim.Mem[0x10001000] = 0

	err := p.VerifyRecord([]segment.Segment{blockA, blockB})
	require.Error(t, err)
	require.Contains(t, err.Error(), "2 errors occurred")
}

func TestEraseFlash(t *testing.T) {
	p, sim := newAcquiredProgrammer(t)
	sim.Mem[0x10000000] = 0x12345678
	require.NoError(t, p.EraseFlash(0x10000000, 0x10000004))
	require.Equal(t, uint32(0xFFFFFFFF), sim.Mem[0x10000000])
}

func TestSiliconID(t *testing.T) {
	p, sim := newAcquiredProgrammer(t)
	sim.FamilyID = 0x0100
	sim.SiliconIDValue = 0x002E
	sim.RevisionID = 0x11
	sim.ProtectionState = psoc6.ProtectionNormal

	info, err := psoc6.SiliconID(p.Session, p.Family, p.Cancel)
	require.NoError(t, err)
	require.Equal(t, uint16(0x0100), info.FamilyID)
	require.Equal(t, uint16(0x002E), info.SiliconID)
	require.Equal(t, byte(0x11), info.RevisionID)
	require.Equal(t, psoc6.ProtectionNormal, info.ProtectionState)
	require.False(t, psoc6.RefusesProgramming(info.ProtectionState))
}

func TestSiliconIDSecureRefusesProgramming(t *testing.T) {
	p, sim := newAcquiredProgrammer(t)
	sim.ProtectionState = psoc6.ProtectionSecure

	info, err := psoc6.SiliconID(p.Session, p.Family, p.Cancel)
	require.NoError(t, err)
	require.True(t, psoc6.RefusesProgramming(info.ProtectionState))
	require.Equal(t, "SECURE", psoc6.ProtectionName(info.ProtectionState))
}

func TestCancelDuringProgramStopsAndTearsDown(t *testing.T) {
	p, _ := newAcquiredProgrammer(t)
	p.Cancel.Cancel()

	data := make([]byte, 1024)
	block := segment.New(0x10000000, data)
	_, err := p.Program(block, 0, uint32(len(data)))
	require.Error(t, err)
	var cancelled *psoc6.Cancelled
	require.True(t, errors.As(err, &cancelled))
}

func TestVerifyChecksumRow(t *testing.T) {
	p, sim := newAcquiredProgrammer(t)
	data := make([]byte, 512)
	for i := range data {
		data[i] = byte(i)
	}
	block := segment.New(0x10000000, data)
	require.NoError(t, p.ProgramRecord([]segment.Segment{block}))

	var want uint32
	for i := 0; i < 512; i += 4 {
		want += sim.Mem[0x10000000+uint32(i)]
	}
	require.NoError(t, p.VerifyChecksumRow(0x10000000, want))
	require.Error(t, p.VerifyChecksumRow(0x10000000, want+1))
}
