package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"

	"github.com/google/gousb"

	"github.com/tinkerator/psoc6prog/dap"
	"github.com/tinkerator/psoc6prog/elffile"
	"github.com/tinkerator/psoc6prog/firmware"
	"github.com/tinkerator/psoc6prog/hexfile"
	"github.com/tinkerator/psoc6prog/memmap"
	"github.com/tinkerator/psoc6prog/progress"
	"github.com/tinkerator/psoc6prog/psoc6"
	"github.com/tinkerator/psoc6prog/segment"
	"github.com/tinkerator/psoc6prog/swd"
	"github.com/tinkerator/psoc6prog/transport/hidusb"
)

func main() {
	cfg, err := parseFlags(os.Args[1:])
	if err != nil {
		log.Fatal(err)
	}

	sink := progress.NewDefaultSink(cfg.Verbose)

	if cfg.Layout {
		printLayout(sink)
		return
	}

	segs, err := ingestFirmware(cfg)
	if err != nil && (cfg.Program || cfg.Verify) {
		log.Fatalf("failed to read firmware: %v", err)
	}

	vid, err := parseID(cfg.VID)
	if err != nil {
		log.Fatal(err)
	}
	pid, err := parseID(cfg.PID)
	if err != nil {
		log.Fatal(err)
	}
	epIn, err := parseEndpoint(cfg.EPIn)
	if err != nil {
		log.Fatal(err)
	}
	epOut, err := parseEndpoint(cfg.EPOut)
	if err != nil {
		log.Fatal(err)
	}

	ctx := gousb.NewContext()
	defer ctx.Close()

	probe, err := hidusb.Open(ctx, vid, pid, cfg.Interface, cfg.Alt, epIn, epOut)
	if err != nil {
		log.Fatalf("failed to open CMSIS-DAP probe %s:%s: %v", cfg.VID, cfg.PID, err)
	}
	defer probe.Close()

	sendRecv := func(cmd []byte) ([]byte, error) {
		if err := probe.Send(cmd); err != nil {
			return nil, err
		}
		resp, err := probe.Recv(0)
		if cfg.Verbose {
			sink.DumpRaw("tx", 0, cmd)
			if err == nil {
				sink.DumpRaw("rx", 0, resp)
			}
		}
		return resp, err
	}

	connResp, err := sendRecv(dap.EncodeConnect(dap.PortSWD))
	if err != nil {
		log.Fatalf("DAP_Connect failed: %v", err)
	}
	if port, err := dap.DecodeConnect(connResp); err != nil || port != dap.PortSWD {
		log.Fatalf("DAP_Connect: probe did not select SWD (port=%d, err=%v)", port, err)
	}
	clockResp, err := sendRecv(dap.EncodeSetClock(uint32(cfg.ClockHz)))
	if err != nil {
		log.Fatalf("DAP_SWJ_Clock failed: %v", err)
	}
	if err := dap.DecodeStatus(dap.CmdSWJClock, clockResp); err != nil {
		log.Fatalf("DAP_SWJ_Clock rejected: %v", err)
	}

	ap, err := parseAP(cfg.AP)
	if err != nil {
		log.Fatal(err)
	}

	fam := psoc6.PSoC6A2D
	sess := &swd.Session{Queue: &dap.Queue{SendRecv: sendRecv}}

	cancel := &psoc6.CancelToken{}
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)
	go func() {
		<-stop
		sink.Log("interrupt received, cancelling")
		cancel.Cancel()
	}()

	state, err := psoc6.Acquire(sess, sendRecv, fam, psoc6.ACQ_RESET, ap, cfg.AcquireTimeout)
	if err != nil {
		log.Fatalf("acquire failed: %v", err)
	}
	progress.Logf(sink, "acquired target, state=%s", state)

	prog := &psoc6.Programmer{
		Session:  sess,
		SendRecv: sendRecv,
		Family:   fam,
		Sink:     sink,
		Cancel:   cancel,
	}

	if cfg.Info {
		printInfo(sink, prog)
		return
	}

	if cfg.EraseStart != "" {
		if cfg.EraseEnd == "" {
			log.Fatal("-erase-start requires -erase-end")
		}
		start, err := parseAddr(cfg.EraseStart)
		if err != nil {
			log.Fatal(err)
		}
		end, err := parseAddr(cfg.EraseEnd)
		if err != nil {
			log.Fatal(err)
		}
		if err := prog.EraseFlash(start, end); err != nil {
			log.Fatalf("erase failed: %v", err)
		}
	}

	if cfg.Program || cfg.Verify {
		rec := firmware.Merge(firmware.Classify(memmap.PSoC6, segs), memmap.RowSize)
		if err := rec.VerifyChecksumRegion(); err != nil {
			progress.Logf(sink, "warning: %v", err)
		}

		if cfg.Program {
			if err := prog.ProgramRecord(rec.ApplicationFlash); err != nil {
				log.Fatalf("program failed: %v", err)
			}
		}
		if cfg.Verify {
			if cfg.FastVerify {
				for _, b := range rec.ApplicationFlash {
					progress.Logf(sink, "fast-verify block %s: use VerifyChecksumRow per row against a known-good CRC", b)
				}
			} else if err := prog.VerifyRecord(rec.ApplicationFlash); err != nil {
				log.Fatalf("verify failed: %v", err)
			}
		}
	}
}

// ingestFirmware parses the configured firmware file (mutually exclusive
// -hex/-elf) into the common Segment list the firmware classifier consumes.
func ingestFirmware(cfg *Config) ([]segment.Segment, error) {
	switch {
	case cfg.HexFile != "" && cfg.ElfFile != "":
		return nil, fmt.Errorf("specify only one of -hex or -elf")
	case cfg.HexFile != "":
		raw, err := os.ReadFile(cfg.HexFile)
		if err != nil {
			return nil, err
		}
		result, err := hexfile.Parse(string(raw))
		if err != nil {
			return nil, err
		}
		return result.Segments, nil
	case cfg.ElfFile != "":
		raw, err := os.ReadFile(cfg.ElfFile)
		if err != nil {
			return nil, err
		}
		progs, err := elffile.Load(raw)
		if err != nil {
			return nil, err
		}
		return elffile.Segments(progs), nil
	default:
		return nil, nil
	}
}

func parseAP(s string) (byte, error) {
	switch strings.ToLower(s) {
	case "cm0":
		return psoc6.APCm0, nil
	case "cm4":
		return psoc6.APCm4, nil
	}
	return 0, fmt.Errorf("unknown -ap %q: want cm0 or cm4", s)
}
