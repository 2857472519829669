// Command psoc6prog is the CLI entry point that wires the core packages
// (hexfile/elffile, firmware, transport/hidusb, dap, swd, psoc6) together
// against a real CMSIS-DAP probe, playing the role spec.md §1 assigns to
// "the desktop GUI" and the rest of the out-of-scope UI collaborators: flag
// parsing, progress/log sink wiring, and scan/open/acquire/program/verify
// orchestration (spec.md §6 "Programmer API").
//
// Flags follow tinkerator/qftool's flat flag.String/flag.Bool style
// (qftool.go's -tty/-layout/-check/-read/-write set), adapted from a serial
// SPI-flash programmer's surface to a USB-HID SWD probe's.
package main

import (
	"flag"
	"fmt"
	"strconv"
	"time"

	"github.com/google/gousb"
)

// Config collects every flag into one struct, the same shape qftool's
// package-level `var (...)` flag block would take if grouped for testing.
type Config struct {
	HexFile string
	ElfFile string

	VID, PID       string
	Interface, Alt int
	EPIn, EPOut    string

	AP            string
	ClockHz       uint
	AcquireTimeout time.Duration

	EraseStart, EraseEnd string

	Program     bool
	Verify      bool
	FastVerify  bool
	Layout      bool
	Info        bool
	Verbose     bool
}

func parseFlags(args []string) (*Config, error) {
	fs := flag.NewFlagSet("psoc6prog", flag.ContinueOnError)
	cfg := &Config{}

	fs.StringVar(&cfg.HexFile, "hex", "", "Intel-HEX firmware image to program")
	fs.StringVar(&cfg.ElfFile, "elf", "", "ELF32 firmware image to program")

	fs.StringVar(&cfg.VID, "vid", "0x0d28", "USB vendor ID of the CMSIS-DAP probe")
	fs.StringVar(&cfg.PID, "pid", "0x0204", "USB product ID of the CMSIS-DAP probe")
	fs.IntVar(&cfg.Interface, "iface", 0, "USB interface number claimed for HID reports")
	fs.IntVar(&cfg.Alt, "altsetting", 0, "USB interface alternate setting")
	fs.StringVar(&cfg.EPIn, "ep-in", "0x81", "USB IN endpoint address for HID reports")
	fs.StringVar(&cfg.EPOut, "ep-out", "0x01", "USB OUT endpoint address for HID reports")

	fs.StringVar(&cfg.AP, "ap", "cm0", "Access Port to open: cm0 or cm4")
	fs.UintVar(&cfg.ClockHz, "clock", 1_000_000, "SWJ clock rate in Hz")
	fs.DurationVar(&cfg.AcquireTimeout, "acquire-timeout", 1500*time.Millisecond, "deadline for the Acquire state machine")

	fs.StringVar(&cfg.EraseStart, "erase-start", "", "erase range start address (hex), requires -erase-end")
	fs.StringVar(&cfg.EraseEnd, "erase-end", "", "erase range end address (hex, exclusive)")

	fs.BoolVar(&cfg.Program, "program", false, "program the ingested firmware's ApplicationFlash blocks")
	fs.BoolVar(&cfg.Verify, "verify", false, "verify the ingested firmware's ApplicationFlash blocks after programming")
	fs.BoolVar(&cfg.FastVerify, "fast-verify", false, "with -verify, log each ApplicationFlash block instead of the byte-for-byte verify; no ChecksumRow SROM call is made")
	fs.BoolVar(&cfg.Layout, "layout", false, "print the PSoC6 memory region table and exit")
	fs.BoolVar(&cfg.Info, "info", false, "acquire the target, print silicon info, and exit")
	fs.BoolVar(&cfg.Verbose, "debug", false, "be more verbose (raw report dumps on HID I/O)")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return cfg, nil
}

// parseID parses a "0x"-prefixed or decimal vendor/product ID into a
// gousb.ID.
func parseID(s string) (gousb.ID, error) {
	v, err := strconv.ParseUint(s, 0, 16)
	if err != nil {
		return 0, fmt.Errorf("invalid USB ID %q: %w", s, err)
	}
	return gousb.ID(v), nil
}

// parseEndpoint parses a "0x"-prefixed endpoint address into a
// gousb.EndpointAddress.
func parseEndpoint(s string) (gousb.EndpointAddress, error) {
	v, err := strconv.ParseUint(s, 0, 8)
	if err != nil {
		return 0, fmt.Errorf("invalid endpoint address %q: %w", s, err)
	}
	return gousb.EndpointAddress(v), nil
}

// parseAddr parses a "0x"-prefixed or decimal 32-bit address.
func parseAddr(s string) (uint32, error) {
	v, err := strconv.ParseUint(s, 0, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid address %q: %w", s, err)
	}
	return uint32(v), nil
}
