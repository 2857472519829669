// Package hidusb implements the USB-HID transport for a CMSIS-DAP v1 probe:
// 64-byte report framing and synchronous request/response (spec.md §4.E).
// It plays the external-collaborator role spec.md §1 calls out
// (scan()/open(device)/write(bytes)/read()→bytes), backed concretely by
// github.com/google/gousb — the USB library
// OpenTraceLab/OpenTraceJTAG's CMSIS-DAP-adjacent pkg/jtag adapter uses for
// the same concern.
package hidusb

import (
	"fmt"
	"time"

	"github.com/google/gousb"
)

// ReportSize is the CMSIS-DAP v1 HID report size in bytes.
const ReportSize = 64

// DefaultTimeout is the blocking-read timeout when none is configured
// (spec.md §4.E, §5).
const DefaultTimeout = 1 * time.Second

// HidError tags a transport failure per spec.md §7.
type HidError struct {
	Tag string // NotFound | IoError | Timeout
	Msg string
}

func (e *HidError) Error() string {
	return fmt.Sprintf("hid: %s: %s", e.Tag, e.Msg)
}

// ProbeInfo identifies a discovered CMSIS-DAP probe.
type ProbeInfo struct {
	VendorID  gousb.ID
	ProductID gousb.ID
	Serial    string
	Path      string
}

// Device is the minimal collaborator interface the rest of this module
// consumes: scan()/open(device)/write(bytes)/read()→bytes (spec.md §1).
// A *Probe satisfies it; tests substitute an in-memory fake.
type Device interface {
	Send(report []byte) error
	Recv(timeout time.Duration) ([]byte, error)
	Close() error
}

// reportID is the platform-specific HID report-ID byte some OSes require
// prepended to every report; PSoC6 probes commonly use report ID 0.
const reportID = 0x00

// Probe is a HID-report Device backed by a claimed USB interface.
type Probe struct {
	ctx    *gousb.Context
	dev    *gousb.Device
	iface  *gousb.Interface
	in     *gousb.InEndpoint
	out    *gousb.OutEndpoint
	closer func()
}

// Scan enumerates CMSIS-DAP-class USB-HID devices visible to the host.
// Actual device classification (matching the CMSIS-DAP HID usage page) is
// the USB-HID enumeration library's job, explicitly out of scope per
// spec.md §1; Scan here returns whatever the caller's vid/pid filter
// selects.
func Scan(ctx *gousb.Context, vid, pid gousb.ID) ([]ProbeInfo, error) {
	var out []ProbeInfo
	devs, err := ctx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		return desc.Vendor == vid && desc.Product == pid
	})
	if err != nil {
		return nil, &HidError{"IoError", err.Error()}
	}
	for _, d := range devs {
		serial, _ := d.SerialNumber()
		out = append(out, ProbeInfo{VendorID: vid, ProductID: pid, Serial: serial})
		d.Close()
	}
	if len(out) == 0 {
		return nil, &HidError{"NotFound", "no matching CMSIS-DAP probe"}
	}
	return out, nil
}

// Open claims the HID interface of the probe described by info and returns
// a ready-to-use Probe. ifaceNum/altNum/epIn/epOut are the CMSIS-DAP
// firmware's USB descriptor values; probes vary, so the caller supplies
// them (commonly 0/0/0x81/0x01).
func Open(ctx *gousb.Context, vid, pid gousb.ID, ifaceNum, altNum int, epIn, epOut gousb.EndpointAddress) (*Probe, error) {
	dev, err := ctx.OpenDeviceWithVIDPID(vid, pid)
	if err != nil || dev == nil {
		if err == nil {
			err = fmt.Errorf("device not found")
		}
		return nil, &HidError{"NotFound", err.Error()}
	}

	if err := dev.SetAutoDetach(true); err != nil {
		dev.Close()
		return nil, &HidError{"IoError", err.Error()}
	}

	cfgNum, err := dev.ActiveConfigNum()
	var cfg *gousb.Config
	if err == nil {
		cfg, err = dev.Config(cfgNum)
	}
	if err != nil {
		dev.Close()
		return nil, &HidError{"IoError", err.Error()}
	}
	iface, err := cfg.Interface(ifaceNum, altNum)
	if err != nil {
		cfg.Close()
		dev.Close()
		return nil, &HidError{"IoError", err.Error()}
	}
	done := func() {
		iface.Close()
		cfg.Close()
	}

	in, err := iface.InEndpoint(int(epIn))
	if err != nil {
		done()
		dev.Close()
		return nil, &HidError{"IoError", err.Error()}
	}
	out, err := iface.OutEndpoint(int(epOut))
	if err != nil {
		done()
		dev.Close()
		return nil, &HidError{"IoError", err.Error()}
	}

	return &Probe{
		ctx:   ctx,
		dev:   dev,
		iface: iface,
		in:    in,
		out:   out,
		closer: func() {
			done()
			dev.Close()
		},
	}, nil
}

// Send pads report to ReportSize, prepends the platform's report-ID byte,
// and writes it to the probe (spec.md §4.E).
func (p *Probe) Send(report []byte) error {
	buf := make([]byte, ReportSize+1)
	buf[0] = reportID
	n := copy(buf[1:], report)
	_ = n
	if _, err := p.out.Write(buf); err != nil {
		return &HidError{"IoError", err.Error()}
	}
	return nil
}

// Recv blocks for a single ReportSize response, subject to timeout.
func (p *Probe) Recv(timeout time.Duration) ([]byte, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	buf := make([]byte, ReportSize)
	stream, err := p.in.NewStream(ReportSize, 1)
	if err != nil {
		return nil, &HidError{"IoError", err.Error()}
	}
	defer stream.Close()

	type result struct {
		n   int
		err error
	}
	ch := make(chan result, 1)
	go func() {
		n, err := stream.Read(buf)
		ch <- result{n, err}
	}()

	select {
	case r := <-ch:
		if r.err != nil {
			return nil, &HidError{"IoError", r.err.Error()}
		}
		return buf[:r.n], nil
	case <-time.After(timeout):
		return nil, &HidError{"Timeout", "no response within deadline"}
	}
}

// Close releases the claimed interface and device handle.
func (p *Probe) Close() error {
	if p.closer != nil {
		p.closer()
	}
	return nil
}
