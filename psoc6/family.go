package psoc6

// DeviceFamily carries the address constants that differ across PSoC6
// variants but not the algorithms that use them (spec.md §4.H: "the
// host prepares an SROM parameter block in SRAM at the family-specific
// srom_params_addr").
type DeviceFamily struct {
	Name string

	// SRAM scratch addresses used for SROM calls.
	SromParamsAddr uint32
	SromDataAddr   uint32

	// CPUSS_SYSREQ: writing the address of the parameter block here
	// raises the SROM call software interrupt.
	SromTriggerAddr uint32
	// Result word location the host polls after triggering.
	SromResultAddr uint32

	// TEST_MODE_REGISTER, polled until bit31 reads back set during
	// Acquire step 6.
	TestModeAddr uint32

	// EraseSector granularity in bytes.
	SectorSize uint32

	FlashBase uint32
}

// PSoC6A2D is the default family table entry for the PSoC6A2D device line,
// the addresses spec.md's worked examples (§8 E5/E6) assume.
var PSoC6A2D = DeviceFamily{
	Name:            "PSoC6A2D",
	SromParamsAddr:  0x08000000,
	SromDataAddr:    0x08000100,
	SromTriggerAddr: 0x40210080,
	SromResultAddr:  0x08000000,
	TestModeAddr:    0x40260100,
	SectorSize:      256 * 1024,
	FlashBase:       0x10000000,
}

// AP index selectors for AP select (spec.md §4.H step 5: "open the
// requested AP (AP_CM0 or AP_CM4)").
const (
	APCm0 byte = 0x00
	APCm4 byte = 0x01
)

// expectedAHBAPClass is the IDR class field value every PSoC6 AHB-AP
// reports, used by Acquire to confirm it opened the right AP.
const expectedAHBAPClass = 0x8

func isAHBAP(idr uint32) bool {
	return (idr>>13)&0xF == expectedAHBAPClass
}
