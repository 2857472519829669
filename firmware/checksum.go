package firmware

import (
	"fmt"

	"zappem.net/pub/debug/xcrc32"
)

// ChecksumMismatchError reports that the firmware's embedded Checksum
// region doesn't match the CRC32 recomputed over ApplicationFlash.
type ChecksumMismatchError struct {
	Want, Got uint32
}

func (e *ChecksumMismatchError) Error() string {
	return fmt.Sprintf("checksum mismatch: region holds 0x%08x, recomputed 0x%08x", e.Want, e.Got)
}

// VerifyChecksumRegion recomputes a composable CRC32 over every
// ApplicationFlash block (in Order) and compares it against the first four
// bytes of the record's Checksum region, generalizing qftool's
// validate(name) section-CRC check (tinkerator-qftool/qftool.go) from a
// bespoke metadata sector to the real PSoC6 Checksum region (spec.md §6).
// Returns nil if there is no Checksum region to check against.
func (r *Record) VerifyChecksumRegion() error {
	if r.Checksum == nil || len(r.Checksum.Bytes) < 4 {
		return nil
	}
	var all []byte
	for _, s := range r.ApplicationFlash {
		all = append(all, s.Bytes...)
	}
	_, got := xcrc32.NewCRC32(all)
	want := uint32(r.Checksum.Bytes[0]) | uint32(r.Checksum.Bytes[1])<<8 |
		uint32(r.Checksum.Bytes[2])<<16 | uint32(r.Checksum.Bytes[3])<<24
	if want != got {
		return &ChecksumMismatchError{Want: want, Got: got}
	}
	return nil
}
