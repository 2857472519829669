package psoc6

// ProtectionName renders a protection_state byte as spec.md §4.H names it.
func ProtectionName(state byte) string {
	switch state {
	case ProtectionVirgin:
		return "VIRGIN"
	case ProtectionNormal:
		return "NORMAL"
	case ProtectionSecure:
		return "SECURE"
	case ProtectionDead:
		return "DEAD"
	default:
		return "UNKNOWN"
	}
}

// RefusesProgramming reports whether state is one the caller should refuse
// to program against; the core itself never enforces this (spec.md §4.H:
// "the core itself does not block the attempt").
func RefusesProgramming(state byte) bool {
	return state == ProtectionSecure || state == ProtectionDead
}
