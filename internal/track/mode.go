package track

// Mode is the tracking session's lifecycle state.
type Mode string

const (
	ModeOff               Mode = "OFF"
	ModeAcquiringFix      Mode = "ACQUIRING_FIX"
	ModeTracking          Mode = "TRACKING"
	ModeStoppingRequested Mode = "STOPPING_REQUESTED"
)

// String returns the string representation of the Mode.
func (mode Mode) String() string {
	return string(mode)
}

// Valid reports whether mode is one of the allowed mode constants.
func (mode Mode) Valid() bool {
	switch mode {
	case ModeOff, ModeAcquiringFix, ModeTracking, ModeStoppingRequested:
		return true
	default:
		return false
	}
}

// Engaged reports whether a session is holding or establishing a binding.
func (mode Mode) Engaged() bool {
	return mode == ModeAcquiringFix || mode == ModeTracking
}
