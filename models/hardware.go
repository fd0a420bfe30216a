package models

// BuzzerChannel selects which buzzer circuit an output command targets.
type BuzzerChannel int

const (
	BuzzerSmall BuzzerChannel = iota // low intensity, WARNING/ALERT stages
	BuzzerLarge                      // high intensity, EMERGENCY stage
)

func (c BuzzerChannel) String() string {
	switch c {
	case BuzzerSmall:
		return "small"
	case BuzzerLarge:
		return "large"
	default:
		return "unknown"
	}
}

// ContinuityReport is the result of the drive-then-read-back buzzer
// circuit check. It distinguishes gross wiring failure from normal
// operation; it does not confirm acoustic output.
type ContinuityReport struct {
	SmallOK bool `json:"small_ok"`
	LargeOK bool `json:"large_ok"`
}

// OK reports whether both buzzer circuits passed the last check.
func (r ContinuityReport) OK() bool {
	return r.SmallOK && r.LargeOK
}

// ButtonEvent is one debounced physical button press reported by the
// hardware MCU.
type ButtonEvent int

const (
	ButtonNone ButtonEvent = iota
	ButtonSilence
	ButtonTest
)

func (b ButtonEvent) String() string {
	switch b {
	case ButtonSilence:
		return "silence"
	case ButtonTest:
		return "test"
	default:
		return "none"
	}
}
