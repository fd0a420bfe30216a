package models

import (
	"time"
)

// AlarmStage represents the current position in the escalation sequence.
type AlarmStage int

const (
	StageIdle             AlarmStage = iota // no alarm active
	StageTriggered                          // alarm accepted, short delay before output starts
	StageWarning                            // stage 1: small buzzer pulsing
	StageAlert                              // stage 2: small buzzer continuous
	StageEmergency                          // stage 3: large buzzer, runs until stopped
	StageStoppedByUser                      // stopped via command or silence button
	StageStoppedByTimeout                   // stopped by the safety timeout
	StageStoppedByError                     // stopped because hardware failed
)

// Active reports whether the stage counts as a running alarm session.
func (s AlarmStage) Active() bool {
	switch s {
	case StageIdle, StageStoppedByUser, StageStoppedByTimeout, StageStoppedByError:
		return false
	}
	return true
}

func (s AlarmStage) String() string {
	switch s {
	case StageIdle:
		return "idle"
	case StageTriggered:
		return "triggered"
	case StageWarning:
		return "warning"
	case StageAlert:
		return "alert"
	case StageEmergency:
		return "emergency"
	case StageStoppedByUser:
		return "stopped_by_user"
	case StageStoppedByTimeout:
		return "stopped_by_timeout"
	case StageStoppedByError:
		return "stopped_by_error"
	default:
		return "unknown"
	}
}

// StopCause records how an alarm session ended. It is written once when
// the session is finalized and never mutated afterwards.
type StopCause int

const (
	StopNone StopCause = iota
	StopRemoteCommand
	StopPhysicalButton
	StopSafetyTimeout
	StopHardwareFault
	StopRanToCompletion
)

func (c StopCause) String() string {
	switch c {
	case StopNone:
		return "none"
	case StopRemoteCommand:
		return "remote_command"
	case StopPhysicalButton:
		return "physical_button"
	case StopSafetyTimeout:
		return "safety_timeout"
	case StopHardwareFault:
		return "hardware_fault"
	case StopRanToCompletion:
		return "ran_to_completion"
	default:
		return "unknown"
	}
}

// Label returns the operator-facing name used in chat notifications.
func (c StopCause) Label() string {
	switch c {
	case StopRemoteCommand:
		return "Telegram"
	case StopPhysicalButton:
		return "Button"
	case StopSafetyTimeout:
		return "Safety timeout"
	case StopHardwareFault:
		return "Hardware fault"
	case StopRanToCompletion:
		return "Completed"
	default:
		return "Unknown"
	}
}

// AlarmSession is the live record of one alarm run. The controller owns
// exactly one live instance; it is reset to idle when the session ends.
type AlarmSession struct {
	StartedAt      time.Time
	StageEnteredAt time.Time
	Stage          AlarmStage
	HighestStage   AlarmStage
	StopCause      StopCause
	HardwareFault  bool
}

// AlarmStatistics is the finalized snapshot of the last completed
// session, retained until the next session overwrites it.
type AlarmStatistics struct {
	StartedAt     time.Time  `json:"started_at"`
	StoppedAt     time.Time  `json:"stopped_at"`
	DurationSecs  int64      `json:"duration_secs"`
	StopCause     StopCause  `json:"stop_cause"`
	HighestStage  AlarmStage `json:"highest_stage"`
	HardwareFault bool       `json:"hardware_fault"`
}
