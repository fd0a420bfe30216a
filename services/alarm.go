package services

import (
	"errors"
	"fmt"
	"time"

	"wakeassist/config"
	"wakeassist/models"

	"go.uber.org/zap"
)

var (
	ErrAlarmActive    = errors.New("alarm already active")
	ErrAlarmNotActive = errors.New("alarm not active")
)

// Notifier delivers best-effort operator notifications. Delivery
// failure must never propagate back into the controller.
type Notifier interface {
	Notify(text string)
}

// EventSink receives controller lifecycle events for off-device audit.
// Optional; implementations must not block.
type EventSink interface {
	StageChanged(stage models.AlarmStage)
	SessionFinished(stats models.AlarmStatistics)
}

const (
	buzzerOn  uint8 = 255
	buzzerOff uint8 = 0

	warningPulsePeriod = 500 * time.Millisecond

	testSmallDuration = 1 * time.Second
	testLargeDuration = 500 * time.Millisecond
)

// Operator-facing notification templates.
const (
	msgWakeReceived     = "✅ Command received. Starting alarm in %ds..."
	msgWarningStarted   = "⏰ WARNING stage started - small buzzer pulsing"
	msgAlertStarted     = "🔔 ALERT stage - small buzzer continuous"
	msgEmergencyStarted = "🚨 EMERGENCY - LARGE BUZZER ACTIVATED!"
	msgAlarmStopped     = "✅ Alarm stopped. Duration: %ds. Source: %s"
	msgAlarmTimeout     = "⏰ Alarm auto-stopped after %d minutes (safety)"
	msgErrSmallBuzzer   = "⚠️ Small buzzer circuit issue - using large buzzer only"
	msgErrLargeBuzzer   = "❌ CRITICAL: Large buzzer not responding! Check device"
	msgErrBothBuzzers   = "❌ CRITICAL: No buzzers responding! Device may not work!"
	msgTestStart        = "🧪 Testing buzzers..."
	msgTestSmall        = "Small buzzer test in 3... 2... 1..."
	msgTestLarge        = "Large buzzer test (LOUD!) in 3... 2... 1..."
	msgTestComplete     = "✅ Test complete! Both buzzers working."
)

// AlarmController drives the one-directional escalation state machine:
// IDLE → TRIGGERED → WARNING → ALERT → EMERGENCY, with a hard safety
// ceiling measured from session start and fail-safe stop on hardware
// loss. At most one session runs at a time.
type AlarmController struct {
	hw       Hardware
	notifier Notifier
	events   EventSink
	logger   *zap.Logger
	cfg      *config.Config

	session           models.AlarmSession
	lastStats         models.AlarmStatistics
	haveStats         bool
	lastHealthCheckAt time.Time
	lastHardwareError string

	now   func() time.Time
	sleep func(d time.Duration)
}

func NewAlarmController(cfg *config.Config, hw Hardware, notifier Notifier, logger *zap.Logger) *AlarmController {
	return &AlarmController{
		hw:       hw,
		notifier: notifier,
		logger:   logger,
		cfg:      cfg,
		session:  models.AlarmSession{Stage: models.StageIdle},
		now:      time.Now,
		sleep:    time.Sleep,
	}
}

// SetEventSink installs an optional lifecycle event sink.
func (a *AlarmController) SetEventSink(sink EventSink) {
	a.events = sink
}

// Start begins a new alarm session. Fails with ErrAlarmActive if a
// session is already running.
func (a *AlarmController) Start() error {
	if a.IsActive() {
		a.logger.Warn("Cannot start alarm, already active",
			zap.Stringer("stage", a.session.Stage))
		return ErrAlarmActive
	}

	now := a.now()
	a.session = models.AlarmSession{
		StartedAt:      now,
		StageEnteredAt: now,
		Stage:          models.StageIdle,
	}
	a.lastHealthCheckAt = now
	a.lastHardwareError = ""

	a.transitionTo(models.StageTriggered)
	a.notify(fmt.Sprintf(msgWakeReceived, int(a.cfg.TriggeredDelay.Seconds())))

	a.logger.Info("Alarm session started")
	return nil
}

// Stop ends the running session, silences all outputs, finalizes the
// statistics snapshot and emits exactly one notification. Fails with
// ErrAlarmNotActive when no session is running, in which case nothing
// is notified or recorded.
func (a *AlarmController) Stop(cause models.StopCause) error {
	if !a.IsActive() {
		return ErrAlarmNotActive
	}

	a.hw.StopAllOutputs()

	now := a.now()
	stats := models.AlarmStatistics{
		StartedAt:     a.session.StartedAt,
		StoppedAt:     now,
		DurationSecs:  int64(now.Sub(a.session.StartedAt) / time.Second),
		StopCause:     cause,
		HighestStage:  a.session.HighestStage,
		HardwareFault: cause == models.StopHardwareFault,
	}
	a.lastStats = stats
	a.haveStats = true

	switch cause {
	case models.StopSafetyTimeout:
		a.transitionTo(models.StageStoppedByTimeout)
		a.notify(fmt.Sprintf(msgAlarmTimeout, int(a.cfg.SafetyTimeout.Minutes())))
	case models.StopHardwareFault:
		// The failed health check already sent the specific fault message.
		a.transitionTo(models.StageStoppedByError)
	default:
		a.transitionTo(models.StageStoppedByUser)
		a.notify(fmt.Sprintf(msgAlarmStopped, stats.DurationSecs, cause.Label()))
	}

	a.logger.Info("Alarm session stopped",
		zap.Stringer("cause", cause),
		zap.Int64("duration_secs", stats.DurationSecs),
		zap.Stringer("highest_stage", stats.HighestStage))

	if a.events != nil {
		a.events.SessionFinished(stats)
	}

	// Terminal states reset to idle immediately.
	a.transitionTo(models.StageIdle)
	a.session = models.AlarmSession{Stage: models.StageIdle}

	return nil
}

// IsActive reports whether a session is running. True for every stage
// except Idle and the Stopped* variants.
func (a *AlarmController) IsActive() bool {
	return a.session.Stage.Active()
}

// Stage returns the current escalation stage.
func (a *AlarmController) Stage() models.AlarmStage {
	return a.session.Stage
}

// Update advances the state machine one step. Must be invoked on a
// short fixed cadence by the cooperative loop.
func (a *AlarmController) Update() {
	if !a.IsActive() {
		return
	}

	now := a.now()

	// The safety ceiling counts from session start, not from the
	// EMERGENCY entry, so it is an equal-or-earlier cutoff.
	if now.Sub(a.session.StartedAt) >= a.cfg.SafetyTimeout {
		a.logger.Warn("Safety timeout reached, forcing stop")
		_ = a.Stop(models.StopSafetyTimeout)
		return
	}

	if d, bounded := a.stageDuration(a.session.Stage); bounded {
		if now.Sub(a.session.StageEnteredAt) >= d {
			a.transitionTo(a.session.Stage + 1)
		}
	}

	a.driveOutput()

	if now.Sub(a.lastHealthCheckAt) >= a.cfg.HealthCheckInterval {
		a.lastHealthCheckAt = now
		if !a.checkHardwareHealth() {
			a.logger.Error("Hardware health check failed",
				zap.String("error", a.lastHardwareError))
			_ = a.Stop(models.StopHardwareFault)
		}
	}
}

// TestAlarm runs the side-channel diagnostic: small buzzer briefly,
// then large, then silence. Refused while a session is active; never
// touches the state machine or statistics.
func (a *AlarmController) TestAlarm() error {
	if a.IsActive() {
		return ErrAlarmActive
	}

	a.logger.Info("Running buzzer diagnostic")

	a.notify(msgTestStart)
	a.sleep(time.Second)

	a.notify(msgTestSmall)
	a.sleep(3 * time.Second)
	a.hw.SetOutput(models.BuzzerSmall, buzzerOn)
	a.sleep(testSmallDuration)
	a.hw.StopAllOutputs()
	a.sleep(2 * time.Second)

	a.notify(msgTestLarge)
	a.sleep(3 * time.Second)
	a.hw.SetOutput(models.BuzzerLarge, buzzerOn)
	a.sleep(testLargeDuration)
	a.hw.StopAllOutputs()

	a.notify(msgTestComplete)

	a.logger.Info("Buzzer diagnostic complete")
	return nil
}

// StateString returns an operator-readable description of the current
// stage, including seconds remaining where the stage is time-bounded.
func (a *AlarmController) StateString() string {
	switch a.session.Stage {
	case models.StageIdle:
		return "Idle"
	case models.StageTriggered:
		return fmt.Sprintf("Triggered (starting in %ds)", a.remainingInStage())
	case models.StageWarning:
		return fmt.Sprintf("WARNING (%ds remaining)", a.remainingInStage())
	case models.StageAlert:
		return fmt.Sprintf("ALERT (%ds remaining)", a.remainingInStage())
	case models.StageEmergency:
		return "EMERGENCY (stop to silence)"
	case models.StageStoppedByUser:
		return "Stopped by user"
	case models.StageStoppedByTimeout:
		return "Stopped by timeout"
	case models.StageStoppedByError:
		return "Stopped due to error"
	default:
		return "Unknown"
	}
}

// Statistics returns the snapshot of the last completed session.
func (a *AlarmController) Statistics() (models.AlarmStatistics, bool) {
	return a.lastStats, a.haveStats
}

// LastHardwareError returns the description of the last hardware fault,
// empty if none occurred.
func (a *AlarmController) LastHardwareError() string {
	return a.lastHardwareError
}

func (a *AlarmController) transitionTo(stage models.AlarmStage) {
	if stage == a.session.Stage {
		return
	}

	a.logger.Info("Alarm stage transition",
		zap.Stringer("from", a.session.Stage),
		zap.Stringer("to", stage))

	a.session.Stage = stage
	a.session.StageEnteredAt = a.now()
	if stage.Active() && stage > a.session.HighestStage {
		a.session.HighestStage = stage
	}

	switch stage {
	case models.StageIdle:
		a.hw.StopAllOutputs()
	case models.StageWarning:
		a.notify(msgWarningStarted)
	case models.StageAlert:
		a.notify(msgAlertStarted)
	case models.StageEmergency:
		a.notify(msgEmergencyStarted)
	}

	if a.events != nil && stage.Active() {
		a.events.StageChanged(stage)
	}
}

// stageDuration returns the automatic-escalation bound for a stage.
// EMERGENCY has none; it ends only via stop or the safety timeout.
func (a *AlarmController) stageDuration(stage models.AlarmStage) (time.Duration, bool) {
	switch stage {
	case models.StageTriggered:
		return a.cfg.TriggeredDelay, true
	case models.StageWarning:
		return a.cfg.WarningDuration, true
	case models.StageAlert:
		return a.cfg.AlertDuration, true
	default:
		return 0, false
	}
}

func (a *AlarmController) remainingInStage() int64 {
	d, bounded := a.stageDuration(a.session.Stage)
	if !bounded {
		return 0
	}
	elapsed := a.now().Sub(a.session.StageEnteredAt)
	if elapsed >= d {
		return 0
	}
	return int64((d - elapsed) / time.Second)
}

func (a *AlarmController) driveOutput() {
	switch a.session.Stage {
	case models.StageWarning:
		// 500ms on / 500ms off pulse, phase-locked to stage entry.
		elapsed := a.now().Sub(a.session.StageEnteredAt)
		if (elapsed/warningPulsePeriod)%2 == 0 {
			a.hw.SetOutput(models.BuzzerSmall, buzzerOn)
		} else {
			a.hw.SetOutput(models.BuzzerSmall, buzzerOff)
		}
	case models.StageAlert:
		a.hw.SetOutput(models.BuzzerSmall, buzzerOn)
	case models.StageEmergency:
		a.hw.SetOutput(models.BuzzerLarge, buzzerOn)
	}
}

// checkHardwareHealth verifies the buzzer circuit relevant to the
// current stage. A failure report is notified here; the caller forces
// the fail-safe stop.
func (a *AlarmController) checkHardwareHealth() bool {
	report := a.hw.CheckContinuity()

	if !report.SmallOK && !report.LargeOK {
		a.lastHardwareError = "both buzzer circuits failed"
		a.session.HardwareFault = true
		a.notify(msgErrBothBuzzers)
		return false
	}

	switch a.session.Stage {
	case models.StageWarning, models.StageAlert:
		if !report.SmallOK {
			a.lastHardwareError = "small buzzer circuit failure"
			a.session.HardwareFault = true
			a.notify(msgErrSmallBuzzer)
			return false
		}
	case models.StageEmergency:
		if !report.LargeOK {
			a.lastHardwareError = "large buzzer circuit failure"
			a.session.HardwareFault = true
			a.notify(msgErrLargeBuzzer)
			return false
		}
	}

	return true
}

func (a *AlarmController) notify(text string) {
	if a.notifier == nil {
		return
	}
	a.notifier.Notify(text)
}
