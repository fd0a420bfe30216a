package services

import (
	"errors"
	"testing"
	"time"

	"wakeassist/models"

	"go.uber.org/zap"
)

func TestEscalationTimetable(t *testing.T) {
	cfg := testConfig()
	alarm, _, notifier, clock := newTestAlarm(cfg)

	if err := alarm.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if got := alarm.Stage(); got != models.StageTriggered {
		t.Fatalf("stage after start = %v, want triggered", got)
	}
	if !notifier.contains("Starting alarm in 3s") {
		t.Fatalf("missing wake acknowledgement, got %v", notifier.messages)
	}

	clock.Advance(3 * time.Second)
	alarm.Update()
	if got := alarm.Stage(); got != models.StageWarning {
		t.Fatalf("stage at t=3s = %v, want warning", got)
	}

	clock.Advance(30 * time.Second)
	alarm.Update()
	if got := alarm.Stage(); got != models.StageAlert {
		t.Fatalf("stage at t=33s = %v, want alert", got)
	}

	clock.Advance(30 * time.Second)
	alarm.Update()
	if got := alarm.Stage(); got != models.StageEmergency {
		t.Fatalf("stage at t=63s = %v, want emergency", got)
	}
	if !notifier.contains("EMERGENCY") {
		t.Fatalf("missing emergency notification, got %v", notifier.messages)
	}

	// Emergency has no automatic exit; only the safety ceiling ends it.
	clock.Advance(237 * time.Second)
	alarm.Update()
	if alarm.IsActive() {
		t.Fatal("alarm still active past safety timeout")
	}
	if got := alarm.Stage(); got != models.StageIdle {
		t.Fatalf("stage after safety stop = %v, want idle", got)
	}
	if !notifier.contains("auto-stopped after 5 minutes") {
		t.Fatalf("missing safety timeout notification, got %v", notifier.messages)
	}

	stats, ok := alarm.Statistics()
	if !ok {
		t.Fatal("no statistics after completed session")
	}
	if stats.DurationSecs != 300 {
		t.Fatalf("duration = %d, want 300", stats.DurationSecs)
	}
	if stats.StopCause != models.StopSafetyTimeout {
		t.Fatalf("stop cause = %v, want safety timeout", stats.StopCause)
	}
	if stats.HighestStage != models.StageEmergency {
		t.Fatalf("highest stage = %v, want emergency", stats.HighestStage)
	}
}

func TestStartWhileActive(t *testing.T) {
	alarm, _, _, _ := newTestAlarm(testConfig())

	if err := alarm.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := alarm.Start(); !errors.Is(err, ErrAlarmActive) {
		t.Fatalf("second start = %v, want ErrAlarmActive", err)
	}
}

func TestStopWhenIdle(t *testing.T) {
	alarm, _, notifier, _ := newTestAlarm(testConfig())

	if err := alarm.Stop(models.StopRemoteCommand); !errors.Is(err, ErrAlarmNotActive) {
		t.Fatalf("stop while idle = %v, want ErrAlarmNotActive", err)
	}
	if len(notifier.messages) != 0 {
		t.Fatalf("idle stop produced notifications: %v", notifier.messages)
	}
	if _, ok := alarm.Statistics(); ok {
		t.Fatal("idle stop recorded statistics")
	}
}

func TestStopIsIdempotent(t *testing.T) {
	alarm, hw, notifier, clock := newTestAlarm(testConfig())

	if err := alarm.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	clock.Advance(10 * time.Second)

	if err := alarm.Stop(models.StopRemoteCommand); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if hw.levels[models.BuzzerSmall] != 0 || hw.levels[models.BuzzerLarge] != 0 {
		t.Fatal("outputs not silenced on stop")
	}
	if !notifier.contains("Duration: 10s") {
		t.Fatalf("missing stop notification, got %v", notifier.messages)
	}

	sent := len(notifier.messages)
	if err := alarm.Stop(models.StopRemoteCommand); !errors.Is(err, ErrAlarmNotActive) {
		t.Fatalf("second stop = %v, want ErrAlarmNotActive", err)
	}
	if len(notifier.messages) != sent {
		t.Fatalf("second stop sent another notification: %v", notifier.messages)
	}
}

func TestHighestStageTracksPartialRun(t *testing.T) {
	alarm, _, _, clock := newTestAlarm(testConfig())

	if err := alarm.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	clock.Advance(3 * time.Second)
	alarm.Update()

	if err := alarm.Stop(models.StopPhysicalButton); err != nil {
		t.Fatalf("stop: %v", err)
	}

	stats, ok := alarm.Statistics()
	if !ok {
		t.Fatal("no statistics")
	}
	if stats.HighestStage != models.StageWarning {
		t.Fatalf("highest stage = %v, want warning", stats.HighestStage)
	}
	if stats.StopCause != models.StopPhysicalButton {
		t.Fatalf("stop cause = %v, want physical button", stats.StopCause)
	}
}

func TestHardwareFaultForcesStop(t *testing.T) {
	alarm, hw, notifier, clock := newTestAlarm(testConfig())

	if err := alarm.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	clock.Advance(3 * time.Second)
	alarm.Update()
	if alarm.Stage() != models.StageWarning {
		t.Fatalf("stage = %v, want warning", alarm.Stage())
	}

	hw.report = models.ContinuityReport{SmallOK: false, LargeOK: true}
	clock.Advance(10 * time.Second)
	alarm.Update()

	if alarm.IsActive() {
		t.Fatal("alarm still active after hardware fault")
	}
	if !notifier.contains("Small buzzer circuit issue") {
		t.Fatalf("missing fault notification, got %v", notifier.messages)
	}

	stats, ok := alarm.Statistics()
	if !ok {
		t.Fatal("no statistics")
	}
	if stats.StopCause != models.StopHardwareFault {
		t.Fatalf("stop cause = %v, want hardware fault", stats.StopCause)
	}
	if !stats.HardwareFault {
		t.Fatal("hardware fault flag not set")
	}
	if alarm.LastHardwareError() == "" {
		t.Fatal("hardware error description missing")
	}
}

func TestWarningPulsesSmallBuzzer(t *testing.T) {
	alarm, hw, _, clock := newTestAlarm(testConfig())

	if err := alarm.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	clock.Advance(3 * time.Second)
	alarm.Update()

	clock.Advance(100 * time.Millisecond)
	alarm.Update()
	if hw.levels[models.BuzzerSmall] != 255 {
		t.Fatalf("small buzzer at 100ms = %d, want 255", hw.levels[models.BuzzerSmall])
	}

	clock.Advance(500 * time.Millisecond)
	alarm.Update()
	if hw.levels[models.BuzzerSmall] != 0 {
		t.Fatalf("small buzzer at 600ms = %d, want 0", hw.levels[models.BuzzerSmall])
	}
}

func TestEmergencyDrivesLargeBuzzer(t *testing.T) {
	alarm, hw, _, clock := newTestAlarm(testConfig())

	if err := alarm.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	clock.Advance(3 * time.Second)
	alarm.Update()
	clock.Advance(30 * time.Second)
	alarm.Update()
	clock.Advance(30 * time.Second)
	alarm.Update()

	if hw.levels[models.BuzzerLarge] != 255 {
		t.Fatalf("large buzzer in emergency = %d, want 255", hw.levels[models.BuzzerLarge])
	}
}

func TestDiagnosticRefusedWhileActive(t *testing.T) {
	alarm, _, _, _ := newTestAlarm(testConfig())

	if err := alarm.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := alarm.TestAlarm(); !errors.Is(err, ErrAlarmActive) {
		t.Fatalf("diagnostic while active = %v, want ErrAlarmActive", err)
	}
}

func TestDiagnosticSequence(t *testing.T) {
	alarm, hw, notifier, _ := newTestAlarm(testConfig())

	if err := alarm.TestAlarm(); err != nil {
		t.Fatalf("diagnostic: %v", err)
	}

	want := []string{"set small 255", "stop_all", "set large 255", "stop_all"}
	if len(hw.ops) != len(want) {
		t.Fatalf("hardware ops = %v, want %v", hw.ops, want)
	}
	for i, op := range want {
		if hw.ops[i] != op {
			t.Fatalf("hardware ops = %v, want %v", hw.ops, want)
		}
	}

	if !notifier.contains("Test complete") {
		t.Fatalf("missing completion message, got %v", notifier.messages)
	}
	if alarm.IsActive() {
		t.Fatal("diagnostic left alarm active")
	}
	if _, ok := alarm.Statistics(); ok {
		t.Fatal("diagnostic recorded session statistics")
	}
}

func TestEventSinkReceivesLifecycle(t *testing.T) {
	cfg := testConfig()
	alarm, _, _, clock := newTestAlarm(cfg)
	sink := &fakeSink{}
	alarm.SetEventSink(sink)

	if err := alarm.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	clock.Advance(3 * time.Second)
	alarm.Update()
	if err := alarm.Stop(models.StopRemoteCommand); err != nil {
		t.Fatalf("stop: %v", err)
	}

	if len(sink.stages) != 2 || sink.stages[0] != models.StageTriggered || sink.stages[1] != models.StageWarning {
		t.Fatalf("stage events = %v, want [triggered warning]", sink.stages)
	}
	if len(sink.sessions) != 1 {
		t.Fatalf("session events = %d, want 1", len(sink.sessions))
	}
	if sink.sessions[0].StopCause != models.StopRemoteCommand {
		t.Fatalf("session stop cause = %v, want remote command", sink.sessions[0].StopCause)
	}
}

func TestStateStringIncludesRemaining(t *testing.T) {
	alarm, _, _, clock := newTestAlarm(testConfig())

	if got := alarm.StateString(); got != "Idle" {
		t.Fatalf("idle state string = %q", got)
	}

	if err := alarm.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	clock.Advance(3 * time.Second)
	alarm.Update()
	clock.Advance(10 * time.Second)

	if got := alarm.StateString(); got != "WARNING (20s remaining)" {
		t.Fatalf("warning state string = %q", got)
	}
}

func TestControllerWithoutNotifier(t *testing.T) {
	cfg := testConfig()
	clock := newFakeClock()
	hw := newFakeHardware()
	alarm := NewAlarmController(cfg, hw, nil, zap.NewNop())
	alarm.now = clock.Now
	alarm.sleep = func(time.Duration) {}

	if err := alarm.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := alarm.Stop(models.StopRemoteCommand); err != nil {
		t.Fatalf("stop: %v", err)
	}
}
