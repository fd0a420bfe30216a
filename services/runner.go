package services

import (
	"context"
	"time"

	"wakeassist/models"

	"go.uber.org/zap"
)

// Runner drives the single cooperative control task. Each tick runs the
// subsystems in a fixed fair order; every step completes, including any
// outbound send it triggers, before the next begins, so no locking is
// needed around channel or controller state.
type Runner struct {
	alarm   *AlarmController
	channel *BotChannel
	hw      Hardware
	conn    Connectivity
	logger  *zap.Logger
	tick    time.Duration
}

func NewRunner(alarm *AlarmController, channel *BotChannel, hw Hardware, conn Connectivity, tick time.Duration, logger *zap.Logger) *Runner {
	return &Runner{
		alarm:   alarm,
		channel: channel,
		hw:      hw,
		conn:    conn,
		logger:  logger,
		tick:    tick,
	}
}

// Run executes the loop until the context is cancelled.
func (r *Runner) Run(ctx context.Context) {
	ticker := time.NewTicker(r.tick)
	defer ticker.Stop()

	r.logger.Info("Control loop started", zap.Duration("tick", r.tick))

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("Control loop stopped")
			return
		case <-ticker.C:
			r.Step()
		}
	}
}

// Step runs one fair-order pass: button sampling, controller update,
// channel poll, connectivity maintenance. The poll and connectivity
// steps rate-limit themselves to their own intervals.
func (r *Runner) Step() {
	r.handleButtons()
	r.alarm.Update()
	r.channel.Poll()
	r.conn.Maintain()
}

// handleButtons drains pending physical button presses. The silence
// path is unconditional and works with the channel fully offline.
func (r *Runner) handleButtons() {
	for {
		ev := r.hw.NextButtonEvent()
		if ev == models.ButtonNone {
			return
		}

		switch ev {
		case models.ButtonSilence:
			if r.alarm.IsActive() {
				r.logger.Info("Silence button pressed, stopping alarm")
				_ = r.alarm.Stop(models.StopPhysicalButton)
			}
		case models.ButtonTest:
			if !r.alarm.IsActive() {
				r.logger.Info("Test button pressed, running diagnostic")
				_ = r.alarm.TestAlarm()
			}
		}
	}
}
