package services

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"wakeassist/models"

	"go.uber.org/zap"
)

// CommandRouter wires bot commands into the alarm controller. It is the
// single dispatch point for every bound CommandID.
type CommandRouter struct {
	alarm   *AlarmController
	channel *BotChannel
	hw      Hardware
	conn    Connectivity
	logger  *zap.Logger

	bootTime time.Time
	now      func() time.Time
}

func NewCommandRouter(alarm *AlarmController, channel *BotChannel, hw Hardware, conn Connectivity, logger *zap.Logger) *CommandRouter {
	return &CommandRouter{
		alarm:    alarm,
		channel:  channel,
		hw:       hw,
		conn:     conn,
		logger:   logger,
		bootTime: time.Now(),
		now:      time.Now,
	}
}

// RegisterCommands binds the full command set on the channel and
// installs the router as its dispatcher.
func (r *CommandRouter) RegisterCommands() {
	r.channel.Bind("/start", CmdStart)
	r.channel.Bind("/help", CmdHelp)
	r.channel.Bind("/wake", CmdWake)
	r.channel.Bind("/stop", CmdStop)
	r.channel.Bind("/status", CmdStatus)
	r.channel.Bind("/test", CmdTest)
	r.channel.SetDispatcher(r)
}

// HandleCommand implements Dispatcher.
func (r *CommandRouter) HandleCommand(id CommandID, msg models.InboundMessage) {
	r.logger.Info("Handling command",
		zap.Int("command_id", int(id)),
		zap.String("username", msg.Username))

	switch id {
	case CmdStart, CmdHelp:
		r.channel.Send(welcomeText())
	case CmdWake:
		r.handleWake()
	case CmdStop:
		r.handleStop()
	case CmdStatus:
		r.channel.Send(r.statusReport())
	case CmdTest:
		r.handleTest()
	default:
		r.logger.Warn("Unbound command id", zap.Int("command_id", int(id)))
	}
}

func welcomeText() string {
	return "🔔 WakeAssist Remote Alarm\n\n" +
		"Available commands:\n" +
		"/wake - Start alarm sequence\n" +
		"/stop - Stop active alarm\n" +
		"/test - Test buzzer hardware\n" +
		"/status - Show device status\n" +
		"/help - Show this message"
}

func (r *CommandRouter) handleWake() {
	if r.channel.WakeRateLimited() {
		r.channel.Send(fmt.Sprintf("⏰ Please wait %d more seconds before next /wake",
			r.channel.WakeCooldownRemaining()))
		return
	}

	if r.alarm.IsActive() {
		r.channel.Send("⚠️ Alarm already active!")
		return
	}

	if err := r.alarm.Start(); err != nil {
		r.logger.Error("Failed to start alarm", zap.Error(err))
		r.channel.Send("❌ Failed to start alarm")
		return
	}

	// Cooldown restarts only on acceptance.
	r.channel.ResetWakeCooldown()
}

func (r *CommandRouter) handleStop() {
	if !r.alarm.IsActive() {
		r.channel.Send("ℹ️ No active alarm to stop")
		return
	}

	// The controller sends the stop notification with duration and cause.
	if err := r.alarm.Stop(models.StopRemoteCommand); err != nil && !errors.Is(err, ErrAlarmNotActive) {
		r.logger.Error("Failed to stop alarm", zap.Error(err))
		r.channel.Send("❌ Failed to stop alarm")
	}
}

func (r *CommandRouter) handleTest() {
	if r.alarm.IsActive() {
		r.channel.Send("⚠️ Cannot test while alarm is active")
		return
	}

	if err := r.alarm.TestAlarm(); err != nil {
		r.logger.Error("Buzzer diagnostic failed to start", zap.Error(err))
		r.channel.Send("❌ Failed to run buzzer test")
	}
}

// statusReport composes the /status reply: uptime, link, channel,
// alarm state, hardware continuity, and last session statistics.
func (r *CommandRouter) statusReport() string {
	var sb strings.Builder

	sb.WriteString("📊 Device Status\n\n")

	uptime := r.now().Sub(r.bootTime)
	sb.WriteString(fmt.Sprintf("⏱ Uptime: %dh %dm\n",
		int(uptime.Hours()), int(uptime.Minutes())%60))

	if r.conn.IsLinkUp() {
		sb.WriteString("📡 Link: Up\n")
	} else {
		sb.WriteString("📡 Link: Down\n")
	}

	if r.channel.IsOnline() {
		sb.WriteString("💬 Telegram: Online\n")
	} else {
		sb.WriteString("💬 Telegram: Offline\n")
	}

	sb.WriteString("🔔 Alarm: " + r.alarm.StateString() + "\n")

	report := r.hw.CheckContinuity()
	sb.WriteString("🔧 Hardware:\n")
	sb.WriteString("   Small Buzzer: " + okOrIssue(report.SmallOK) + "\n")
	sb.WriteString("   Large Buzzer: " + okOrIssue(report.LargeOK) + "\n")

	if stats, ok := r.alarm.Statistics(); ok {
		sb.WriteString(fmt.Sprintf("\n🗒 Last session: %ds, %s, reached %s",
			stats.DurationSecs, stats.StopCause.Label(), stats.HighestStage))
	}

	return sb.String()
}

func okOrIssue(ok bool) string {
	if ok {
		return "OK"
	}
	return "Issue"
}
