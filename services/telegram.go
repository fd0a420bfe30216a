package services

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
	"unicode"

	"wakeassist/config"
	"wakeassist/models"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// ChannelStatus is the observed health of the bot channel. It changes
// only on observed transport outcomes, never optimistically.
type ChannelStatus int

const (
	ChannelUnconfigured ChannelStatus = iota
	ChannelOnline
	ChannelOffline
)

func (s ChannelStatus) String() string {
	switch s {
	case ChannelUnconfigured:
		return "unconfigured"
	case ChannelOnline:
		return "online"
	case ChannelOffline:
		return "offline"
	default:
		return "unknown"
	}
}

// CommandID tags a bound command handler. Commands are registered once
// at startup and resolved through a single dispatch function.
type CommandID int

const (
	CmdNone CommandID = iota
	CmdStart
	CmdHelp
	CmdWake
	CmdStop
	CmdStatus
	CmdTest
)

// Dispatcher resolves a bound command against the rest of the system.
type Dispatcher interface {
	HandleCommand(id CommandID, msg models.InboundMessage)
}

const msgUnauthorized = "⛔ Unauthorized. This device is registered to another user."

// BotChannel maintains a store-and-forward command/notification channel
// on top of long-polling HTTP. It owns the update cursor, inbound
// authorization, the pending message queue, command dispatch, outbound
// delivery, and the /wake cooldown.
type BotChannel struct {
	transport Transport
	logger    *zap.Logger

	configured bool
	chatID     int64

	linkUp func() bool

	pollInterval    time.Duration
	longPollSeconds int
	updateLimit     int
	lastPollAt      time.Time

	lastUpdateID int

	queue    []models.InboundMessage
	queueCap int

	bindings   map[string]CommandID
	dispatcher Dispatcher

	wakeCooldown time.Duration
	lastWakeAt   time.Time

	status         ChannelStatus
	onOnline       func()
	onOffline      func()
	onUnauthorized func(chatID int64, username string)

	now func() time.Time
}

func NewBotChannel(cfg *config.Config, logger *zap.Logger) *BotChannel {
	return &BotChannel{
		logger:          logger,
		pollInterval:    cfg.PollInterval,
		longPollSeconds: cfg.LongPollSeconds,
		updateLimit:     cfg.UpdateLimit,
		queueCap:        cfg.QueueSize,
		wakeCooldown:    cfg.WakeCooldown,
		bindings:        make(map[string]CommandID),
		status:          ChannelUnconfigured,
		now:             time.Now,
	}
}

// Configure attaches the transport and authorized chat. Until this is
// called the channel stays dormant: polls and sends are no-ops.
func (c *BotChannel) Configure(transport Transport, chatID int64) {
	c.transport = transport
	c.chatID = chatID
	c.configured = transport != nil && chatID != 0
}

// IsConfigured reports whether credentials and transport are in place.
func (c *BotChannel) IsConfigured() bool {
	return c.configured
}

// SetLinkCheck installs the connectivity provider's link-up probe. When
// the link is down the poll cycle is a no-op.
func (c *BotChannel) SetLinkCheck(linkUp func() bool) {
	c.linkUp = linkUp
}

// Bind registers a command token. Lookup is case-insensitive.
func (c *BotChannel) Bind(token string, id CommandID) {
	c.bindings[strings.ToLower(token)] = id
}

// SetDispatcher installs the command dispatcher.
func (c *BotChannel) SetDispatcher(d Dispatcher) {
	c.dispatcher = d
}

func (c *BotChannel) OnOnline(hook func())                    { c.onOnline = hook }
func (c *BotChannel) OnOffline(hook func())                   { c.onOffline = hook }
func (c *BotChannel) OnUnauthorized(hook func(int64, string)) { c.onUnauthorized = hook }

// Poll runs one poll cycle: at most one getUpdates long-poll request
// for updates strictly after the last processed update id. On transport
// failure or a malformed body the cursor is left untouched so the next
// cycle retries the same range (at-least-once). Returns true if any
// update was received.
func (c *BotChannel) Poll() bool {
	if !c.configured {
		return false
	}

	now := c.now()
	if now.Sub(c.lastPollAt) < c.pollInterval {
		return false
	}
	c.lastPollAt = now

	if c.linkUp != nil && !c.linkUp() {
		return false
	}

	raw, err := c.transport.Request("getUpdates", map[string]string{
		"offset":  strconv.Itoa(c.lastUpdateID + 1),
		"limit":   strconv.Itoa(c.updateLimit),
		"timeout": strconv.Itoa(c.longPollSeconds),
	})
	if err != nil {
		c.logger.Warn("Telegram poll failed", zap.Error(err))
		c.setStatus(ChannelOffline)
		return false
	}

	var updates []tgbotapi.Update
	if err := json.Unmarshal(raw, &updates); err != nil {
		c.logger.Warn("Malformed getUpdates response", zap.Error(err))
		c.setStatus(ChannelOffline)
		return false
	}

	c.setStatus(ChannelOnline)

	for _, update := range updates {
		// Advance the cursor unconditionally, even for rejected
		// messages, so a poison update can never stall the channel.
		if update.UpdateID > c.lastUpdateID {
			c.lastUpdateID = update.UpdateID
		}

		if update.Message == nil {
			continue
		}

		msg := inboundFromUpdate(update)

		if msg.ChatID != c.chatID {
			c.logger.Warn("Unauthorized message",
				zap.Int64("chat_id", msg.ChatID),
				zap.String("username", msg.Username))
			if c.onUnauthorized != nil {
				c.onUnauthorized(msg.ChatID, msg.Username)
			}
			c.sendTo(msg.ChatID, msgUnauthorized)
			continue
		}

		c.enqueue(msg)
		c.dispatch(msg)
	}

	return len(updates) > 0
}

func inboundFromUpdate(update tgbotapi.Update) models.InboundMessage {
	m := update.Message
	msg := models.InboundMessage{
		ChatID:    m.Chat.ID,
		MessageID: m.MessageID,
		UpdateID:  update.UpdateID,
		Text:      m.Text,
		SentAt:    time.Unix(int64(m.Date), 0),
		Username:  "unknown",
	}
	if m.From != nil && m.From.UserName != "" {
		msg.Username = m.From.UserName
	}
	return msg
}

// MarkAllRead snaps the update cursor past everything currently queued
// server-side, so stale commands sent before boot are never replayed.
func (c *BotChannel) MarkAllRead() {
	if !c.configured {
		return
	}

	raw, err := c.transport.Request("getUpdates", map[string]string{
		"offset": "-1",
		"limit":  "1",
	})
	if err != nil {
		c.logger.Warn("MarkAllRead failed", zap.Error(err))
		return
	}

	var updates []tgbotapi.Update
	if err := json.Unmarshal(raw, &updates); err != nil {
		return
	}
	if len(updates) > 0 {
		c.lastUpdateID = updates[len(updates)-1].UpdateID
		c.logger.Info("Skipped stale updates", zap.Int("last_update_id", c.lastUpdateID))
	}
}

// Send delivers a message to the authorized operator. Best-effort:
// failure is logged, never retried or queued.
func (c *BotChannel) Send(text string) {
	c.sendTo(c.chatID, text)
}

// Notify implements the controller's Notifier contract.
func (c *BotChannel) Notify(text string) {
	c.Send(text)
}

func (c *BotChannel) sendTo(chatID int64, text string) {
	if !c.configured {
		return
	}

	_, err := c.transport.Request("sendMessage", map[string]string{
		"chat_id": strconv.FormatInt(chatID, 10),
		"text":    text,
	})
	if err != nil {
		c.logger.Warn("Failed to send message",
			zap.Int64("chat_id", chatID),
			zap.Error(err))
	}
}

// dispatch routes one inbound message. Command tokens are matched
// case-insensitively up to the first whitespace; non-command text is
// ignored without a reply.
func (c *BotChannel) dispatch(msg models.InboundMessage) {
	if !strings.HasPrefix(msg.Text, "/") {
		return
	}

	token := msg.Text
	if i := strings.IndexFunc(token, unicode.IsSpace); i > 0 {
		token = token[:i]
	}

	id, ok := c.bindings[strings.ToLower(token)]
	if !ok {
		c.logger.Info("Unknown command", zap.String("token", token))
		c.Send("❓ Unknown command. Try:\n/wake - Start alarm\n/stop - Stop alarm\n/status - Device status\n/test - Test buzzers")
		return
	}

	if c.dispatcher != nil {
		c.dispatcher.HandleCommand(id, msg)
	}
}

func (c *BotChannel) enqueue(msg models.InboundMessage) {
	if len(c.queue) >= c.queueCap {
		// Drop-oldest backpressure: this is a lossy buffer, not a log.
		c.logger.Warn("Message queue full, dropping oldest",
			zap.Int("update_id", c.queue[0].UpdateID))
		c.queue = c.queue[1:]
	}
	c.queue = append(c.queue, msg)
}

// PendingCount returns the number of retained inbound messages.
func (c *BotChannel) PendingCount() int {
	return len(c.queue)
}

// NextMessage pops the oldest retained message, FIFO.
func (c *BotChannel) NextMessage() (models.InboundMessage, bool) {
	if len(c.queue) == 0 {
		return models.InboundMessage{}, false
	}
	msg := c.queue[0]
	c.queue = c.queue[1:]
	return msg, true
}

// WakeRateLimited reports whether /wake is inside its cooldown window.
func (c *BotChannel) WakeRateLimited() bool {
	if c.lastWakeAt.IsZero() {
		return false
	}
	return c.now().Sub(c.lastWakeAt) < c.wakeCooldown
}

// WakeCooldownRemaining returns whole seconds until /wake is allowed
// again, 0 if not limited.
func (c *BotChannel) WakeCooldownRemaining() int64 {
	if !c.WakeRateLimited() {
		return 0
	}
	remaining := c.wakeCooldown - c.now().Sub(c.lastWakeAt)
	return int64(remaining / time.Second)
}

// ResetWakeCooldown restarts the cooldown window. Called only when a
// /wake is accepted; rejected attempts do not reset it.
func (c *BotChannel) ResetWakeCooldown() {
	c.lastWakeAt = c.now()
}

// Status returns the current channel status.
func (c *BotChannel) Status() ChannelStatus {
	return c.status
}

// IsOnline reports whether the last observed transport outcome was a
// success.
func (c *BotChannel) IsOnline() bool {
	return c.status == ChannelOnline
}

// LastUpdateID returns the poll cursor, for status reporting.
func (c *BotChannel) LastUpdateID() int {
	return c.lastUpdateID
}

func (c *BotChannel) setStatus(status ChannelStatus) {
	if status == c.status {
		return
	}

	old := c.status
	c.status = status
	c.logger.Info("Channel status changed",
		zap.Stringer("from", old),
		zap.Stringer("to", status))

	if status == ChannelOnline && c.onOnline != nil {
		c.onOnline()
	} else if old == ChannelOnline && c.onOffline != nil {
		c.onOffline()
	}
}
