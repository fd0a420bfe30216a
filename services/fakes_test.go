package services

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"wakeassist/config"
	"wakeassist/models"

	"go.uber.org/zap"
)

func testConfig() *config.Config {
	return &config.Config{
		PollInterval:    5 * time.Second,
		LongPollSeconds: 5,
		UpdateLimit:     10,
		WakeCooldown:    5 * time.Minute,
		QueueSize:       10,

		TriggeredDelay:      3 * time.Second,
		WarningDuration:     30 * time.Second,
		AlertDuration:       30 * time.Second,
		SafetyTimeout:       5 * time.Minute,
		HealthCheckInterval: 10 * time.Second,

		TickInterval:      100 * time.Millisecond,
		ConnCheckInterval: 30 * time.Second,
		ConnProbeAddr:     "example.com:443",
		ConnProbeTimeout:  time.Second,
	}
}

type fakeClock struct {
	t time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Unix(1700000000, 0)}
}

func (c *fakeClock) Now() time.Time {
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.t = c.t.Add(d)
}

type fakeHardware struct {
	levels  map[models.BuzzerChannel]uint8
	ops     []string
	report  models.ContinuityReport
	buttons []models.ButtonEvent
}

func newFakeHardware() *fakeHardware {
	return &fakeHardware{
		levels: make(map[models.BuzzerChannel]uint8),
		report: models.ContinuityReport{SmallOK: true, LargeOK: true},
	}
}

func (h *fakeHardware) SetOutput(channel models.BuzzerChannel, level uint8) {
	h.levels[channel] = level
	h.ops = append(h.ops, fmt.Sprintf("set %s %d", channel, level))
}

func (h *fakeHardware) StopAllOutputs() {
	h.levels[models.BuzzerSmall] = 0
	h.levels[models.BuzzerLarge] = 0
	h.ops = append(h.ops, "stop_all")
}

func (h *fakeHardware) CheckContinuity() models.ContinuityReport {
	return h.report
}

func (h *fakeHardware) NextButtonEvent() models.ButtonEvent {
	if len(h.buttons) == 0 {
		return models.ButtonNone
	}
	ev := h.buttons[0]
	h.buttons = h.buttons[1:]
	return ev
}

type fakeNotifier struct {
	messages []string
}

func (n *fakeNotifier) Notify(text string) {
	n.messages = append(n.messages, text)
}

func (n *fakeNotifier) contains(substr string) bool {
	for _, m := range n.messages {
		if strings.Contains(m, substr) {
			return true
		}
	}
	return false
}

type fakeSink struct {
	stages   []models.AlarmStage
	sessions []models.AlarmStatistics
}

func (s *fakeSink) StageChanged(stage models.AlarmStage) {
	s.stages = append(s.stages, stage)
}

func (s *fakeSink) SessionFinished(stats models.AlarmStatistics) {
	s.sessions = append(s.sessions, stats)
}

type recordedRequest struct {
	endpoint string
	params   map[string]string
}

type fakeTransport struct {
	requests []recordedRequest
	handler  func(endpoint string, params map[string]string) (json.RawMessage, error)
}

func (t *fakeTransport) Request(endpoint string, params map[string]string) (json.RawMessage, error) {
	t.requests = append(t.requests, recordedRequest{endpoint: endpoint, params: params})
	if t.handler != nil {
		return t.handler(endpoint, params)
	}
	return json.RawMessage(`[]`), nil
}

func (t *fakeTransport) sent(substr string) bool {
	for _, req := range t.requests {
		if req.endpoint == "sendMessage" && strings.Contains(req.params["text"], substr) {
			return true
		}
	}
	return false
}

func (t *fakeTransport) sentTo(chatID, substr string) bool {
	for _, req := range t.requests {
		if req.endpoint == "sendMessage" && req.params["chat_id"] == chatID &&
			strings.Contains(req.params["text"], substr) {
			return true
		}
	}
	return false
}

type fakeDispatcher struct {
	handled []CommandID
}

func (d *fakeDispatcher) HandleCommand(id CommandID, _ models.InboundMessage) {
	d.handled = append(d.handled, id)
}

type fakeConnectivity struct {
	up        bool
	maintains int
}

func (f *fakeConnectivity) IsLinkUp() bool {
	return f.up
}

func (f *fakeConnectivity) Maintain() {
	f.maintains++
}

func (f *fakeConnectivity) OnLinkChange(func(up bool)) {}

func newTestAlarm(cfg *config.Config) (*AlarmController, *fakeHardware, *fakeNotifier, *fakeClock) {
	clock := newFakeClock()
	hw := newFakeHardware()
	notifier := &fakeNotifier{}
	alarm := NewAlarmController(cfg, hw, notifier, zap.NewNop())
	alarm.now = clock.Now
	alarm.sleep = func(time.Duration) {}
	return alarm, hw, notifier, clock
}

func newTestChannel(cfg *config.Config, chatID int64) (*BotChannel, *fakeTransport, *fakeClock) {
	clock := newFakeClock()
	transport := &fakeTransport{}
	channel := NewBotChannel(cfg, zap.NewNop())
	channel.now = clock.Now
	channel.Configure(transport, chatID)
	return channel, transport, clock
}

// updateJSON builds one getUpdates result entry in Bot API wire shape.
func updateJSON(updateID int, chatID int64, text string) map[string]interface{} {
	return map[string]interface{}{
		"update_id": updateID,
		"message": map[string]interface{}{
			"message_id": updateID,
			"date":       1700000000,
			"text":       text,
			"chat":       map[string]interface{}{"id": chatID},
			"from":       map[string]interface{}{"id": chatID, "username": "tester"},
		},
	}
}

func updatesBody(updates ...map[string]interface{}) json.RawMessage {
	body, err := json.Marshal(updates)
	if err != nil {
		panic(err)
	}
	return body
}
