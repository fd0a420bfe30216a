package services

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"wakeassist/config"
	"wakeassist/models"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

// Hardware is the contract between the control core and the buzzer MCU.
// Levels are PWM duty cycles 0..255.
type Hardware interface {
	SetOutput(channel models.BuzzerChannel, level uint8)
	StopAllOutputs()
	CheckContinuity() models.ContinuityReport
	NextButtonEvent() models.ButtonEvent
}

// buzzerCommand is the JSON document published to the MCU command topic.
type buzzerCommand struct {
	Channel string `json:"channel"`
	Level   uint8  `json:"level"`
}

// buttonReport is the JSON document the MCU publishes per debounced
// button press.
type buttonReport struct {
	Button string `json:"button"`
}

// MQTTHardware bridges the Hardware contract to the GPIO MCU over MQTT.
// Output commands are published to the command topic; the MCU publishes
// continuity reports and button presses, which are cached here for the
// cooperative loop to sample. The paho callbacks run on library
// goroutines, so the caches are the one place in the system guarded by
// a mutex.
type MQTTHardware struct {
	client   mqtt.Client
	logger   *zap.Logger
	cmdTopic string

	mu         sync.Mutex
	continuity models.ContinuityReport
	buttons    []models.ButtonEvent
	lastLevels map[models.BuzzerChannel]int
}

// NewMQTTHardware connects to the broker and subscribes to the MCU's
// status and button topics. A connection failure here is fatal for the
// caller: the appliance must not run without actuators.
func NewMQTTHardware(cfg *config.Config, logger *zap.Logger) (*MQTTHardware, error) {
	h := &MQTTHardware{
		logger:   logger,
		cmdTopic: cfg.MQTTCommandTopic,
		// Assume circuits are good until the MCU reports otherwise.
		continuity: models.ContinuityReport{SmallOK: true, LargeOK: true},
		lastLevels: make(map[models.BuzzerChannel]int),
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s", cfg.MQTTBroker))
	opts.SetClientID(cfg.MQTTClientID)
	opts.SetUsername(cfg.MQTTUsername)
	opts.SetPassword(cfg.MQTTPassword)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetAutoReconnect(true)

	opts.OnConnect = func(client mqtt.Client) {
		logger.Info("Connected to MQTT broker", zap.String("broker", cfg.MQTTBroker))

		if token := client.Subscribe(cfg.MQTTStatusTopic, 1, h.handleStatus); token.Wait() && token.Error() != nil {
			logger.Error("Failed to subscribe to status topic", zap.Error(token.Error()))
		}
		if token := client.Subscribe(cfg.MQTTButtonTopic, 1, h.handleButton); token.Wait() && token.Error() != nil {
			logger.Error("Failed to subscribe to button topic", zap.Error(token.Error()))
		}
	}

	opts.OnConnectionLost = func(client mqtt.Client, err error) {
		logger.Error("MQTT connection lost", zap.Error(err))
	}

	h.client = mqtt.NewClient(opts)
	if token := h.client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("failed to connect to MQTT broker: %w", token.Error())
	}

	return h, nil
}

// SetOutput publishes a level command for one buzzer channel. Repeated
// identical levels are deduplicated so the pulse pattern does not flood
// the command topic at loop cadence.
func (h *MQTTHardware) SetOutput(channel models.BuzzerChannel, level uint8) {
	h.mu.Lock()
	if last, ok := h.lastLevels[channel]; ok && last == int(level) {
		h.mu.Unlock()
		return
	}
	h.lastLevels[channel] = int(level)
	h.mu.Unlock()

	h.publishCommand(buzzerCommand{Channel: channel.String(), Level: level})
}

// StopAllOutputs silences both channels unconditionally.
func (h *MQTTHardware) StopAllOutputs() {
	h.mu.Lock()
	h.lastLevels[models.BuzzerSmall] = 0
	h.lastLevels[models.BuzzerLarge] = 0
	h.mu.Unlock()

	h.publishCommand(buzzerCommand{Channel: models.BuzzerSmall.String(), Level: 0})
	h.publishCommand(buzzerCommand{Channel: models.BuzzerLarge.String(), Level: 0})
}

// CheckContinuity returns the most recent continuity report from the
// MCU.
func (h *MQTTHardware) CheckContinuity() models.ContinuityReport {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.continuity
}

// NextButtonEvent pops the oldest pending button press, ButtonNone when
// the queue is empty.
func (h *MQTTHardware) NextButtonEvent() models.ButtonEvent {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.buttons) == 0 {
		return models.ButtonNone
	}
	ev := h.buttons[0]
	h.buttons = h.buttons[1:]
	return ev
}

// Close disconnects from the broker.
func (h *MQTTHardware) Close() {
	h.client.Disconnect(250)
}

func (h *MQTTHardware) publishCommand(cmd buzzerCommand) {
	payload, err := json.Marshal(cmd)
	if err != nil {
		h.logger.Error("Failed to marshal buzzer command", zap.Error(err))
		return
	}

	token := h.client.Publish(h.cmdTopic, 1, false, payload)
	if token.Wait() && token.Error() != nil {
		h.logger.Error("Failed to publish buzzer command",
			zap.String("channel", cmd.Channel),
			zap.Error(token.Error()))
	}
}

func (h *MQTTHardware) handleStatus(_ mqtt.Client, msg mqtt.Message) {
	var report models.ContinuityReport
	if err := json.Unmarshal(msg.Payload(), &report); err != nil {
		h.logger.Warn("Malformed continuity report", zap.Error(err))
		return
	}

	h.mu.Lock()
	h.continuity = report
	h.mu.Unlock()

	if !report.OK() {
		h.logger.Warn("Continuity check reported failure",
			zap.Bool("small_ok", report.SmallOK),
			zap.Bool("large_ok", report.LargeOK))
	}
}

func (h *MQTTHardware) handleButton(_ mqtt.Client, msg mqtt.Message) {
	var report buttonReport
	if err := json.Unmarshal(msg.Payload(), &report); err != nil {
		h.logger.Warn("Malformed button report", zap.Error(err))
		return
	}

	var ev models.ButtonEvent
	switch report.Button {
	case "silence":
		ev = models.ButtonSilence
	case "test":
		ev = models.ButtonTest
	default:
		h.logger.Warn("Unknown button report", zap.String("button", report.Button))
		return
	}

	h.mu.Lock()
	h.buttons = append(h.buttons, ev)
	h.mu.Unlock()

	h.logger.Info("Button press received", zap.Stringer("button", ev))
}
