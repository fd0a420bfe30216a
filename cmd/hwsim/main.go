package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"wakeassist/models"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

var (
	mqttBroker  = flag.String("broker", "localhost:1883", "MQTT broker address (host:port)")
	mqttUser    = flag.String("user", "wakeassist", "MQTT username")
	mqttPass    = flag.String("pass", "", "MQTT password")
	cmdTopic    = flag.String("cmd-topic", "wakeassist/buzzer/cmd", "Topic to receive buzzer commands on")
	statusTopic = flag.String("status-topic", "wakeassist/hardware/status", "Topic to publish continuity reports to")
	buttonTopic = flag.String("button-topic", "wakeassist/hardware/buttons", "Topic to publish button events to")
	reportEvery = flag.Duration("report-every", 5*time.Second, "Continuity report interval")
	failSmall   = flag.Bool("fail-small", false, "Report the small buzzer as failed")
	failLarge   = flag.Bool("fail-large", false, "Report the large buzzer as failed")
	pressAfter  = flag.Duration("press-after", 0, "Publish a button press after this delay (0 = never)")
	pressButton = flag.String("press-button", "silence", "Which button to press: silence or test")
)

type buzzerCommand struct {
	Channel string `json:"channel"`
	Level   uint8  `json:"level"`
}

type buttonReport struct {
	Button string `json:"button"`
}

// hwSimulator stands in for the buzzer MCU: it acknowledges buzzer
// commands, publishes continuity reports, and can inject button
// presses for end-to-end testing without hardware.
type hwSimulator struct {
	client mqtt.Client
	logger *zap.Logger
	levels map[string]uint8
}

func (s *hwSimulator) handleCommand(_ mqtt.Client, msg mqtt.Message) {
	var cmd buzzerCommand
	if err := json.Unmarshal(msg.Payload(), &cmd); err != nil {
		s.logger.Warn("Ignoring malformed buzzer command", zap.Error(err))
		return
	}

	s.levels[cmd.Channel] = cmd.Level
	s.logger.Info("Buzzer command",
		zap.String("channel", cmd.Channel),
		zap.Uint8("level", cmd.Level))
}

func (s *hwSimulator) publishContinuity() {
	report := models.ContinuityReport{
		SmallOK: !*failSmall,
		LargeOK: !*failLarge,
	}
	body, _ := json.Marshal(report)
	s.client.Publish(*statusTopic, 1, false, body)
}

func (s *hwSimulator) publishButton(name string) {
	body, _ := json.Marshal(buttonReport{Button: name})
	s.client.Publish(*buttonTopic, 1, false, body)
	s.logger.Info("Button press published", zap.String("button", name))
}

func main() {
	flag.Parse()

	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	logger.Info("Hardware simulator started",
		zap.String("mqtt_broker", *mqttBroker),
		zap.String("cmd_topic", *cmdTopic),
		zap.Bool("fail_small", *failSmall),
		zap.Bool("fail_large", *failLarge),
	)
	logger.Info("Press Ctrl+C to stop gracefully")

	sim := &hwSimulator{
		logger: logger,
		levels: make(map[string]uint8),
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s", *mqttBroker))
	opts.SetClientID("wakeassist-hwsim")
	opts.SetUsername(*mqttUser)
	opts.SetPassword(*mqttPass)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetAutoReconnect(true)

	opts.OnConnect = func(client mqtt.Client) {
		logger.Info("Connected to MQTT broker", zap.String("broker", *mqttBroker))
		if token := client.Subscribe(*cmdTopic, 1, sim.handleCommand); token.Wait() && token.Error() != nil {
			logger.Error("Failed to subscribe to command topic", zap.Error(token.Error()))
		}
	}
	opts.OnConnectionLost = func(client mqtt.Client, err error) {
		logger.Error("MQTT connection lost", zap.Error(err))
	}

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		logger.Fatal("Failed to connect to MQTT broker", zap.Error(token.Error()))
	}
	sim.client = client
	defer client.Disconnect(250)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		logger.Info("Shutdown signal received, stopping simulator")
		cancel()
	}()

	reportTicker := time.NewTicker(*reportEvery)
	defer reportTicker.Stop()

	var pressC <-chan time.Time
	if *pressAfter > 0 {
		pressTimer := time.NewTimer(*pressAfter)
		defer pressTimer.Stop()
		pressC = pressTimer.C
	}

	sim.publishContinuity()

	for {
		select {
		case <-ctx.Done():
			logger.Info("Simulator stopped")
			return
		case <-reportTicker.C:
			sim.publishContinuity()
		case <-pressC:
			sim.publishButton(*pressButton)
		}
	}
}
