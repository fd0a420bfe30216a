package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"wakeassist/config"
	"wakeassist/models"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// AlarmEvent is the JSON document published for off-device audit of
// alarm activity.
type AlarmEvent struct {
	Kind      string        `json:"kind"` // "stage_changed" or "session_finished"
	DeviceID  string        `json:"device_id"`
	Stage     string        `json:"stage,omitempty"`
	Session   *SessionEvent `json:"session,omitempty"`
	Timestamp time.Time     `json:"timestamp"`
}

// SessionEvent is the audit form of a finalized session.
type SessionEvent struct {
	StartedAt     time.Time `json:"started_at"`
	StoppedAt     time.Time `json:"stopped_at"`
	DurationSecs  int64     `json:"duration_secs"`
	StopCause     string    `json:"stop_cause"`
	HighestStage  string    `json:"highest_stage"`
	HardwareFault bool      `json:"hardware_fault"`
}

// AMQPEventPublisher publishes alarm lifecycle events to a RabbitMQ
// direct exchange. Publishing is best-effort: failures are logged and
// never surface to the controller.
type AMQPEventPublisher struct {
	conn       *amqp.Connection
	channel    *amqp.Channel
	exchange   string
	routingKey string
	deviceID   string
	logger     *zap.Logger
	now        func() time.Time
}

// NewAMQPEventPublisher connects with retry and declares the exchange.
func NewAMQPEventPublisher(cfg *config.Config, logger *zap.Logger) (*AMQPEventPublisher, error) {
	p := &AMQPEventPublisher{
		exchange:   cfg.AMQPExchange,
		routingKey: cfg.AMQPRoutingKey,
		deviceID:   cfg.DeviceID,
		logger:     logger,
		now:        time.Now,
	}

	var err error
	maxRetries := 5
	for attempt := 1; attempt <= maxRetries; attempt++ {
		p.conn, err = amqp.Dial(cfg.AMQPURL)
		if err == nil {
			break
		}

		logger.Warn("Failed to connect to RabbitMQ",
			zap.Int("attempt", attempt),
			zap.Int("max_retries", maxRetries),
			zap.Error(err))

		if attempt < maxRetries {
			time.Sleep(time.Duration(attempt) * 2 * time.Second)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ after %d attempts: %w", maxRetries, err)
	}

	p.channel, err = p.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	err = p.channel.ExchangeDeclare(
		p.exchange, // name
		"direct",   // type
		true,       // durable
		false,      // auto-deleted
		false,      // internal
		false,      // no-wait
		nil,        // arguments
	)
	if err != nil {
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}

	logger.Info("Connected to RabbitMQ",
		zap.String("exchange", p.exchange),
		zap.String("routing_key", p.routingKey))

	return p, nil
}

// StageChanged implements EventSink.
func (p *AMQPEventPublisher) StageChanged(stage models.AlarmStage) {
	p.publish(AlarmEvent{
		Kind:      "stage_changed",
		DeviceID:  p.deviceID,
		Stage:     stage.String(),
		Timestamp: p.now(),
	})
}

// SessionFinished implements EventSink.
func (p *AMQPEventPublisher) SessionFinished(stats models.AlarmStatistics) {
	p.publish(AlarmEvent{
		Kind:     "session_finished",
		DeviceID: p.deviceID,
		Session: &SessionEvent{
			StartedAt:     stats.StartedAt,
			StoppedAt:     stats.StoppedAt,
			DurationSecs:  stats.DurationSecs,
			StopCause:     stats.StopCause.String(),
			HighestStage:  stats.HighestStage.String(),
			HardwareFault: stats.HardwareFault,
		},
		Timestamp: p.now(),
	})
}

func (p *AMQPEventPublisher) publish(event AlarmEvent) {
	body, err := json.Marshal(event)
	if err != nil {
		p.logger.Error("Failed to marshal alarm event", zap.Error(err))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err = p.channel.PublishWithContext(ctx,
		p.exchange,
		p.routingKey,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType: "application/json",
			Timestamp:   event.Timestamp,
			Body:        body,
		})
	if err != nil {
		p.logger.Error("Failed to publish alarm event",
			zap.String("kind", event.Kind),
			zap.Error(err))
		return
	}

	p.logger.Debug("Published alarm event", zap.String("kind", event.Kind))
}

// Close shuts down the channel and connection.
func (p *AMQPEventPublisher) Close() error {
	if p.channel != nil {
		_ = p.channel.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}
