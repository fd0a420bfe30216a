package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Channel credentials. Env values seed the credential store on
	// first boot; afterwards the store is authoritative.
	CredentialsPath  string
	TelegramBotToken string
	TelegramChatID   string

	// Telegram channel behavior
	PollInterval    time.Duration
	LongPollSeconds int
	UpdateLimit     int
	APITimeout      time.Duration
	WakeCooldown    time.Duration
	QueueSize       int

	// Alarm escalation timings
	TriggeredDelay      time.Duration
	WarningDuration     time.Duration
	AlertDuration       time.Duration
	SafetyTimeout       time.Duration
	HealthCheckInterval time.Duration

	// Cooperative loop and connectivity maintenance
	TickInterval      time.Duration
	ConnCheckInterval time.Duration
	ConnProbeAddr     string
	ConnProbeTimeout  time.Duration

	// Hardware MCU bridge (MQTT)
	MQTTBroker       string
	MQTTUsername     string
	MQTTPassword     string
	MQTTClientID     string
	MQTTCommandTopic string
	MQTTStatusTopic  string
	MQTTButtonTopic  string

	// Optional off-device event audit (RabbitMQ)
	AMQPURL        string
	AMQPExchange   string
	AMQPRoutingKey string

	DeviceID string
}

func LoadConfig() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	config := &Config{
		CredentialsPath:  getEnv("CREDENTIALS_PATH", "/var/lib/wakeassist/credentials.json"),
		TelegramBotToken: getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramChatID:   getEnv("TELEGRAM_CHAT_ID", ""),

		PollInterval:    getEnvDuration("TELEGRAM_POLL_INTERVAL", 5*time.Second),
		LongPollSeconds: getEnvInt("TELEGRAM_LONG_POLL_SECONDS", 5),
		UpdateLimit:     getEnvInt("TELEGRAM_UPDATE_LIMIT", 10),
		APITimeout:      getEnvDuration("TELEGRAM_API_TIMEOUT", 10*time.Second),
		WakeCooldown:    getEnvDuration("WAKE_COOLDOWN", 5*time.Minute),
		QueueSize:       getEnvInt("MESSAGE_QUEUE_SIZE", 10),

		TriggeredDelay:      getEnvDuration("ALARM_TRIGGERED_DELAY", 3*time.Second),
		WarningDuration:     getEnvDuration("ALARM_WARNING_DURATION", 30*time.Second),
		AlertDuration:       getEnvDuration("ALARM_ALERT_DURATION", 30*time.Second),
		SafetyTimeout:       getEnvDuration("ALARM_SAFETY_TIMEOUT", 5*time.Minute),
		HealthCheckInterval: getEnvDuration("ALARM_HEALTH_CHECK_INTERVAL", 10*time.Second),

		TickInterval:      getEnvDuration("LOOP_TICK_INTERVAL", 100*time.Millisecond),
		ConnCheckInterval: getEnvDuration("CONN_CHECK_INTERVAL", 30*time.Second),
		ConnProbeAddr:     getEnv("CONN_PROBE_ADDR", "api.telegram.org:443"),
		ConnProbeTimeout:  getEnvDuration("CONN_PROBE_TIMEOUT", 2*time.Second),

		MQTTBroker:       getEnv("MQTT_BROKER", "localhost:1883"),
		MQTTUsername:     getEnv("MQTT_USERNAME", "wakeassist"),
		MQTTPassword:     getEnv("MQTT_PASSWORD", ""),
		MQTTClientID:     getEnv("MQTT_CLIENT_ID", "wakeassist-core"),
		MQTTCommandTopic: getEnv("MQTT_COMMAND_TOPIC", "wakeassist/buzzer/cmd"),
		MQTTStatusTopic:  getEnv("MQTT_STATUS_TOPIC", "wakeassist/hardware/status"),
		MQTTButtonTopic:  getEnv("MQTT_BUTTON_TOPIC", "wakeassist/hardware/buttons"),

		AMQPURL:        getEnv("AMQP_URL", ""),
		AMQPExchange:   getEnv("AMQP_EXCHANGE", "wakeassist.events"),
		AMQPRoutingKey: getEnv("AMQP_ROUTING_KEY", "alarm"),

		DeviceID: getEnv("DEVICE_ID", "wakeassist-01"),
	}

	return config, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
