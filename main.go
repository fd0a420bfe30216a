package main

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"wakeassist/config"
	"wakeassist/log"
	"wakeassist/services"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

const transportRetries = 3

func main() {
	envFile := pflag.String("env-file", "", "load environment from this file before reading config")
	credentialsPath := pflag.String("credentials", "", "override the credential store path")
	pflag.Parse()

	if *envFile != "" {
		if err := godotenv.Load(*envFile); err != nil {
			panic("Failed to load env file: " + err.Error())
		}
	}

	// Initialize structured logger
	logger := log.GetInstance()
	defer logger.Sync()

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}
	if *credentialsPath != "" {
		cfg.CredentialsPath = *credentialsPath
	}

	// Resolve channel credentials: the store is authoritative, env
	// values seed it on first boot.
	store := services.NewFileCredentialStore(cfg.CredentialsPath)
	creds, err := store.Load()
	if err != nil {
		logger.Fatal("Failed to load credentials", zap.Error(err))
	}
	if !creds.Valid() {
		creds = seedCredentials(cfg, logger)
		if creds.Valid() {
			if err := store.Save(creds); err != nil {
				logger.Warn("Failed to persist credentials", zap.Error(err))
			}
		}
	}

	// Hardware bridge failure is fatal: a control core that cannot
	// drive the buzzers has no reason to run.
	hw, err := services.NewMQTTHardware(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to connect to hardware bridge", zap.Error(err))
	}
	defer hw.Close()

	conn := services.NewProbeConnectivity(cfg, logger)

	channel := services.NewBotChannel(cfg, logger)
	channel.SetLinkCheck(conn.IsLinkUp)

	// Channel setup is best-effort: without valid credentials or with
	// the Telegram API unreachable, the device still boots and the
	// physical buttons keep working.
	if creds.Valid() {
		configureChannel(channel, creds, cfg, logger)
	} else {
		logger.Warn("No valid channel credentials, remote control disabled")
	}

	alarm := services.NewAlarmController(cfg, hw, channel, logger)

	if cfg.AMQPURL != "" {
		events, err := services.NewAMQPEventPublisher(cfg, logger)
		if err != nil {
			logger.Warn("Event publishing disabled", zap.Error(err))
		} else {
			defer events.Close()
			alarm.SetEventSink(events)
		}
	}

	router := services.NewCommandRouter(alarm, channel, hw, conn, logger)
	router.RegisterCommands()

	channel.OnOnline(func() {
		channel.Send("🟢 WakeAssist connected! Send /wake to test.")
	})
	channel.OnUnauthorized(func(chatID int64, username string) {
		logger.Warn("Unauthorized access attempt",
			zap.Int64("chat_id", chatID),
			zap.String("username", username))
	})

	logger.Info("WakeAssist control core started",
		zap.String("device_id", cfg.DeviceID),
		zap.Duration("triggered_delay", cfg.TriggeredDelay),
		zap.Duration("warning_duration", cfg.WarningDuration),
		zap.Duration("alert_duration", cfg.AlertDuration),
		zap.Duration("safety_timeout", cfg.SafetyTimeout),
		zap.Bool("channel_configured", channel.IsConfigured()),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		logger.Info("Shutdown signal received", zap.String("signal", sig.String()))
		cancel()
	}()

	runner := services.NewRunner(alarm, channel, hw, conn, cfg.TickInterval, logger)
	runner.Run(ctx)

	// Make sure the buzzers are quiet before exiting.
	hw.StopAllOutputs()
	logger.Info("WakeAssist control core stopped")
}

// seedCredentials builds credentials from the environment for the first
// boot. An invalid seed leaves the channel unconfigured rather than
// failing startup.
func seedCredentials(cfg *config.Config, logger *zap.Logger) services.ChannelCredentials {
	if cfg.TelegramBotToken == "" || cfg.TelegramChatID == "" {
		return services.ChannelCredentials{}
	}
	if !services.ValidTokenFormat(cfg.TelegramBotToken) {
		logger.Warn("Seed bot token has invalid format, ignoring")
		return services.ChannelCredentials{}
	}
	chatID, err := strconv.ParseInt(cfg.TelegramChatID, 10, 64)
	if err != nil {
		logger.Warn("Seed chat id is not numeric, ignoring", zap.Error(err))
		return services.ChannelCredentials{}
	}
	return services.ChannelCredentials{BotToken: cfg.TelegramBotToken, ChatID: chatID}
}

// configureChannel builds the Telegram transport with a few retries.
// On persistent failure the channel stays dormant and the loop will
// simply skip polling.
func configureChannel(channel *services.BotChannel, creds services.ChannelCredentials, cfg *config.Config, logger *zap.Logger) {
	for attempt := 1; attempt <= transportRetries; attempt++ {
		transport, username, err := services.NewBotTransport(creds.BotToken, cfg.APITimeout)
		if err == nil {
			channel.Configure(transport, creds.ChatID)
			channel.MarkAllRead()
			logger.Info("Telegram channel configured", zap.String("bot_username", username))
			return
		}

		logger.Warn("Failed to reach Telegram API",
			zap.Int("attempt", attempt),
			zap.Int("max_retries", transportRetries),
			zap.Error(err))

		if attempt < transportRetries {
			time.Sleep(time.Duration(attempt) * time.Second)
		}
	}
	logger.Warn("Telegram channel dormant, continuing without remote control")
}
