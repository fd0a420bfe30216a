package services

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Transport performs one request/response exchange against the bot API
// and returns the decoded result payload. Connection errors, timeouts,
// non-OK API responses and unparseable bodies all surface as an error;
// the caller never sees raw HTTP.
type Transport interface {
	Request(endpoint string, params map[string]string) (json.RawMessage, error)
}

// botTransport backs Transport with the Telegram Bot API client. Every
// request is bounded by the HTTP client timeout.
type botTransport struct {
	bot *tgbotapi.BotAPI
}

// NewBotTransport dials the Telegram Bot API and verifies the token via
// getMe. Returns the transport and the bot's username.
func NewBotTransport(token string, timeout time.Duration) (Transport, string, error) {
	client := &http.Client{Timeout: timeout}

	bot, err := tgbotapi.NewBotAPIWithClient(token, tgbotapi.APIEndpoint, client)
	if err != nil {
		return nil, "", fmt.Errorf("error creating telegram bot: %w", err)
	}

	return &botTransport{bot: bot}, bot.Self.UserName, nil
}

func (t *botTransport) Request(endpoint string, params map[string]string) (json.RawMessage, error) {
	resp, err := t.bot.MakeRequest(endpoint, tgbotapi.Params(params))
	if err != nil {
		return nil, err
	}
	return resp.Result, nil
}
