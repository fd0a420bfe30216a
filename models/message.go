package models

import "time"

// InboundMessage is one message received from the bot API. It is built
// by the channel's poll cycle and consumed once by dispatch.
type InboundMessage struct {
	ChatID    int64
	MessageID int
	UpdateID  int
	Text      string
	Username  string
	SentAt    time.Time
}
