package services

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ChannelCredentials holds the bot token and the single authorized chat
// id. Both must be present and well-formed before the channel is
// considered configured.
type ChannelCredentials struct {
	BotToken string `json:"bot_token"`
	ChatID   int64  `json:"chat_id"`
}

// Valid reports whether the credentials are complete and well-formed.
func (c ChannelCredentials) Valid() bool {
	return ValidTokenFormat(c.BotToken) && c.ChatID != 0
}

// ValidTokenFormat checks the BotFather token shape: a numeric id and a
// secret separated by ':', at least 20 characters overall.
func ValidTokenFormat(token string) bool {
	return len(token) >= 20 && strings.Contains(token, ":")
}

// CredentialStore persists channel credentials across reboots.
type CredentialStore interface {
	Load() (ChannelCredentials, error)
	Save(creds ChannelCredentials) error
}

// FileCredentialStore keeps credentials in a JSON file, the flash
// preferences analog for a host with a real filesystem.
type FileCredentialStore struct {
	path string
}

func NewFileCredentialStore(path string) *FileCredentialStore {
	return &FileCredentialStore{path: path}
}

// Load reads stored credentials. A missing file is not an error; it
// returns zero credentials so the caller can fall back to seeding.
func (s *FileCredentialStore) Load() (ChannelCredentials, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return ChannelCredentials{}, nil
	}
	if err != nil {
		return ChannelCredentials{}, fmt.Errorf("failed to read credentials: %w", err)
	}

	var creds ChannelCredentials
	if err := json.Unmarshal(data, &creds); err != nil {
		return ChannelCredentials{}, fmt.Errorf("failed to parse credentials: %w", err)
	}
	return creds, nil
}

// Save writes credentials with owner-only permissions.
func (s *FileCredentialStore) Save(creds ChannelCredentials) error {
	data, err := json.MarshalIndent(creds, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal credentials: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("failed to create credentials dir: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write credentials: %w", err)
	}
	return nil
}
