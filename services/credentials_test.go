package services

import (
	"os"
	"path/filepath"
	"testing"
)

func TestCredentialStoreRoundtrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "credentials.json")
	store := NewFileCredentialStore(path)

	want := ChannelCredentials{
		BotToken: "123456789:AAfake-token-for-round-trip",
		ChatID:   987654321,
	}
	if err := store.Save(want); err != nil {
		t.Fatalf("save: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Fatalf("file mode = %o, want 600", perm)
	}

	got, err := store.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got != want {
		t.Fatalf("load = %+v, want %+v", got, want)
	}
}

func TestCredentialStoreMissingFile(t *testing.T) {
	store := NewFileCredentialStore(filepath.Join(t.TempDir(), "absent.json"))

	creds, err := store.Load()
	if err != nil {
		t.Fatalf("load missing file: %v", err)
	}
	if creds.Valid() {
		t.Fatalf("missing file yielded valid credentials: %+v", creds)
	}
}

func TestCredentialStoreRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.json")
	if err := os.WriteFile(path, []byte("not json"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	if _, err := NewFileCredentialStore(path).Load(); err == nil {
		t.Fatal("garbage file loaded without error")
	}
}

func TestTokenFormat(t *testing.T) {
	cases := []struct {
		token string
		valid bool
	}{
		{"123456789:AAfake-token-long-enough", true},
		{"", false},
		{"short:tok", false},
		{"no-separator-but-quite-long-token", false},
	}
	for _, tc := range cases {
		if got := ValidTokenFormat(tc.token); got != tc.valid {
			t.Fatalf("ValidTokenFormat(%q) = %v, want %v", tc.token, got, tc.valid)
		}
	}
}

func TestCredentialsValid(t *testing.T) {
	good := ChannelCredentials{BotToken: "123456789:AAfake-token-long-enough", ChatID: 42}
	if !good.Valid() {
		t.Fatal("complete credentials reported invalid")
	}
	if (ChannelCredentials{BotToken: good.BotToken}).Valid() {
		t.Fatal("missing chat id reported valid")
	}
	if (ChannelCredentials{ChatID: 42}).Valid() {
		t.Fatal("missing token reported valid")
	}
}
