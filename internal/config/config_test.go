package config

import (
	"os"
	"path/filepath"
	"testing"
)

const minimalYAML = `
timezone: America/New_York
channels:
  primary:
    bot_token: tok
    chat_id: "123"
sources:
  - id: reuters
    name: Reuters
    endpoint: https://example.com/reuters.rss
    enabled: true
    priority: primary
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalYAML))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.PollSeconds != 120 {
		t.Errorf("PollSeconds = %d", cfg.PollSeconds)
	}
	if cfg.Quiet.StartHour != 23 || cfg.Quiet.EndHour != 9 {
		t.Errorf("quiet window = %d-%d", cfg.Quiet.StartHour, cfg.Quiet.EndHour)
	}
	if cfg.Digest.Capacity != 40 || len(cfg.Digest.LowSlots) != 5 {
		t.Errorf("digest = %+v", cfg.Digest)
	}
	if cfg.Dedup.TTLHours != 72 {
		t.Errorf("dedup TTL = %d", cfg.Dedup.TTLHours)
	}
	if cfg.Location().String() != "America/New_York" {
		t.Errorf("location = %s", cfg.Location())
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("TELEGRAM_BOT_TOKEN", "env-token")
	t.Setenv("TELEGRAM_CHAT_ID", "env-chat")
	t.Setenv("NEWS_TZ", "UTC")

	cfg, err := Load(writeConfig(t, minimalYAML))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Channels.Primary.BotToken != "env-token" || cfg.Channels.Primary.ChatID != "env-chat" {
		t.Errorf("env override lost: %+v", cfg.Channels.Primary)
	}
	if cfg.Timezone != "UTC" {
		t.Errorf("timezone = %q", cfg.Timezone)
	}
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{
			name: "missing primary channel",
			yaml: `
sources:
  - {id: a, endpoint: "https://x", enabled: true}
`,
		},
		{
			name: "no enabled sources",
			yaml: `
channels: {primary: {bot_token: t, chat_id: c}}
sources:
  - {id: a, endpoint: "https://x", enabled: false}
`,
		},
		{
			name: "duplicate source ids",
			yaml: `
channels: {primary: {bot_token: t, chat_id: c}}
sources:
  - {id: a, endpoint: "https://x", enabled: true}
  - {id: a, endpoint: "https://y", enabled: true}
`,
		},
		{
			name: "bad timezone",
			yaml: `
timezone: Mars/Olympus
channels: {primary: {bot_token: t, chat_id: c}}
sources:
  - {id: a, endpoint: "https://x", enabled: true}
`,
		},
		{
			name: "quiet hour out of range",
			yaml: `
quiet: {start_hour: 25, end_hour: 9}
channels: {primary: {bot_token: t, chat_id: c}}
sources:
  - {id: a, endpoint: "https://x", enabled: true}
`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, tt.yaml)); err == nil {
				t.Error("want validation error")
			}
		})
	}
}

func TestLoadUnreadableFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("want error for missing config file")
	}
}
