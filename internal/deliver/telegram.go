package deliver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/abelbrown/newswire/internal/config"
)

const defaultAPIBase = "https://api.telegram.org"

// Transport sends one message to one destination. Implementations own
// their own network error handling; retries live in the Dispatcher.
type Transport interface {
	SendText(ctx context.Context, text string, asHTML, preview bool) error
	SendPhoto(ctx context.Context, photoURL, caption string) error
}

// Telegram is the bot-API transport for a single chat.
type Telegram struct {
	token   string
	chatID  string
	client  *http.Client
	apiBase string
}

// NewTelegram creates a transport, or nil when the channel is not
// configured (dispatcher treats nil as absent).
func NewTelegram(cfg config.ChannelConfig, timeout time.Duration) *Telegram {
	if cfg.BotToken == "" || cfg.ChatID == "" {
		return nil
	}
	return &Telegram{
		token:   cfg.BotToken,
		chatID:  cfg.ChatID,
		client:  &http.Client{Timeout: timeout},
		apiBase: defaultAPIBase,
	}
}

// NewTelegramAt points the transport at a non-default API base (tests).
func NewTelegramAt(apiBase, token, chatID string, client *http.Client) *Telegram {
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	return &Telegram{token: token, chatID: chatID, client: client, apiBase: apiBase}
}

// SendText delivers a text message.
func (t *Telegram) SendText(ctx context.Context, text string, asHTML, preview bool) error {
	payload := map[string]any{
		"chat_id":                  t.chatID,
		"text":                     text,
		"disable_web_page_preview": !preview,
	}
	if asHTML {
		payload["parse_mode"] = "HTML"
	}
	return t.call(ctx, "sendMessage", payload)
}

// SendPhoto delivers a photo with a caption.
func (t *Telegram) SendPhoto(ctx context.Context, photoURL, caption string) error {
	return t.call(ctx, "sendPhoto", map[string]any{
		"chat_id": t.chatID,
		"photo":   photoURL,
		"caption": caption,
	})
}

type apiResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description"`
	ErrorCode   int    `json:"error_code"`
}

func (t *Telegram) call(ctx context.Context, method string, payload map[string]any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", method, err)
	}

	url := fmt.Sprintf("%s/bot%s/%s", t.apiBase, t.token, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return fmt.Errorf("%s: read response: %w", method, err)
	}

	var parsed apiResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return fmt.Errorf("%s: HTTP %d: unparseable response", method, resp.StatusCode)
	}
	if !parsed.OK {
		return fmt.Errorf("%s: API error %d: %s", method, parsed.ErrorCode, parsed.Description)
	}
	return nil
}
