package alerts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/pranav24547/Ai-Surveillance-System/internal/config"
	"github.com/pranav24547/Ai-Surveillance-System/internal/models"
)

// Telegram posts the alert through the Bot API to every configured chat, followed by the
// evidence photo when one is available.
type Telegram struct {
	counters
	cfg        config.TelegramConfig
	httpClient *http.Client
}

func NewTelegram(cfg config.TelegramConfig) *Telegram {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.telegram.org"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Telegram{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

func (t *Telegram) Kind() string { return KindTelegram }

func (t *Telegram) Init() error {
	if !t.cfg.Enabled || t.cfg.BotToken == "" || len(t.cfg.ChatIDs) == 0 {
		t.setReady(false)
		return ErrNotConfigured
	}
	t.setReady(true)
	return nil
}

func (t *Telegram) Send(ctx context.Context, alert models.Alert) error {
	text := fmt.Sprintf("<b>WEAPON DETECTED!</b>\n\n"+
		"<b>Type:</b> %s\n"+
		"<b>Confidence:</b> %s\n"+
		"<b>Location:</b> %s\n"+
		"<b>Time:</b> %s\n\n"+
		"<i>Smart Surveillance System Alert</i>",
		strings.ToUpper(alert.WeaponType), percent(alert.Confidence), alert.Location, alert.Timestamp.Format(timeLayout))

	var photo []byte
	if alert.EvidencePath != "" {
		photo, _ = os.ReadFile(alert.EvidencePath)
	}

	var failed []string
	for _, chatID := range t.cfg.ChatIDs {
		if err := t.sendMessage(ctx, chatID, text); err != nil {
			failed = append(failed, fmt.Sprintf("%s: %v", chatID, err))
			continue
		}
		if len(photo) > 0 {
			// the text already went out; a failed photo does not fail the alert
			_ = t.sendPhoto(ctx, chatID, photo)
		}
	}

	if len(failed) > 0 {
		return t.record(fmt.Errorf("telegram: %s", strings.Join(failed, "; ")))
	}
	return t.record(nil)
}

func (t *Telegram) sendMessage(ctx context.Context, chatID, text string) error {
	payload, err := json.Marshal(map[string]string{
		"chat_id":    chatID,
		"text":       text,
		"parse_mode": "HTML",
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint("sendMessage"), bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return t.do(req)
}

func (t *Telegram) sendPhoto(ctx context.Context, chatID string, photo []byte) error {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	_ = w.WriteField("chat_id", chatID)
	_ = w.WriteField("caption", "Detection Evidence")
	part, err := w.CreateFormFile("photo", "evidence.jpg")
	if err != nil {
		return err
	}
	if _, err := part.Write(photo); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint("sendPhoto"), &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	return t.do(req)
}

func (t *Telegram) endpoint(method string) string {
	return fmt.Sprintf("%s/bot%s/%s", t.cfg.BaseURL, t.cfg.BotToken, method)
}

func (t *Telegram) do(req *http.Request) error {
	resp, err := t.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("bad status: %s, error: %s", resp.Status, body)
	}
	return nil
}

func (t *Telegram) Status() ChannelStatus {
	return t.status(len(t.cfg.ChatIDs), nil)
}
