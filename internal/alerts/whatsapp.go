package alerts

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/pranav24547/Ai-Surveillance-System/internal/config"
	"github.com/pranav24547/Ai-Surveillance-System/internal/models"
)

// WhatsApp delivers alerts through the UltraMsg gateway.
type WhatsApp struct {
	counters
	cfg        config.WhatsAppConfig
	httpClient *http.Client
}

func NewWhatsApp(cfg config.WhatsAppConfig) *WhatsApp {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.ultramsg.com"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &WhatsApp{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

func (w *WhatsApp) Kind() string { return KindWhatsApp }

func (w *WhatsApp) Init() error {
	if !w.cfg.Enabled || w.cfg.InstanceID == "" || w.cfg.Token == "" || len(w.cfg.PhoneNumbers) == 0 {
		w.setReady(false)
		return ErrNotConfigured
	}
	w.setReady(true)
	return nil
}

func (w *WhatsApp) Send(ctx context.Context, alert models.Alert) error {
	body := fmt.Sprintf("*WEAPON DETECTED!*\n\n"+
		"*Type:* %s\n"+
		"*Confidence:* %s\n"+
		"*Location:* %s\n"+
		"*Time:* %s\n\n"+
		"_Smart Surveillance System Alert_",
		strings.ToUpper(alert.WeaponType), percent(alert.Confidence), alert.Location, alert.Timestamp.Format(timeLayout))

	var image string
	if alert.EvidencePath != "" {
		if data, err := os.ReadFile(alert.EvidencePath); err == nil {
			image = base64.StdEncoding.EncodeToString(data)
		}
	}

	var failed []string
	for _, phone := range w.cfg.PhoneNumbers {
		err := w.post(ctx, "messages/chat", url.Values{
			"token": {w.cfg.Token},
			"to":    {phone},
			"body":  {body},
		})
		if err != nil {
			failed = append(failed, fmt.Sprintf("%s: %v", phone, err))
			continue
		}

		if image != "" {
			_ = w.post(ctx, "messages/image", url.Values{
				"token":   {w.cfg.Token},
				"to":      {phone},
				"image":   {image},
				"caption": {"Detection Evidence"},
			})
		}
	}

	if len(failed) > 0 {
		return w.record(fmt.Errorf("whatsapp: %s", strings.Join(failed, "; ")))
	}
	return w.record(nil)
}

// post sends a form to the gateway. The gateway answers 200 even for rejected messages, so the
// "sent" flag of the reply decides success.
func (w *WhatsApp) post(ctx context.Context, path string, form url.Values) error {
	endpoint := fmt.Sprintf("%s/%s/%s", w.cfg.BaseURL, w.cfg.InstanceID, path)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("bad status: %s, error: %s", resp.Status, raw)
	}

	var reply struct {
		Sent any `json:"sent"`
	}
	if err := json.Unmarshal(raw, &reply); err != nil {
		return fmt.Errorf("decode reply: %w", err)
	}
	switch v := reply.Sent.(type) {
	case bool:
		if v {
			return nil
		}
	case string:
		if v == "true" {
			return nil
		}
	}
	return fmt.Errorf("message not sent: %s", raw)
}

func (w *WhatsApp) Status() ChannelStatus {
	return w.status(len(w.cfg.PhoneNumbers), nil)
}
