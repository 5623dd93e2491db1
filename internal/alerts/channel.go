// Package alerts rate-limits weapon alerts per class and fans them out to notification channels.
package alerts

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/pranav24547/Ai-Surveillance-System/internal/models"
)

// ErrNotConfigured is returned by Channel.Init when credentials or recipients are missing. Such a
// channel stays disabled and is skipped at dispatch time.
var ErrNotConfigured = errors.New("alerts: channel not configured")

const (
	KindSMS      = "sms"
	KindEmail    = "email"
	KindTelegram = "telegram"
	KindWhatsApp = "whatsapp"
	KindKafka    = "kafka"
	KindMQTT     = "mqtt"
)

// Channel is one notification delivery mechanism.
type Channel interface {
	Kind() string
	Init() error
	Ready() bool
	Send(ctx context.Context, alert models.Alert) error
	Status() ChannelStatus
}

type ChannelStatus struct {
	Enabled    bool              `json:"enabled"`
	SendCount  int64             `json:"send_count"`
	ErrorCount int64             `json:"error_count"`
	Recipients int               `json:"recipient_count"`
	Details    map[string]string `json:"details,omitempty"`
}

// counters is the readiness flag and delivery counters shared by every channel implementation.
type counters struct {
	mu     sync.Mutex
	ready  bool
	sent   int64
	failed int64
}

func (c *counters) setReady(ready bool) {
	c.mu.Lock()
	c.ready = ready
	c.mu.Unlock()
}

func (c *counters) Ready() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ready
}

func (c *counters) record(err error) error {
	c.mu.Lock()
	if err != nil {
		c.failed++
	} else {
		c.sent++
	}
	c.mu.Unlock()
	return err
}

func (c *counters) status(recipients int, details map[string]string) ChannelStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return ChannelStatus{
		Enabled:    c.ready,
		SendCount:  c.sent,
		ErrorCount: c.failed,
		Recipients: recipients,
		Details:    details,
	}
}

const timeLayout = "2006-01-02 15:04:05"

func plainMessage(a models.Alert) string {
	var b strings.Builder
	b.WriteString("SECURITY ALERT\n")
	b.WriteString("Weapon Detected: " + strings.ToUpper(a.WeaponType) + "\n")
	b.WriteString("Confidence: " + percent(a.Confidence) + "\n")
	b.WriteString("Location: " + a.Location + "\n")
	b.WriteString("Time: " + a.Timestamp.Format(timeLayout) + "\n")
	b.WriteString("Immediate action required!")
	return b.String()
}

func percent(v float64) string {
	return fmt.Sprintf("%.1f%%", v*100)
}
