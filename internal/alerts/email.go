package alerts

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/base64"
	"fmt"
	"html/template"
	"io"
	"mime"
	"mime/multipart"
	"net"
	"net/smtp"
	"net/textproto"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pranav24547/Ai-Surveillance-System/internal/config"
	"github.com/pranav24547/Ai-Surveillance-System/internal/models"
)

var emailBody = template.Must(template.New("alert").Parse(`<html>
<body style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto;">
<div style="background: #cc0000; color: white; padding: 20px; text-align: center;">
<h1 style="margin: 0;">SECURITY ALERT</h1>
<p style="margin: 10px 0 0 0;">Immediate Attention Required</p>
</div>
<table style="width: 100%; border-collapse: collapse; padding: 20px;">
<tr><td><b>Weapon Type:</b></td><td style="color: #cc0000;"><b>{{.Weapon}}</b></td></tr>
<tr><td><b>Confidence:</b></td><td>{{.Confidence}}</td></tr>
<tr><td><b>Location:</b></td><td>{{.Location}}</td></tr>
<tr><td><b>Timestamp:</b></td><td>{{.Time}}</td></tr>
</table>
<p style="font-size: 12px; text-align: center;">Smart Surveillance System - Automated Alert</p>
</body>
</html>
`))

// Email sends an HTML alert with the evidence image attached over SMTP.
type Email struct {
	counters
	cfg config.EmailConfig
}

func NewEmail(cfg config.EmailConfig) *Email {
	return &Email{cfg: cfg}
}

func (e *Email) Kind() string { return KindEmail }

func (e *Email) Init() error {
	if !e.cfg.Enabled || e.cfg.SenderEmail == "" || e.cfg.SenderPassword == "" || len(e.cfg.Recipients) == 0 {
		e.setReady(false)
		return ErrNotConfigured
	}
	if e.cfg.SMTPServer == "" || e.cfg.SMTPPort <= 0 {
		e.setReady(false)
		return fmt.Errorf("email: invalid smtp server %q:%d", e.cfg.SMTPServer, e.cfg.SMTPPort)
	}
	e.setReady(true)
	return nil
}

func (e *Email) Send(ctx context.Context, alert models.Alert) error {
	msg, err := buildEmail(e.cfg.SenderEmail, e.cfg.Recipients, alert)
	if err != nil {
		return e.record(err)
	}
	return e.record(e.deliver(ctx, msg))
}

func (e *Email) deliver(ctx context.Context, msg []byte) error {
	addr := net.JoinHostPort(e.cfg.SMTPServer, strconv.Itoa(e.cfg.SMTPPort))

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("dial smtp %s: %w", addr, err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	client, err := smtp.NewClient(conn, e.cfg.SMTPServer)
	if err != nil {
		conn.Close()
		return fmt.Errorf("smtp handshake: %w", err)
	}
	defer client.Close()

	if e.cfg.UseTLS {
		if err := client.StartTLS(&tls.Config{ServerName: e.cfg.SMTPServer}); err != nil {
			return fmt.Errorf("smtp starttls: %w", err)
		}
	}
	auth := smtp.PlainAuth("", e.cfg.SenderEmail, e.cfg.SenderPassword, e.cfg.SMTPServer)
	if err := client.Auth(auth); err != nil {
		return fmt.Errorf("smtp auth: %w", err)
	}
	if err := client.Mail(e.cfg.SenderEmail); err != nil {
		return fmt.Errorf("smtp mail from: %w", err)
	}
	for _, rcpt := range e.cfg.Recipients {
		if err := client.Rcpt(rcpt); err != nil {
			return fmt.Errorf("smtp rcpt %s: %w", rcpt, err)
		}
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("smtp data: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		return fmt.Errorf("smtp write: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("smtp data close: %w", err)
	}
	return client.Quit()
}

// buildEmail renders a multipart/mixed message. A missing evidence file is skipped.
func buildEmail(from string, to []string, alert models.Alert) ([]byte, error) {
	var html bytes.Buffer
	if err := emailBody.Execute(&html, map[string]string{
		"Weapon":     strings.ToUpper(alert.WeaponType),
		"Confidence": percent(alert.Confidence),
		"Location":   alert.Location,
		"Time":       alert.Timestamp.Format(timeLayout),
	}); err != nil {
		return nil, fmt.Errorf("render email: %w", err)
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	part, err := mw.CreatePart(textproto.MIMEHeader{
		"Content-Type":              {"text/html; charset=UTF-8"},
		"Content-Transfer-Encoding": {"base64"},
	})
	if err != nil {
		return nil, err
	}
	if err := writeBase64(part, html.Bytes()); err != nil {
		return nil, err
	}

	if alert.EvidencePath != "" {
		if data, err := os.ReadFile(alert.EvidencePath); err == nil {
			name := filepath.Base(alert.EvidencePath)
			part, err := mw.CreatePart(textproto.MIMEHeader{
				"Content-Type":              {"application/octet-stream"},
				"Content-Transfer-Encoding": {"base64"},
				"Content-Disposition":       {fmt.Sprintf(`attachment; filename="%s"`, name)},
			})
			if err != nil {
				return nil, err
			}
			if err := writeBase64(part, data); err != nil {
				return nil, err
			}
		}
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	var msg bytes.Buffer
	subject := fmt.Sprintf("SECURITY ALERT: %s Detected", strings.ToUpper(alert.WeaponType))
	fmt.Fprintf(&msg, "From: %s\r\n", from)
	fmt.Fprintf(&msg, "To: %s\r\n", strings.Join(to, ", "))
	fmt.Fprintf(&msg, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", subject))
	fmt.Fprintf(&msg, "Date: %s\r\n", alert.Timestamp.Format(time.RFC1123Z))
	msg.WriteString("MIME-Version: 1.0\r\n")
	fmt.Fprintf(&msg, "Content-Type: multipart/mixed; boundary=%s\r\n\r\n", mw.Boundary())
	msg.Write(body.Bytes())

	return msg.Bytes(), nil
}

// writeBase64 wraps encoded lines at 76 characters.
func writeBase64(w io.Writer, data []byte) error {
	enc := base64.StdEncoding.EncodeToString(data)
	for len(enc) > 76 {
		if _, err := w.Write([]byte(enc[:76] + "\r\n")); err != nil {
			return err
		}
		enc = enc[76:]
	}
	_, err := w.Write([]byte(enc + "\r\n"))
	return err
}

func (e *Email) Status() ChannelStatus {
	return e.status(len(e.cfg.Recipients), map[string]string{
		"smtp_server": e.cfg.SMTPServer,
		"sender":      e.cfg.SenderEmail,
	})
}
