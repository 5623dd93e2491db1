package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const DefaultPath = "config.yaml"

// DotEnvPath is loaded into the process environment before overrides are applied. Variables that
// are already set win over the file.
var DotEnvPath = ".env"

// Config is the whole service configuration. Values come from the YAML file first and are then
// overridden by environment variables.
type Config struct {
	Detection struct {
		Endpoint            string            `yaml:"endpoint" env:"DETECTION_ENDPOINT"`
		Timeout             time.Duration     `yaml:"timeout" env:"DETECTION_TIMEOUT"`
		ConfidenceThreshold float64           `yaml:"confidence_threshold" env:"DETECTION_CONFIDENCE_THRESHOLD"`
		Classes             []string          `yaml:"classes" env:"DETECTION_CLASSES" envSeparator:","`
		ClassAliases        map[string]string `yaml:"class_aliases"`
		PersonAlerts        bool              `yaml:"person_alerts" env:"DETECTION_PERSON_ALERTS"`
		PersonThreshold     float64           `yaml:"person_threshold" env:"DETECTION_PERSON_THRESHOLD"`
		CooldownFrames      int               `yaml:"cooldown_frames" env:"DETECTION_COOLDOWN_FRAMES"`
	} `yaml:"detection"`

	Video struct {
		Source      string        `yaml:"source" env:"VIDEO_SOURCE"`
		Location    string        `yaml:"location" env:"VIDEO_LOCATION"`
		FrameWidth  int           `yaml:"frame_width" env:"VIDEO_FRAME_WIDTH"`
		FrameHeight int           `yaml:"frame_height" env:"VIDEO_FRAME_HEIGHT"`
		FPS         int           `yaml:"fps" env:"VIDEO_FPS"`
		BufferSize  int           `yaml:"buffer_size" env:"VIDEO_BUFFER_SIZE"`
		JPEGQuality int           `yaml:"jpeg_quality" env:"VIDEO_JPEG_QUALITY"`
		StopTimeout time.Duration `yaml:"stop_timeout" env:"VIDEO_STOP_TIMEOUT"`
	} `yaml:"video"`

	Alerts struct {
		Enabled         bool          `yaml:"enabled" env:"ALERTS_ENABLED"`
		CooldownSeconds int           `yaml:"cooldown_seconds" env:"ALERTS_COOLDOWN_SECONDS"`
		HistorySize     int           `yaml:"history_size" env:"ALERTS_HISTORY_SIZE"`
		DispatchTimeout time.Duration `yaml:"dispatch_timeout" env:"ALERTS_DISPATCH_TIMEOUT"`

		SMS      SMSConfig      `yaml:"sms"`
		Email    EmailConfig    `yaml:"email"`
		Telegram TelegramConfig `yaml:"telegram"`
		WhatsApp WhatsAppConfig `yaml:"whatsapp"`
		Kafka    KafkaAlerts    `yaml:"kafka"`
		MQTT     MQTTConfig     `yaml:"mqtt"`
	} `yaml:"alerts"`

	Storage struct {
		EvidencePath        string `yaml:"evidence_path" env:"STORAGE_EVIDENCE_PATH"`
		MaxEvidenceFiles    int    `yaml:"max_evidence_files" env:"STORAGE_MAX_EVIDENCE_FILES"`
		SaveAnnotatedFrames bool   `yaml:"save_annotated_frames" env:"STORAGE_SAVE_ANNOTATED_FRAMES"`
		JPEGQuality         int    `yaml:"jpeg_quality" env:"STORAGE_JPEG_QUALITY"`

		Minio struct {
			Enabled   bool   `yaml:"enabled" env:"MINIO_ENABLED"`
			Endpoint  string `yaml:"endpoint" env:"MINIO_ENDPOINT"`
			AccessKey string `yaml:"access_key" env:"MINIO_ACCESS_KEY"`
			SecretKey string `yaml:"secret_key" env:"MINIO_SECRET_KEY"`
			Bucket    string `yaml:"bucket" env:"MINIO_BUCKET"`
			Secure    bool   `yaml:"secure" env:"MINIO_SECURE"`
		} `yaml:"minio"`
	} `yaml:"storage"`

	Control struct {
		Brokers []string `yaml:"brokers" env:"CONTROL_KAFKA_BROKERS" envSeparator:","`
		GroupID string   `yaml:"group_id" env:"CONTROL_KAFKA_GROUP_ID"`
		Topic   string   `yaml:"topic" env:"CONTROL_KAFKA_TOPIC"`
	} `yaml:"control"`

	Server struct {
		Host    string   `yaml:"host" env:"SERVER_HOST"`
		Port    int      `yaml:"port" env:"SERVER_PORT"`
		APIKeys []string `yaml:"api_keys" env:"SERVER_API_KEYS" envSeparator:","`
	} `yaml:"server"`

	Log struct {
		Level  string `yaml:"level" env:"LOG_LEVEL"`
		Pretty bool   `yaml:"pretty" env:"LOG_PRETTY"`
	} `yaml:"log"`
}

type SMSConfig struct {
	Enabled          bool     `yaml:"enabled" env:"SMS_ENABLED"`
	TwilioAccountSID string   `yaml:"twilio_account_sid" env:"TWILIO_ACCOUNT_SID"`
	TwilioAuthToken  string   `yaml:"twilio_auth_token" env:"TWILIO_AUTH_TOKEN"`
	FromNumber       string   `yaml:"from_number" env:"SMS_FROM_NUMBER"`
	ToNumbers        []string `yaml:"to_numbers" env:"SMS_TO_NUMBERS" envSeparator:","`
}

type EmailConfig struct {
	Enabled        bool     `yaml:"enabled" env:"EMAIL_ENABLED"`
	SMTPServer     string   `yaml:"smtp_server" env:"EMAIL_SMTP_SERVER"`
	SMTPPort       int      `yaml:"smtp_port" env:"EMAIL_SMTP_PORT"`
	UseTLS         bool     `yaml:"use_tls" env:"EMAIL_USE_TLS"`
	SenderEmail    string   `yaml:"sender_email" env:"EMAIL_SENDER"`
	SenderPassword string   `yaml:"sender_password" env:"EMAIL_PASSWORD"`
	Recipients     []string `yaml:"recipients" env:"EMAIL_RECIPIENTS" envSeparator:","`
}

type TelegramConfig struct {
	Enabled  bool     `yaml:"enabled" env:"TELEGRAM_ENABLED"`
	BotToken string   `yaml:"bot_token" env:"TELEGRAM_BOT_TOKEN"`
	ChatIDs  []string `yaml:"chat_ids" env:"TELEGRAM_CHAT_IDS" envSeparator:","`
	BaseURL  string   `yaml:"base_url" env:"TELEGRAM_BASE_URL"`
}

type WhatsAppConfig struct {
	Enabled      bool     `yaml:"enabled" env:"WHATSAPP_ENABLED"`
	InstanceID   string   `yaml:"instance_id" env:"WHATSAPP_INSTANCE_ID"`
	Token        string   `yaml:"token" env:"WHATSAPP_TOKEN"`
	PhoneNumbers []string `yaml:"phone_numbers" env:"WHATSAPP_PHONE_NUMBERS" envSeparator:","`
	BaseURL      string   `yaml:"base_url" env:"WHATSAPP_BASE_URL"`
}

type KafkaAlerts struct {
	Enabled bool     `yaml:"enabled" env:"ALERTS_KAFKA_ENABLED"`
	Brokers []string `yaml:"brokers" env:"ALERTS_KAFKA_BROKERS" envSeparator:","`
	Topic   string   `yaml:"topic" env:"ALERTS_KAFKA_TOPIC"`
}

type MQTTConfig struct {
	Enabled  bool   `yaml:"enabled" env:"MQTT_ENABLED"`
	Broker   string `yaml:"broker" env:"MQTT_BROKER"`
	ClientID string `yaml:"client_id" env:"MQTT_CLIENT_ID"`
	Topic    string `yaml:"topic" env:"MQTT_TOPIC"`
	Username string `yaml:"username" env:"MQTT_USERNAME"`
	Password string `yaml:"password" env:"MQTT_PASSWORD"`
	QoS      byte   `yaml:"qos" env:"MQTT_QOS"`
}

// Default returns a configuration with every field set to its default value.
func Default() *Config {
	cfg := &Config{}

	cfg.Detection.Endpoint = "http://localhost:8000"
	cfg.Detection.Timeout = 5 * time.Second
	cfg.Detection.ConfidenceThreshold = 0.70
	cfg.Detection.Classes = []string{"gun", "knife", "rifle", "pistol"}
	cfg.Detection.PersonThreshold = 0.5
	cfg.Detection.CooldownFrames = 30

	cfg.Video.Source = "data/frames"
	cfg.Video.Location = "Camera 1"
	cfg.Video.FrameWidth = 640
	cfg.Video.FrameHeight = 480
	cfg.Video.FPS = 30
	cfg.Video.BufferSize = 10
	cfg.Video.JPEGQuality = 80
	cfg.Video.StopTimeout = time.Second

	cfg.Alerts.Enabled = true
	cfg.Alerts.CooldownSeconds = 60
	cfg.Alerts.HistorySize = 100
	cfg.Alerts.DispatchTimeout = 15 * time.Second
	cfg.Alerts.Email.SMTPServer = "smtp.gmail.com"
	cfg.Alerts.Email.SMTPPort = 587
	cfg.Alerts.Email.UseTLS = true
	cfg.Alerts.Telegram.BaseURL = "https://api.telegram.org"
	cfg.Alerts.WhatsApp.BaseURL = "https://api.ultramsg.com"
	cfg.Alerts.Kafka.Topic = "surveillance-alerts"
	cfg.Alerts.MQTT.ClientID = "surveillance"
	cfg.Alerts.MQTT.Topic = "surveillance/alerts"
	cfg.Alerts.MQTT.QoS = 1

	cfg.Storage.EvidencePath = "data/evidence"
	cfg.Storage.MaxEvidenceFiles = 1000
	cfg.Storage.SaveAnnotatedFrames = true
	cfg.Storage.JPEGQuality = 95
	cfg.Storage.Minio.Bucket = "evidence"

	cfg.Control.GroupID = "surveillance-control"
	cfg.Control.Topic = "surveillance-control"

	cfg.Server.Host = "0.0.0.0"
	cfg.Server.Port = 8000

	cfg.Log.Level = "info"

	return cfg
}

// LoadConfig reads the YAML file at path (DefaultPath when empty) on top of the defaults and
// applies environment overrides, including those from DotEnvPath. Missing files are not an error.
func LoadConfig(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = DefaultPath
	}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("read config %s: %w", path, err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := godotenv.Load(DotEnvPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load %s: %w", DotEnvPath, err)
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate rejects values the pipeline cannot run with.
func (c *Config) Validate() error {
	var errs []error

	if c.Detection.ConfidenceThreshold < 0 || c.Detection.ConfidenceThreshold > 1 {
		errs = append(errs, fmt.Errorf("detection.confidence_threshold must be in [0,1], got %v", c.Detection.ConfidenceThreshold))
	}
	if c.Detection.CooldownFrames < 0 {
		errs = append(errs, fmt.Errorf("detection.cooldown_frames must not be negative"))
	}
	if c.Video.FPS <= 0 {
		errs = append(errs, fmt.Errorf("video.fps must be positive, got %d", c.Video.FPS))
	}
	if c.Video.BufferSize <= 0 {
		errs = append(errs, fmt.Errorf("video.buffer_size must be positive, got %d", c.Video.BufferSize))
	}
	if c.Alerts.CooldownSeconds < 0 {
		errs = append(errs, fmt.Errorf("alerts.cooldown_seconds must not be negative"))
	}
	if c.Alerts.HistorySize <= 0 {
		errs = append(errs, fmt.Errorf("alerts.history_size must be positive, got %d", c.Alerts.HistorySize))
	}
	if c.Storage.MaxEvidenceFiles <= 0 {
		errs = append(errs, fmt.Errorf("storage.max_evidence_files must be positive, got %d", c.Storage.MaxEvidenceFiles))
	}
	if c.Storage.EvidencePath == "" {
		errs = append(errs, fmt.Errorf("storage.evidence_path is required"))
	}

	return errors.Join(errs...)
}

// Addr is the listen address of the HTTP server.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
