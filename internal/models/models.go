package models

import "time"

type CommandAction string

const (
	CommandResetCooldown    CommandAction = "reset_cooldown"
	CommandTestAlert        CommandAction = "test_alert"
	CommandClearEvidence    CommandAction = "clear_evidence"
	CommandSetThreshold     CommandAction = "set_threshold"
	CommandSetAlertsEnabled CommandAction = "set_alerts_enabled"
	CommandSetCooldown      CommandAction = "set_cooldown"
)

// BBox holds pixel coordinates x1, y1, x2, y2.
type BBox [4]int

// RawDetection is one object as returned by the detection service.
type RawDetection struct {
	Class string    `json:"class"`
	Score float64   `json:"score"`
	Box   []float64 `json:"box"` // [x1, y1, x2, y2]
}

// Detection is an accepted finding from a single frame.
type Detection struct {
	ClassName  string    `json:"class_name"`
	Confidence float64   `json:"confidence"`
	BBox       BBox      `json:"bbox"`
	Timestamp  time.Time `json:"timestamp"`
	FrameSeq   int64     `json:"frame_id"`
}

// Alert is the payload handed to every notification channel.
type Alert struct {
	ID           string    `json:"id"`
	WeaponType   string    `json:"weapon_type"`
	Confidence   float64   `json:"confidence"`
	Location     string    `json:"location"`
	Timestamp    time.Time `json:"timestamp"`
	EvidenceID   string    `json:"evidence_id,omitempty"`
	EvidencePath string    `json:"-"`
}

// AlertRecord is an entry of the alert history.
type AlertRecord struct {
	WeaponType   string    `json:"weapon_type"`
	Confidence   float64   `json:"confidence"`
	Location     string    `json:"location"`
	Timestamp    time.Time `json:"timestamp"`
	Channels     []string  `json:"channels"`
	EvidenceID   string    `json:"evidence_id,omitempty"`
	EvidencePath string    `json:"evidence_path,omitempty"`
}

// EvidenceRecord is the persisted metadata of one saved detection.
type EvidenceRecord struct {
	ID            string    `json:"id"`
	WeaponType    string    `json:"weapon_type"`
	Confidence    float64   `json:"confidence"`
	Timestamp     time.Time `json:"timestamp"`
	Location      string    `json:"location"`
	BBox          BBox      `json:"bbox"`
	ImagePath     string    `json:"image_path"`
	AnnotatedPath string    `json:"annotated_path,omitempty"`
}

// ControlCommand arrives on the control topic.
type ControlCommand struct {
	Action     CommandAction `json:"action"`
	WeaponType string        `json:"weapon_type,omitempty"`
	Value      float64       `json:"value,omitempty"`
	Enabled    *bool         `json:"enabled,omitempty"`
}

// StreamEvent is a structured message sent to live viewers.
type StreamEvent struct {
	Type    string     `json:"type"`
	Data    *Detection `json:"data,omitempty"`
	Message string     `json:"message,omitempty"`
}
