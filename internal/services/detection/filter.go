package detection

import (
	"sync"
	"time"

	"github.com/pranav24547/Ai-Surveillance-System/internal/models"
)

// PersonClass is the label emitted for high-confidence person detections when the person rule is on.
const PersonClass = "person_detected"

// FilterConfig is the detection acceptance policy.
type FilterConfig struct {
	Threshold       float64
	Classes         []string
	Aliases         map[string]string
	PersonAlerts    bool
	PersonThreshold float64
	CooldownFrames  int
}

// Filter turns raw model output into accepted detections and applies the batch cooldown: once a
// batch is emitted, further batches are suppressed until CooldownFrames frames have passed.
type Filter struct {
	mu sync.Mutex

	threshold       float64
	targets         map[string]struct{}
	aliases         map[string]string
	personAlerts    bool
	personThreshold float64
	cooldownFrames  int64

	fired     bool
	lastFired int64
}

func NewFilter(cfg FilterConfig) *Filter {
	targets := make(map[string]struct{}, len(cfg.Classes))
	for _, c := range cfg.Classes {
		targets[c] = struct{}{}
	}
	aliases := make(map[string]string, len(cfg.Aliases))
	for k, v := range cfg.Aliases {
		aliases[k] = v
	}

	return &Filter{
		threshold:       clamp(cfg.Threshold),
		targets:         targets,
		aliases:         aliases,
		personAlerts:    cfg.PersonAlerts,
		personThreshold: cfg.PersonThreshold,
		cooldownFrames:  int64(cfg.CooldownFrames),
	}
}

// Apply filters raw detections for frame seq. It returns nil while the batch cooldown is active.
func (f *Filter) Apply(raw []models.RawDetection, seq int64, ts time.Time) []models.Detection {
	f.mu.Lock()
	defer f.mu.Unlock()

	var detections []models.Detection
	for _, r := range raw {
		if r.Score < f.threshold {
			continue
		}

		class, ok := f.classify(r)
		if !ok {
			continue
		}

		detections = append(detections, models.Detection{
			ClassName:  class,
			Confidence: r.Score,
			BBox:       toBBox(r.Box),
			Timestamp:  ts,
			FrameSeq:   seq,
		})
	}

	if len(detections) == 0 {
		return nil
	}

	if f.fired && seq-f.lastFired < f.cooldownFrames {
		return nil
	}
	f.fired = true
	f.lastFired = seq

	return detections
}

func (f *Filter) classify(r models.RawDetection) (string, bool) {
	if _, ok := f.targets[r.Class]; ok {
		return r.Class, true
	}
	if alias, ok := f.aliases[r.Class]; ok {
		return alias, true
	}
	if f.personAlerts && r.Class == "person" && r.Score > f.personThreshold {
		return PersonClass, true
	}
	return "", false
}

// SetThreshold updates the confidence threshold, clamped to [0,1], and returns the applied value.
func (f *Filter) SetThreshold(threshold float64) float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.threshold = clamp(threshold)
	return f.threshold
}

func (f *Filter) Threshold() float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.threshold
}

// Reset forgets the last emitted batch; a new pipeline run starts with a clean cooldown.
func (f *Filter) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fired = false
	f.lastFired = 0
}

// Classes returns the configured target classes.
func (f *Filter) Classes() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	classes := make([]string, 0, len(f.targets))
	for c := range f.targets {
		classes = append(classes, c)
	}
	return classes
}

func clamp(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}

func toBBox(box []float64) models.BBox {
	var b models.BBox
	for i := 0; i < len(box) && i < 4; i++ {
		b[i] = int(box[i])
	}
	if b[0] > b[2] {
		b[0], b[2] = b[2], b[0]
	}
	if b[1] > b[3] {
		b[1], b[3] = b[3], b[1]
	}
	return b
}
