package runner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/pranav24547/Ai-Surveillance-System/internal/alerts"
	"github.com/pranav24547/Ai-Surveillance-System/internal/evidence"
	"github.com/pranav24547/Ai-Surveillance-System/internal/kafka"
	"github.com/pranav24547/Ai-Surveillance-System/internal/logger"
	"github.com/pranav24547/Ai-Surveillance-System/internal/models"
	"github.com/pranav24547/Ai-Surveillance-System/internal/pipeline"
	"github.com/pranav24547/Ai-Surveillance-System/internal/services/detection"
)

const sourceErrorMessage = "Failed to open video source"

var ErrUnknownCommand = errors.New("unknown command")

// Stream is the frame pipeline.
type Stream interface {
	Start(ctx context.Context) error
	Stop()
	Running() bool
	Status() pipeline.Status
}

// Audience is the set of live viewers.
type Audience interface {
	Count() int
	BroadcastEvent(event any)
}

type Status struct {
	Status        string          `json:"status"`
	UptimeSeconds float64         `json:"uptime_seconds"`
	Viewers       int             `json:"viewers"`
	Streaming     bool            `json:"streaming"`
	Detections    int64           `json:"detections"`
	Threshold     float64         `json:"confidence_threshold"`
	Video         pipeline.Status `json:"video"`
	Alerts        alerts.Status   `json:"alerts"`
	Evidence      evidence.Stats  `json:"evidence"`
	Control       map[string]bool `json:"control"`
}

// Runner keeps exactly one pipeline run alive while viewers are connected and applies operator
// commands coming from Kafka or the HTTP API.
type Runner struct {
	stream      Stream
	viewers     Audience
	coordinator *alerts.Coordinator
	store       *evidence.Store
	filter      *detection.Filter
	consumer    *kafka.Consumer
	location    string

	startedAt time.Time
	log       zerolog.Logger

	mu     sync.Mutex
	syncCh chan struct{}
}

func New(stream Stream, viewers Audience, coordinator *alerts.Coordinator, store *evidence.Store, filter *detection.Filter, consumer *kafka.Consumer, location string) *Runner {
	return &Runner{
		stream:      stream,
		viewers:     viewers,
		coordinator: coordinator,
		store:       store,
		filter:      filter,
		consumer:    consumer,
		location:    location,
		startedAt:   time.Now(),
		log:         logger.Component("runner"),
		syncCh:      make(chan struct{}, 1),
	}
}

// Notify asks the reconcile loop to re-check the viewer count. It never blocks, so it is safe to
// call from viewer callbacks running on the pipeline goroutine.
func (r *Runner) Notify() {
	select {
	case r.syncCh <- struct{}{}:
	default:
	}
}

// Run reconciles the pipeline with the viewer count until ctx is cancelled, then stops it.
func (r *Runner) Run(ctx context.Context) {
	r.log.Info().Msg("runner started")
	for {
		select {
		case <-ctx.Done():
			r.stream.Stop()
			r.log.Info().Msg("runner shutting down")
			return
		case <-r.syncCh:
			r.Sync(ctx)
		}
	}
}

// Sync starts the pipeline when somebody is watching and stops it when nobody is.
func (r *Runner) Sync(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()

	viewers := r.viewers.Count()
	running := r.stream.Running()

	switch {
	case viewers > 0 && !running:
		if err := r.stream.Start(ctx); err != nil {
			r.log.Error().Err(err).Msg("pipeline start failed")
			r.viewers.BroadcastEvent(models.StreamEvent{Type: "error", Message: sourceErrorMessage})
			return
		}
		r.log.Info().Int("viewers", viewers).Msg("streaming started")
	case viewers == 0 && running:
		r.stream.Stop()
		r.log.Info().Msg("no viewers left, streaming stopped")
	}
}

// ListenAndRun applies control commands from Kafka. A message is acknowledged only after it was
// handled successfully.
func (r *Runner) ListenAndRun(ctx context.Context) {
	if r.consumer == nil {
		return
	}

	r.log.Info().Msg("listening for Kafka commands")
	r.consumer.StartListening(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-r.consumer.Messages():
			if !ok {
				return
			}

			var cmd models.ControlCommand
			if err := json.Unmarshal(msg.Value, &cmd); err != nil {
				r.log.Warn().Err(err).Msg("invalid command format")
				continue
			}

			if _, err := r.Apply(ctx, cmd); err != nil {
				r.log.Warn().Err(err).Str("action", string(cmd.Action)).Msg("command failed")
				continue
			}

			msg.Ack()
		}
	}
}

// Apply executes one operator command and returns its result.
func (r *Runner) Apply(ctx context.Context, cmd models.ControlCommand) (any, error) {
	log := r.log.With().Str("action", string(cmd.Action)).Logger()

	switch cmd.Action {
	case models.CommandResetCooldown:
		r.coordinator.ResetCooldown(cmd.WeaponType)
		return map[string]string{"reset": lo.CoalesceOrEmpty(cmd.WeaponType, "all")}, nil

	case models.CommandTestAlert:
		res := r.coordinator.Trigger(ctx, alerts.TriggerRequest{
			WeaponType: lo.CoalesceOrEmpty(cmd.WeaponType, "TEST"),
			Confidence: 0.99,
			Location:   lo.CoalesceOrEmpty(r.location, "Test Location"),
			Force:      true,
		})
		log.Info().Bool("triggered", res.Triggered).Msg("test alert sent")
		return res, nil

	case models.CommandClearEvidence:
		n, err := r.store.ClearAll()
		if err != nil {
			return nil, fmt.Errorf("clear evidence: %w", err)
		}
		return map[string]int{"cleared": n}, nil

	case models.CommandSetThreshold:
		if cmd.Value < 0 || cmd.Value > 1 {
			return nil, fmt.Errorf("threshold must be in [0,1], got %v", cmd.Value)
		}
		applied := r.filter.SetThreshold(cmd.Value)
		log.Info().Float64("threshold", applied).Msg("confidence threshold updated")
		return map[string]float64{"confidence_threshold": applied}, nil

	case models.CommandSetAlertsEnabled:
		if cmd.Enabled == nil {
			return nil, errors.New("enabled flag is required")
		}
		r.coordinator.SetEnabled(*cmd.Enabled)
		return map[string]bool{"alerts_enabled": *cmd.Enabled}, nil

	case models.CommandSetCooldown:
		if cmd.Value < 0 {
			return nil, fmt.Errorf("cooldown must not be negative, got %v", cmd.Value)
		}
		r.coordinator.SetCooldown(time.Duration(cmd.Value * float64(time.Second)))
		return map[string]float64{"cooldown_seconds": cmd.Value}, nil
	}

	return nil, fmt.Errorf("%w: %q", ErrUnknownCommand, cmd.Action)
}

func (r *Runner) Status() Status {
	video := r.stream.Status()
	return Status{
		Status:        "running",
		UptimeSeconds: time.Since(r.startedAt).Seconds(),
		Viewers:       r.viewers.Count(),
		Streaming:     video.Running,
		Detections:    video.Detections,
		Threshold:     r.filter.Threshold(),
		Video:         video,
		Alerts:        r.coordinator.Status(),
		Evidence:      r.store.Statistics(),
		Control:       map[string]bool{"kafka": r.consumer != nil},
	}
}

