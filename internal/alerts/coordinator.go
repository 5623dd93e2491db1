package alerts

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"

	"github.com/pranav24547/Ai-Surveillance-System/internal/logger"
	"github.com/pranav24547/Ai-Surveillance-System/internal/models"
)

const (
	ReasonDisabled = "alerts_disabled"
	ReasonClosed   = "coordinator_closed"

	// LogChannel is recorded in history when no channel delivered the alert.
	LogChannel = "log"

	DefaultDispatchTimeout = 15 * time.Second
)

type TriggerRequest struct {
	WeaponType   string  `json:"weapon_type"`
	Confidence   float64 `json:"confidence"`
	Location     string  `json:"location"`
	EvidenceID   string  `json:"evidence_id,omitempty"`
	EvidencePath string  `json:"evidence_path,omitempty"`
	Force        bool    `json:"force"`
}

type TriggerResult struct {
	Triggered bool            `json:"triggered"`
	Channels  map[string]bool `json:"channels"`
	Reason    string          `json:"reason,omitempty"`
}

type Options struct {
	Enabled         bool
	Cooldown        time.Duration
	HistorySize     int
	DispatchTimeout time.Duration
}

type Status struct {
	Enabled         bool                     `json:"enabled"`
	CooldownSeconds int                      `json:"cooldown_seconds"`
	Channels        map[string]ChannelStatus `json:"channels"`
	AlertCount      int                      `json:"alert_count"`
}

// Coordinator owns the per-class cooldown clock, the configured channels and the alert history.
type Coordinator struct {
	mu              sync.Mutex
	enabled         bool
	cooldown        time.Duration
	dispatchTimeout time.Duration
	channels        map[string]Channel
	lastAlert       map[string]time.Time
	closed          bool

	history *History
	now     func() time.Time
	log     zerolog.Logger
}

func NewCoordinator(opts Options) *Coordinator {
	if opts.DispatchTimeout <= 0 {
		opts.DispatchTimeout = DefaultDispatchTimeout
	}
	return &Coordinator{
		enabled:         opts.Enabled,
		cooldown:        opts.Cooldown,
		dispatchTimeout: opts.DispatchTimeout,
		channels:        make(map[string]Channel),
		lastAlert:       make(map[string]time.Time),
		history:         NewHistory(opts.HistorySize),
		now:             time.Now,
		log:             logger.Component("alerts"),
	}
}

// ConfigureChannel registers ch, replacing any channel of the same kind, and initializes it. A
// channel that fails to initialize is kept but never dispatched to. Registering the instance that
// is already installed is a no-op.
func (c *Coordinator) ConfigureChannel(ch Channel) {
	c.mu.Lock()
	prev := c.channels[ch.Kind()]
	c.mu.Unlock()
	if prev == ch {
		return
	}

	err := ch.Init()
	switch {
	case errors.Is(err, ErrNotConfigured):
		c.log.Info().Str("channel", ch.Kind()).Msg("channel not configured, disabled")
	case err != nil:
		c.log.Warn().Err(err).Str("channel", ch.Kind()).Msg("channel init failed, disabled")
	default:
		c.log.Info().Str("channel", ch.Kind()).Msg("channel ready")
	}

	c.mu.Lock()
	prev = c.channels[ch.Kind()]
	c.channels[ch.Kind()] = ch
	c.mu.Unlock()

	if prev != nil && prev != ch {
		closeChannel(prev)
	}
}

// Trigger dispatches an alert to every ready channel unless alerts are disabled or the class is
// still cooling down. Force skips the cooldown check.
func (c *Coordinator) Trigger(ctx context.Context, req TriggerRequest) TriggerResult {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return TriggerResult{Reason: ReasonClosed}
	}
	if !c.enabled {
		c.mu.Unlock()
		return TriggerResult{Reason: ReasonDisabled}
	}

	now := c.now()
	if !req.Force {
		if last, ok := c.lastAlert[req.WeaponType]; ok {
			if elapsed := now.Sub(last); elapsed < c.cooldown {
				remaining := int((c.cooldown - elapsed).Seconds())
				c.mu.Unlock()
				return TriggerResult{Reason: fmt.Sprintf("cooldown_active_%ds", remaining)}
			}
		}
	}
	// Reserve the slot before releasing the lock so a concurrent trigger for the same class sees it.
	c.lastAlert[req.WeaponType] = now
	ready := c.readyChannels()
	timeout := c.dispatchTimeout
	c.mu.Unlock()

	alert := models.Alert{
		ID:           uuid.NewString(),
		WeaponType:   req.WeaponType,
		Confidence:   req.Confidence,
		Location:     req.Location,
		Timestamp:    now,
		EvidenceID:   req.EvidenceID,
		EvidencePath: req.EvidencePath,
	}

	// In-flight sends complete even if the caller goes away.
	dispatchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	results := c.dispatch(dispatchCtx, ready, alert)

	delivered := lo.FilterMap(ready, func(ch Channel, _ int) (string, bool) {
		return ch.Kind(), results[ch.Kind()]
	})
	if len(delivered) == 0 {
		delivered = []string{LogChannel}
	}

	// The clock was advanced by the reservation above; an operator reset during dispatch stands.
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		c.log.Debug().Str("class", req.WeaponType).Msg("coordinator closed during dispatch, result discarded")
		return TriggerResult{Triggered: true, Channels: results}
	}

	c.history.Add(models.AlertRecord{
		WeaponType:   req.WeaponType,
		Confidence:   req.Confidence,
		Location:     req.Location,
		Timestamp:    now,
		Channels:     delivered,
		EvidenceID:   req.EvidenceID,
		EvidencePath: req.EvidencePath,
	})

	c.log.Info().
		Str("class", req.WeaponType).
		Float64("confidence", req.Confidence).
		Strs("channels", delivered).
		Bool("forced", req.Force).
		Msg("alert triggered")

	return TriggerResult{Triggered: true, Channels: results}
}

// readyChannels returns ready channels ordered by kind. Callers hold c.mu.
func (c *Coordinator) readyChannels() []Channel {
	kinds := lo.Keys(c.channels)
	sort.Strings(kinds)

	var ready []Channel
	for _, kind := range kinds {
		if ch := c.channels[kind]; ch.Ready() {
			ready = append(ready, ch)
		}
	}
	return ready
}

func (c *Coordinator) dispatch(ctx context.Context, channels []Channel, alert models.Alert) map[string]bool {
	results := make([]bool, len(channels))

	var g errgroup.Group
	for i, ch := range channels {
		g.Go(func() error {
			results[i] = c.send(ctx, ch, alert)
			return nil
		})
	}
	_ = g.Wait()

	out := make(map[string]bool, len(channels))
	for i, ch := range channels {
		out[ch.Kind()] = results[i]
	}
	return out
}

// send converts both errors and panics of a single channel into a false result.
func (c *Coordinator) send(ctx context.Context, ch Channel, alert models.Alert) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error().Str("channel", ch.Kind()).Interface("panic", r).Msg("channel panicked")
			ok = false
		}
	}()

	if err := ch.Send(ctx, alert); err != nil {
		c.log.Warn().Err(err).Str("channel", ch.Kind()).Str("alert_id", alert.ID).Msg("alert delivery failed")
		return false
	}
	return true
}

func (c *Coordinator) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	return Status{
		Enabled:         c.enabled,
		CooldownSeconds: int(c.cooldown / time.Second),
		Channels: lo.MapValues(c.channels, func(ch Channel, _ string) ChannelStatus {
			return ch.Status()
		}),
		AlertCount: c.history.Len(),
	}
}

// Recent returns the latest alert records, newest first.
func (c *Coordinator) Recent(limit int) []models.AlertRecord {
	return c.history.Recent(limit)
}

func (c *Coordinator) SetEnabled(enabled bool) {
	c.mu.Lock()
	c.enabled = enabled
	c.mu.Unlock()
	c.log.Info().Bool("enabled", enabled).Msg("alerts toggled")
}

func (c *Coordinator) Enabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.enabled
}

func (c *Coordinator) SetCooldown(d time.Duration) {
	if d < 0 {
		d = 0
	}
	c.mu.Lock()
	c.cooldown = d
	c.mu.Unlock()
	c.log.Info().Dur("cooldown", d).Msg("alert cooldown updated")
}

// ResetCooldown clears the clock of one class, or of every class when weaponType is empty.
func (c *Coordinator) ResetCooldown(weaponType string) {
	c.mu.Lock()
	if weaponType == "" {
		clear(c.lastAlert)
	} else {
		delete(c.lastAlert, weaponType)
	}
	c.mu.Unlock()

	target := weaponType
	if target == "" {
		target = "all"
	}
	c.log.Info().Str("class", target).Msg("alert cooldown reset")
}

// Close stops accepting triggers and releases channels holding connections. Results of
// dispatches still in flight are discarded.
func (c *Coordinator) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	channels := lo.Values(c.channels)
	c.mu.Unlock()

	var errs []error
	for _, ch := range channels {
		if err := closeChannel(ch); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func closeChannel(ch Channel) error {
	if closer, ok := ch.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}
