// Package pipeline reads frames from a video source, runs detection and fans the results out to
// evidence storage, the alert coordinator and live viewers.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/pranav24547/Ai-Surveillance-System/internal/alerts"
	"github.com/pranav24547/Ai-Surveillance-System/internal/logger"
	"github.com/pranav24547/Ai-Surveillance-System/internal/models"
	"github.com/pranav24547/Ai-Surveillance-System/internal/services/detection"
	"github.com/pranav24547/Ai-Surveillance-System/internal/video"
)

// EvidenceSaver persists one detection.
type EvidenceSaver interface {
	Save(raw, annotated image.Image, weaponType string, confidence float64, bbox models.BBox, location string) (models.EvidenceRecord, error)
}

// AlertTrigger is the alert coordinator as seen by the pipeline.
type AlertTrigger interface {
	Trigger(ctx context.Context, req alerts.TriggerRequest) alerts.TriggerResult
}

// Broadcaster delivers encoded frames and events to live viewers.
type Broadcaster interface {
	BroadcastFrame(jpeg []byte)
	BroadcastEvent(event any)
}

type Config struct {
	Source      string
	Location    string
	Width       int
	Height      int
	FPS         int
	BufferSize  int
	JPEGQuality int
	StopTimeout time.Duration
}

type Deps struct {
	// OpenSource builds the video source for a new run. Defaults to video.NewSource(cfg.Source).
	OpenSource func() (video.Source, error)
	Detector   detection.Detector
	Filter     *detection.Filter
	Annotator  *detection.Annotator
	Evidence   EvidenceSaver
	Alerts     AlertTrigger
	Sink       Broadcaster
}

type Status struct {
	Running       bool    `json:"running"`
	Source        string  `json:"source"`
	Resolution    string  `json:"resolution"`
	FPS           float64 `json:"fps"`
	FrameCount    int64   `json:"frame_count"`
	Detections    int64   `json:"detections"`
	DroppedFrames int64   `json:"dropped_frames"`
	LastError     string  `json:"last_error,omitempty"`
}

// Pipeline owns at most one active run at a time.
type Pipeline struct {
	cfg  Config
	deps Deps
	log  zerolog.Logger

	mu      sync.Mutex
	run     *run
	last    *run
	lastErr error

	statsMu    sync.Mutex
	frames     int64
	detections int64
	fps        float64
	fpsFrames  int
	fpsSince   time.Time
	dropped    int64
}

type run struct {
	cancel       context.CancelFunc
	source       video.Source
	closeSource  func()
	buffer       *FrameBuffer
	producerDone chan struct{}
	done         chan struct{}
}

func New(cfg Config, deps Deps) *Pipeline {
	if cfg.FPS <= 0 {
		cfg.FPS = 30
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = DefaultBufferSize
	}
	if cfg.JPEGQuality <= 0 {
		cfg.JPEGQuality = 80
	}
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = time.Second
	}
	if deps.OpenSource == nil {
		source := cfg.Source
		deps.OpenSource = func() (video.Source, error) { return video.NewSource(source) }
	}
	if deps.Annotator == nil {
		deps.Annotator = detection.NewAnnotator()
	}

	return &Pipeline{
		cfg:  cfg,
		deps: deps,
		log:  logger.Component("pipeline"),
	}
}

// Start opens the video source and launches the producer and consumer. Calling Start on a running
// pipeline is a no-op. Failure to open the source is returned to the caller.
func (p *Pipeline) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.run != nil {
		return nil
	}

	src, err := p.deps.OpenSource()
	if err != nil {
		p.lastErr = err
		return fmt.Errorf("create video source: %w", err)
	}
	if err := src.Open(); err != nil {
		p.lastErr = err
		return fmt.Errorf("open video source %s: %w", src, err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	var once sync.Once
	r := &run{
		cancel: cancel,
		source: src,
		closeSource: func() {
			once.Do(func() {
				if err := src.Close(); err != nil {
					p.log.Warn().Err(err).Msg("close video source")
				}
			})
		},
		buffer:       NewFrameBuffer(p.cfg.BufferSize),
		producerDone: make(chan struct{}),
		done:         make(chan struct{}),
	}
	p.run = r
	p.last = r
	p.lastErr = nil
	p.deps.Filter.Reset()
	p.resetStats()

	go func() {
		defer close(r.producerDone)
		defer r.buffer.Close()
		if err := p.acquire(runCtx, r.source, r.buffer); err != nil {
			p.log.Error().Err(err).Str("source", src.String()).Msg("video source failed")
			p.setErr(err)
			p.deps.Sink.BroadcastEvent(models.StreamEvent{Type: "error", Message: err.Error()})
		}
	}()

	go func() {
		defer close(r.done)
		p.consume(runCtx, r.buffer)

		p.mu.Lock()
		if p.run == r {
			p.run = nil
		}
		p.mu.Unlock()

		p.statsMu.Lock()
		p.dropped += r.buffer.Dropped()
		p.statsMu.Unlock()

		cancel()
		select {
		case <-r.producerDone:
		case <-time.After(p.cfg.StopTimeout):
		}
		r.closeSource()
		p.log.Info().Str("source", src.String()).Msg("pipeline run finished")
	}()

	p.log.Info().Str("source", src.String()).Int("fps", p.cfg.FPS).Msg("pipeline started")
	return nil
}

// Stop cancels the active run and waits for the producer for at most StopTimeout. If the producer
// is stuck in a read, the source is closed to unblock it.
func (p *Pipeline) Stop() {
	p.mu.Lock()
	r := p.run
	p.run = nil
	p.mu.Unlock()

	if r == nil {
		return
	}

	r.cancel()
	r.buffer.Close()

	select {
	case <-r.producerDone:
	case <-time.After(p.cfg.StopTimeout):
		p.log.Warn().Dur("timeout", p.cfg.StopTimeout).Msg("producer did not stop in time, closing source")
	}
	r.closeSource()

	select {
	case <-r.done:
	case <-time.After(p.cfg.StopTimeout):
		p.log.Warn().Msg("consumer did not stop in time")
	}
	p.log.Info().Msg("pipeline stopped")
}

func (p *Pipeline) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.run != nil
}

// Wait blocks until the most recent run has fully finished, including a consumer that outlived
// Stop's bounded wait, or until ctx is done.
func (p *Pipeline) Wait(ctx context.Context) error {
	p.mu.Lock()
	r := p.last
	p.mu.Unlock()
	if r == nil {
		return nil
	}

	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done is closed when the active run ends. It returns nil when nothing is running.
func (p *Pipeline) Done() <-chan struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.run == nil {
		return nil
	}
	return p.run.done
}

func (p *Pipeline) Status() Status {
	p.mu.Lock()
	running := p.run != nil
	var buffer *FrameBuffer
	if running {
		buffer = p.run.buffer
	}
	lastErr := p.lastErr
	p.mu.Unlock()

	p.statsMu.Lock()
	defer p.statsMu.Unlock()

	st := Status{
		Running:       running,
		Source:        p.cfg.Source,
		Resolution:    fmt.Sprintf("%dx%d", p.cfg.Width, p.cfg.Height),
		FPS:           p.fps,
		FrameCount:    p.frames,
		Detections:    p.detections,
		DroppedFrames: p.dropped,
	}
	if buffer != nil {
		st.DroppedFrames += buffer.Dropped()
	}
	if lastErr != nil {
		st.LastError = lastErr.Error()
	}
	return st
}

// acquire reads frames at the configured rate. A finite source loops back to its first frame; any
// other read failure ends the run.
func (p *Pipeline) acquire(ctx context.Context, src video.Source, buffer *FrameBuffer) error {
	ticker := time.NewTicker(time.Second / time.Duration(p.cfg.FPS))
	defer ticker.Stop()

	var index int64
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		img, err := src.Read()
		switch {
		case errors.Is(err, video.ErrEndOfStream) && src.Finite():
			if err := src.Rewind(); err != nil {
				return fmt.Errorf("rewind %s: %w", src, err)
			}
			index = 0
			p.log.Debug().Str("source", src.String()).Msg("end of stream, looping")
			continue
		case err != nil:
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("read frame from %s: %w", src, err)
		}

		index++
		if !buffer.Push(video.Frame{
			Image:     video.Resize(img, p.cfg.Width, p.cfg.Height),
			Index:     index,
			Timestamp: time.Now(),
		}) {
			return nil
		}
	}
}

// consume processes the newest frame each time one is available.
func (p *Pipeline) consume(ctx context.Context, buffer *FrameBuffer) {
	var seq int64
	for {
		frame, err := buffer.PopLatest(ctx)
		if err != nil {
			return
		}
		seq++
		p.processFrame(ctx, frame, seq)
	}
}

func (p *Pipeline) processFrame(ctx context.Context, frame video.Frame, seq int64) {
	raw, err := p.deps.Detector.Detect(ctx, frame.Image)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		p.log.Warn().Err(err).Int64("seq", seq).Msg("detection failed, skipping frame")
		raw = nil
	}

	detections := p.deps.Filter.Apply(raw, seq, frame.Timestamp)
	annotated := p.deps.Annotator.Annotate(frame.Image, detections)

	for _, det := range detections {
		p.fanOut(ctx, frame.Image, annotated, det)
	}

	data, err := video.EncodeJPEG(annotated, p.cfg.JPEGQuality)
	if err != nil {
		p.log.Warn().Err(err).Msg("encode frame")
	} else {
		p.deps.Sink.BroadcastFrame(data)
	}

	p.countFrame(len(detections))
}

// fanOut saves evidence for one detection, raises an alert referencing it and notifies viewers.
// No alert is raised when the evidence could not be saved.
func (p *Pipeline) fanOut(ctx context.Context, raw, annotated image.Image, det models.Detection) {
	log := p.log.With().Str("class", det.ClassName).Float64("confidence", det.Confidence).Logger()

	rec, err := p.deps.Evidence.Save(raw, annotated, det.ClassName, det.Confidence, det.BBox, p.cfg.Location)
	if err != nil {
		log.Error().Err(err).Msg("save evidence")
	} else {
		path := rec.AnnotatedPath
		if path == "" {
			path = rec.ImagePath
		}
		res := p.deps.Alerts.Trigger(ctx, alerts.TriggerRequest{
			WeaponType:   det.ClassName,
			Confidence:   det.Confidence,
			Location:     p.cfg.Location,
			EvidenceID:   rec.ID,
			EvidencePath: path,
		})
		log.Info().Str("evidence_id", rec.ID).Bool("alerted", res.Triggered).Str("reason", res.Reason).Msg("detection")
	}

	p.deps.Sink.BroadcastEvent(models.StreamEvent{Type: "detection", Data: &det})
}

func (p *Pipeline) setErr(err error) {
	p.mu.Lock()
	p.lastErr = err
	p.mu.Unlock()
}

func (p *Pipeline) resetStats() {
	p.statsMu.Lock()
	defer p.statsMu.Unlock()
	p.frames = 0
	p.dropped = 0
	p.fps = 0
	p.fpsFrames = 0
	p.fpsSince = time.Now()
}

func (p *Pipeline) countFrame(detections int) {
	p.statsMu.Lock()
	defer p.statsMu.Unlock()

	p.frames++
	p.detections += int64(detections)
	p.fpsFrames++
	if elapsed := time.Since(p.fpsSince); elapsed >= time.Second {
		p.fps = float64(p.fpsFrames) / elapsed.Seconds()
		p.fpsFrames = 0
		p.fpsSince = time.Now()
	}
}
