package pipeline

import (
	"context"
	"errors"
	"image"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pranav24547/Ai-Surveillance-System/internal/alerts"
	"github.com/pranav24547/Ai-Surveillance-System/internal/models"
	"github.com/pranav24547/Ai-Surveillance-System/internal/services/detection"
	"github.com/pranav24547/Ai-Surveillance-System/internal/video"
)

type fakeSource struct {
	frames  int
	finite  bool
	openErr error
	readErr error
	block   chan struct{}

	mu      sync.Mutex
	pos     int
	rewinds int
	closed  bool
}

func (s *fakeSource) Open() error { return s.openErr }

func (s *fakeSource) Read() (image.Image, error) {
	if s.block != nil {
		<-s.block
		return nil, video.ErrClosed
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.readErr != nil && s.pos > 0 {
		return nil, s.readErr
	}
	if s.pos >= s.frames {
		return nil, video.ErrEndOfStream
	}
	s.pos++
	return image.NewRGBA(image.Rect(0, 0, 64, 48)), nil
}

func (s *fakeSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed && s.block != nil {
		close(s.block)
	}
	s.closed = true
	return nil
}

func (s *fakeSource) Finite() bool   { return s.finite }
func (s *fakeSource) String() string { return "fake" }

func (s *fakeSource) Rewind() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pos = 0
	s.rewinds++
	return nil
}

func (s *fakeSource) rewindCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rewinds
}

type fakeDetector struct {
	err error
}

func (d *fakeDetector) Detect(context.Context, image.Image) ([]models.RawDetection, error) {
	if d.err != nil {
		return nil, d.err
	}
	return []models.RawDetection{{Class: "gun", Score: 0.93, Box: []float64{5, 5, 20, 20}}}, nil
}

type fakeEvidence struct {
	err     error
	block   chan struct{}
	entered chan struct{}
	once    sync.Once

	mu    sync.Mutex
	saved []models.EvidenceRecord
}

func (e *fakeEvidence) Save(raw, annotated image.Image, weaponType string, confidence float64, bbox models.BBox, location string) (models.EvidenceRecord, error) {
	if e.block != nil {
		e.once.Do(func() { close(e.entered) })
		<-e.block
	}
	if e.err != nil {
		return models.EvidenceRecord{}, e.err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	rec := models.EvidenceRecord{
		ID:            "EVD_1",
		WeaponType:    weaponType,
		Confidence:    confidence,
		BBox:          bbox,
		Location:      location,
		ImagePath:     "images/EVD_1.jpg",
		AnnotatedPath: "annotated/EVD_1_annotated.jpg",
	}
	e.saved = append(e.saved, rec)
	return rec, nil
}

func (e *fakeEvidence) count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.saved)
}

type fakeAlerts struct {
	mu   sync.Mutex
	reqs []alerts.TriggerRequest
}

func (a *fakeAlerts) Trigger(_ context.Context, req alerts.TriggerRequest) alerts.TriggerResult {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.reqs = append(a.reqs, req)
	return alerts.TriggerResult{Triggered: true, Channels: map[string]bool{}}
}

func (a *fakeAlerts) requests() []alerts.TriggerRequest {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]alerts.TriggerRequest(nil), a.reqs...)
}

type fakeSink struct {
	mu     sync.Mutex
	frames int
	events []models.StreamEvent
}

func (s *fakeSink) BroadcastFrame([]byte) {
	s.mu.Lock()
	s.frames++
	s.mu.Unlock()
}

func (s *fakeSink) BroadcastEvent(e any) {
	s.mu.Lock()
	s.events = append(s.events, e.(models.StreamEvent))
	s.mu.Unlock()
}

func (s *fakeSink) frameCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frames
}

func (s *fakeSink) eventList() []models.StreamEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.StreamEvent(nil), s.events...)
}

type fixture struct {
	source   *fakeSource
	detector *fakeDetector
	evidence *fakeEvidence
	alerts   *fakeAlerts
	sink     *fakeSink
	pipeline *Pipeline
}

func newFixture(src *fakeSource) *fixture {
	f := &fixture{
		source:   src,
		detector: &fakeDetector{},
		evidence: &fakeEvidence{},
		alerts:   &fakeAlerts{},
		sink:     &fakeSink{},
	}
	f.pipeline = New(Config{
		Source:      "fake",
		Location:    "Gate",
		FPS:         200,
		StopTimeout: 200 * time.Millisecond,
	}, Deps{
		OpenSource: func() (video.Source, error) { return f.source, nil },
		Detector:   f.detector,
		Filter:     detection.NewFilter(detection.FilterConfig{Threshold: 0.5, Classes: []string{"gun"}, CooldownFrames: 1_000_000}),
		Evidence:   f.evidence,
		Alerts:     f.alerts,
		Sink:       f.sink,
	})
	return f
}

func TestPipelineFansOutAcceptedDetection(t *testing.T) {
	f := newFixture(&fakeSource{frames: 1000, finite: true})
	require.NoError(t, f.pipeline.Start(context.Background()))
	defer f.pipeline.Stop()

	require.Eventually(t, func() bool { return f.sink.frameCount() >= 5 }, 2*time.Second, 5*time.Millisecond)

	// the batch cooldown lets only the first detection through
	assert.Equal(t, 1, f.evidence.count())
	reqs := f.alerts.requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "gun", reqs[0].WeaponType)
	assert.Equal(t, "Gate", reqs[0].Location)
	assert.Equal(t, "EVD_1", reqs[0].EvidenceID)
	assert.Equal(t, "annotated/EVD_1_annotated.jpg", reqs[0].EvidencePath)
	assert.False(t, reqs[0].Force)

	events := f.sink.eventList()
	require.Len(t, events, 1)
	assert.Equal(t, "detection", events[0].Type)
	assert.Equal(t, int64(1), events[0].Data.FrameSeq)

	st := f.pipeline.Status()
	assert.True(t, st.Running)
	assert.Equal(t, int64(1), st.Detections)
	assert.Positive(t, st.FrameCount)
}

func TestPipelineSkipsAlertWhenEvidenceFails(t *testing.T) {
	f := newFixture(&fakeSource{frames: 1000, finite: true})
	f.evidence.err = errors.New("disk full")
	require.NoError(t, f.pipeline.Start(context.Background()))
	defer f.pipeline.Stop()

	require.Eventually(t, func() bool { return len(f.sink.eventList()) == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Empty(t, f.alerts.requests())
}

func TestPipelineTreatsDetectorErrorsAsEmpty(t *testing.T) {
	f := newFixture(&fakeSource{frames: 1000, finite: true})
	f.detector.err = errors.New("model unavailable")
	require.NoError(t, f.pipeline.Start(context.Background()))
	defer f.pipeline.Stop()

	require.Eventually(t, func() bool { return f.sink.frameCount() >= 3 }, 2*time.Second, 5*time.Millisecond)
	assert.True(t, f.pipeline.Running())
	assert.Zero(t, f.evidence.count())
	assert.Empty(t, f.sink.eventList())
}

func TestPipelineStartFailsWhenSourceCannotOpen(t *testing.T) {
	f := newFixture(&fakeSource{openErr: errors.New("no device")})

	err := f.pipeline.Start(context.Background())

	require.Error(t, err)
	assert.False(t, f.pipeline.Running())
	assert.Contains(t, f.pipeline.Status().LastError, "no device")
}

func TestPipelineLoopsFiniteSource(t *testing.T) {
	f := newFixture(&fakeSource{frames: 2, finite: true})
	require.NoError(t, f.pipeline.Start(context.Background()))
	defer f.pipeline.Stop()

	require.Eventually(t, func() bool { return f.source.rewindCount() >= 2 }, 2*time.Second, 5*time.Millisecond)
	assert.True(t, f.pipeline.Running())
}

func TestPipelineEndsOnLiveSourceFailure(t *testing.T) {
	f := newFixture(&fakeSource{frames: 1000, readErr: errors.New("camera unplugged")})
	require.NoError(t, f.pipeline.Start(context.Background()))

	require.Eventually(t, func() bool { return !f.pipeline.Running() }, 2*time.Second, 5*time.Millisecond)

	assert.Contains(t, f.pipeline.Status().LastError, "camera unplugged")
	assert.Contains(t, f.sink.eventList(), models.StreamEvent{
		Type:    "error",
		Message: "read frame from fake: camera unplugged",
	})
}

func TestPipelineStopIsBounded(t *testing.T) {
	src := &fakeSource{block: make(chan struct{})}
	f := newFixture(src)
	require.NoError(t, f.pipeline.Start(context.Background()))

	start := time.Now()
	f.pipeline.Stop()

	assert.Less(t, time.Since(start), time.Second)
	assert.False(t, f.pipeline.Running())
	src.mu.Lock()
	assert.True(t, src.closed)
	src.mu.Unlock()

	// a stopped pipeline can start again
	f.source = &fakeSource{frames: 10, finite: true}
	require.NoError(t, f.pipeline.Start(context.Background()))
	f.pipeline.Stop()
}

func TestWaitCoversConsumerStuckPastStop(t *testing.T) {
	f := newFixture(&fakeSource{frames: 5, finite: true})
	f.evidence.block = make(chan struct{})
	f.evidence.entered = make(chan struct{})

	require.NoError(t, f.pipeline.Start(context.Background()))
	select {
	case <-f.evidence.entered:
	case <-time.After(time.Second):
		t.Fatal("consumer never reached evidence save")
	}

	f.pipeline.Stop()
	assert.False(t, f.pipeline.Running())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, f.pipeline.Wait(ctx), context.DeadlineExceeded)

	close(f.evidence.block)
	require.NoError(t, f.pipeline.Wait(context.Background()))
}

func TestWaitWithoutRunReturnsImmediately(t *testing.T) {
	f := newFixture(&fakeSource{frames: 1})
	assert.NoError(t, f.pipeline.Wait(context.Background()))
}
