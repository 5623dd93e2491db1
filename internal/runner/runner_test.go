package runner

import (
	"context"
	"errors"
	"image"
	"sync"
	"testing"
	"time"

	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pranav24547/Ai-Surveillance-System/internal/alerts"
	"github.com/pranav24547/Ai-Surveillance-System/internal/evidence"
	"github.com/pranav24547/Ai-Surveillance-System/internal/models"
	"github.com/pranav24547/Ai-Surveillance-System/internal/pipeline"
	"github.com/pranav24547/Ai-Surveillance-System/internal/services/detection"
)

type fakeStream struct {
	mu       sync.Mutex
	running  bool
	startErr error
	starts   int
	stops    int
}

func (s *fakeStream) Start(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.starts++
	if s.startErr != nil {
		return s.startErr
	}
	s.running = true
	return nil
}

func (s *fakeStream) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stops++
	s.running = false
}

func (s *fakeStream) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *fakeStream) Status() pipeline.Status {
	return pipeline.Status{Running: s.Running(), Detections: 3}
}

type fakeAudience struct {
	mu     sync.Mutex
	count  int
	events []any
}

func (a *fakeAudience) Count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.count
}

func (a *fakeAudience) set(n int) {
	a.mu.Lock()
	a.count = n
	a.mu.Unlock()
}

func (a *fakeAudience) BroadcastEvent(e any) {
	a.mu.Lock()
	a.events = append(a.events, e)
	a.mu.Unlock()
}

func newRunner(t *testing.T) (*Runner, *fakeStream, *fakeAudience) {
	t.Helper()
	store, err := evidence.Open(evidence.Config{BasePath: t.TempDir(), MaxFiles: 10}, nil)
	require.NoError(t, err)

	stream := &fakeStream{}
	audience := &fakeAudience{}
	coordinator := alerts.NewCoordinator(alerts.Options{Enabled: true, Cooldown: time.Minute})
	filter := detection.NewFilter(detection.FilterConfig{Threshold: 0.7, Classes: []string{"gun"}})

	return New(stream, audience, coordinator, store, filter, nil, "Camera 1"), stream, audience
}

func TestSyncFollowsViewerCount(t *testing.T) {
	r, stream, audience := newRunner(t)
	ctx := context.Background()

	r.Sync(ctx)
	assert.Zero(t, stream.starts)

	audience.set(2)
	r.Sync(ctx)
	r.Sync(ctx)
	assert.Equal(t, 1, stream.starts)
	assert.True(t, stream.Running())

	audience.set(0)
	r.Sync(ctx)
	assert.Equal(t, 1, stream.stops)
	assert.False(t, stream.Running())
}

func TestSyncReportsSourceFailure(t *testing.T) {
	r, stream, audience := newRunner(t)
	stream.startErr = errors.New("no camera")
	audience.set(1)

	r.Sync(context.Background())

	require.Len(t, audience.events, 1)
	assert.Equal(t, models.StreamEvent{Type: "error", Message: "Failed to open video source"}, audience.events[0])
}

func TestRunReconcilesOnNotify(t *testing.T) {
	r, stream, audience := newRunner(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()

	audience.set(1)
	r.Notify()
	require.Eventually(t, stream.Running, time.Second, 5*time.Millisecond)

	cancel()
	<-done
	assert.False(t, stream.Running())
}

func TestApplyCommands(t *testing.T) {
	r, _, _ := newRunner(t)
	ctx := context.Background()

	res, err := r.Apply(ctx, models.ControlCommand{Action: models.CommandTestAlert})
	require.NoError(t, err)
	assert.True(t, res.(alerts.TriggerResult).Triggered)
	assert.Equal(t, "TEST", r.coordinator.Recent(1)[0].WeaponType)

	// test alerts are forced through the cooldown
	res, err = r.Apply(ctx, models.ControlCommand{Action: models.CommandTestAlert})
	require.NoError(t, err)
	assert.True(t, res.(alerts.TriggerResult).Triggered)

	_, err = r.Apply(ctx, models.ControlCommand{Action: models.CommandSetThreshold, Value: 0.4})
	require.NoError(t, err)
	assert.Equal(t, 0.4, r.filter.Threshold())

	_, err = r.Apply(ctx, models.ControlCommand{Action: models.CommandSetThreshold, Value: 1.5})
	assert.Error(t, err)

	_, err = r.Apply(ctx, models.ControlCommand{Action: models.CommandSetAlertsEnabled})
	assert.Error(t, err)
	_, err = r.Apply(ctx, models.ControlCommand{Action: models.CommandSetAlertsEnabled, Enabled: lo.ToPtr(false)})
	require.NoError(t, err)
	assert.False(t, r.coordinator.Enabled())

	_, err = r.Apply(ctx, models.ControlCommand{Action: models.CommandSetCooldown, Value: 5})
	require.NoError(t, err)
	assert.Equal(t, 5, r.coordinator.Status().CooldownSeconds)

	_, err = r.Apply(ctx, models.ControlCommand{Action: "reboot"})
	assert.ErrorIs(t, err, ErrUnknownCommand)
}

func TestApplyClearEvidence(t *testing.T) {
	r, _, _ := newRunner(t)
	img := detection.NewAnnotator().Annotate(testImage(), nil)
	_, err := r.store.Save(img, nil, "gun", 0.9, models.BBox{}, "Camera 1")
	require.NoError(t, err)

	res, err := r.Apply(context.Background(), models.ControlCommand{Action: models.CommandClearEvidence})
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"cleared": 1}, res)
	assert.Zero(t, r.store.Len())
}

func TestStatus(t *testing.T) {
	r, _, audience := newRunner(t)
	audience.set(3)

	st := r.Status()
	assert.Equal(t, "running", st.Status)
	assert.Equal(t, 3, st.Viewers)
	assert.Equal(t, int64(3), st.Detections)
	assert.Equal(t, 0.7, st.Threshold)
	assert.True(t, st.Alerts.Enabled)
	assert.False(t, st.Control["kafka"])
}

func testImage() *image.RGBA {
	return image.NewRGBA(image.Rect(0, 0, 16, 16))
}
