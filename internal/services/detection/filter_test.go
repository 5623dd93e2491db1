package detection

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pranav24547/Ai-Surveillance-System/internal/models"
)

func gun(score float64) models.RawDetection {
	return models.RawDetection{Class: "gun", Score: score, Box: []float64{1, 2, 30, 40}}
}

func TestFilterThresholdAndClasses(t *testing.T) {
	f := NewFilter(FilterConfig{
		Threshold: 0.7,
		Classes:   []string{"gun", "knife"},
	})

	got := f.Apply([]models.RawDetection{
		gun(0.9),
		{Class: "knife", Score: 0.5},
		{Class: "cell phone", Score: 0.99},
		{Class: "person", Score: 0.95},
	}, 1, time.Now())

	require.Len(t, got, 1)
	assert.Equal(t, "gun", got[0].ClassName)
	assert.Equal(t, models.BBox{1, 2, 30, 40}, got[0].BBox)
	assert.Equal(t, int64(1), got[0].FrameSeq)
}

func TestFilterAliasesAndPersonRule(t *testing.T) {
	f := NewFilter(FilterConfig{
		Threshold:       0.4,
		Classes:         []string{"gun"},
		Aliases:         map[string]string{"scissors": "knife"},
		PersonAlerts:    true,
		PersonThreshold: 0.5,
	})

	got := f.Apply([]models.RawDetection{
		{Class: "scissors", Score: 0.8},
		{Class: "person", Score: 0.45},
		{Class: "person", Score: 0.6},
	}, 1, time.Now())

	require.Len(t, got, 2)
	assert.Equal(t, "knife", got[0].ClassName)
	assert.Equal(t, PersonClass, got[1].ClassName)
}

// A weapon in view on frames 1..2D produces one batch at frame 1 and the next at frame D+1.
func TestFilterBatchCooldown(t *testing.T) {
	const d = 5
	f := NewFilter(FilterConfig{Threshold: 0.5, Classes: []string{"gun"}, CooldownFrames: d})

	var fired []int64
	for seq := int64(1); seq <= 2*d; seq++ {
		if got := f.Apply([]models.RawDetection{gun(0.9)}, seq, time.Now()); len(got) > 0 {
			fired = append(fired, seq)
		}
	}

	assert.Equal(t, []int64{1, d + 1}, fired)
}

func TestFilterCooldownEvaluatedPerBatch(t *testing.T) {
	f := NewFilter(FilterConfig{Threshold: 0.5, Classes: []string{"gun", "knife"}, CooldownFrames: 10})

	got := f.Apply([]models.RawDetection{gun(0.9), {Class: "knife", Score: 0.8}}, 1, time.Now())
	assert.Len(t, got, 2)

	// a different class inside the window is still suppressed
	assert.Empty(t, f.Apply([]models.RawDetection{{Class: "knife", Score: 0.8}}, 2, time.Now()))

	f.Reset()
	assert.Len(t, f.Apply([]models.RawDetection{gun(0.9)}, 3, time.Now()), 1)
}

func TestFilterEmptyFramesDoNotArmCooldown(t *testing.T) {
	f := NewFilter(FilterConfig{Threshold: 0.5, Classes: []string{"gun"}, CooldownFrames: 3})

	assert.Nil(t, f.Apply(nil, 1, time.Now()))
	assert.Len(t, f.Apply([]models.RawDetection{gun(0.9)}, 2, time.Now()), 1)
}

func TestFilterSetThresholdClamps(t *testing.T) {
	f := NewFilter(FilterConfig{Threshold: 0.7})

	assert.Equal(t, 1.0, f.SetThreshold(3))
	assert.Equal(t, 0.0, f.SetThreshold(-1))
	assert.Equal(t, 0.25, f.SetThreshold(0.25))
	assert.Equal(t, 0.25, f.Threshold())
}
