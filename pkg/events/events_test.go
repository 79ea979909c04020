package events

import (
	"sync"
	"testing"
	"time"

	"github.com/faultline/faultline-go/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder_KeepsRecordingOrder(t *testing.T) {
	r := NewRecorder()
	r.Recordf(types.ObservationScenarioStarted, "scenario %v started", "s1")
	r.Recordf(types.ObservationFaultInjected, "fault injected")
	r.Recordf(types.ObservationFaultRemoved, "fault removed")

	observations := r.Observations()
	require.Len(t, observations, 3)
	assert.Equal(t, types.ObservationScenarioStarted, observations[0].Type)
	assert.Equal(t, "scenario s1 started", observations[0].Message)
	assert.Equal(t, types.ObservationFaultRemoved, observations[2].Type)
}

func TestRecorder_RecordAtUsesGivenTimestamp(t *testing.T) {
	r := NewRecorder()
	at := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)
	r.RecordAt(at, types.ObservationFaultDetected, "failure detected")

	observations := r.Observations()
	require.Len(t, observations, 1)
	assert.Equal(t, at, observations[0].Timestamp)
}

func TestRecorder_ConcurrentRecording(t *testing.T) {
	r := NewRecorder()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.Recordf(types.ObservationMechanismObserved, "mechanism observed")
		}()
	}
	wg.Wait()
	assert.Len(t, r.Observations(), 20)
}
