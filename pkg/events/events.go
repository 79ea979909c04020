package events

import (
	"fmt"
	"sync"
	"time"

	"github.com/faultline/faultline-go/pkg/types"
)

// Recorder collects the tagged observations of one run. It is safe for
// concurrent use, the injector timers and the watcher both record into it.
type Recorder struct {
	mu           sync.Mutex
	observations []types.Observation
}

func NewRecorder() *Recorder {
	return &Recorder{}
}

// Recordf appends one observation with the current timestamp
func (r *Recorder) Recordf(observationType, format string, args ...interface{}) {
	r.RecordAt(time.Now(), observationType, fmt.Sprintf(format, args...))
}

// RecordAt appends one observation with an explicit timestamp, used when the
// event time is known more precisely than the recording time
func (r *Recorder) RecordAt(timestamp time.Time, observationType, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.observations = append(r.observations, types.Observation{
		Type:      observationType,
		Message:   message,
		Timestamp: timestamp,
	})
}

// Observations returns the recorded sequence in recording order
func (r *Recorder) Observations() []types.Observation {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]types.Observation(nil), r.observations...)
}
