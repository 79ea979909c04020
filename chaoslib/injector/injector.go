package injector

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/faultline/faultline-go/pkg/cerrors"
	"github.com/faultline/faultline-go/pkg/clients"
	"github.com/faultline/faultline-go/pkg/log"
	"github.com/faultline/faultline-go/pkg/types"
	"github.com/faultline/faultline-go/pkg/utils/retry"
	"github.com/palantir/stacktrace"
	"github.com/sirupsen/logrus"
)

// Injector translates declarative fault configurations into calls against
// the fault-injection transport
type Injector struct {
	clients clients.ClientSets
}

// appliedFault is one fault currently live on the transport
type appliedFault struct {
	proxy   string
	toxic   string
	service string
}

// Handle tracks an injected fault until it is removed. For cascading
// sequences it also owns the sub-fault timers.
type Handle struct {
	mu      sync.Mutex
	config  types.FaultConfiguration
	result  types.FaultInjectionResult
	active  []appliedFault
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	removed bool
}

// Result returns a copy of the injection outcome recorded so far
func (h *Handle) Result() types.FaultInjectionResult {
	h.mu.Lock()
	defer h.mu.Unlock()
	result := h.result
	result.Errors = append([]string(nil), h.result.Errors...)
	return result
}

func New(clientSets clients.ClientSets) *Injector {
	return &Injector{clients: clientSets}
}

// Inject applies the configured fault. For cascading sequences the first
// sub-fault is applied synchronously and a failure there aborts the whole
// run; the remaining sub-faults run on their own timers and their failures
// are recorded without aborting the schedule.
func (inj *Injector) Inject(ctx context.Context, config types.FaultConfiguration) (*Handle, error) {
	if err := config.Validate(); err != nil {
		return nil, stacktrace.Propagate(err, "invalid fault configuration")
	}

	handle := &Handle{
		config: config,
		result: types.FaultInjectionResult{
			Type:      config.Type,
			Intensity: config.Intensity,
			StartTime: time.Now(),
		},
	}

	log.InfoWithValues("[Chaos]: Injecting fault", logrus.Fields{
		"Type":      config.Type,
		"Proxy":     config.Proxy,
		"Intensity": config.Intensity,
	})

	if config.Type == types.FaultCascadingSequence {
		if err := inj.injectSequence(ctx, config, handle); err != nil {
			return nil, err
		}
	} else {
		if err := inj.apply(config, handle); err != nil {
			return nil, stacktrace.Propagate(err, "could not inject %v fault", config.Type)
		}
	}

	handle.result.Success = true
	return handle, nil
}

// Remove lifts the fault. Removal failures are retried once, then recorded.
// Safe to call more than once.
func (inj *Injector) Remove(handle *Handle) error {
	if handle == nil {
		return nil
	}

	handle.mu.Lock()
	if handle.removed {
		handle.mu.Unlock()
		return nil
	}
	handle.removed = true
	cancel := handle.cancel
	handle.mu.Unlock()

	// stop pending sub-fault timers and join their goroutines
	if cancel != nil {
		cancel()
	}
	handle.wg.Wait()

	handle.mu.Lock()
	remaining := handle.active
	handle.active = nil
	handle.mu.Unlock()

	var lastErr error
	for _, fault := range remaining {
		if err := inj.removeFault(fault); err != nil {
			// one retry, then record the failure
			if err = inj.removeFault(fault); err != nil {
				handle.recordError(err)
				lastErr = err
			}
		}
	}

	handle.mu.Lock()
	handle.result.EndTime = time.Now()
	handle.mu.Unlock()

	if lastErr != nil {
		return stacktrace.Propagate(lastErr, "could not remove fault cleanly")
	}
	log.Info("[Chaos]: Fault removed")
	return nil
}

// apply puts a non-cascading fault on the transport and records it on the handle
func (inj *Injector) apply(config types.FaultConfiguration, handle *Handle) error {
	if config.Type == types.FaultProcessKill {
		if err := inj.clients.Process.Kill(config.Service); err != nil {
			return err
		}
		handle.addActive(appliedFault{service: config.Service})
		return nil
	}

	toxics, err := buildToxics(config)
	if err != nil {
		return err
	}
	for _, toxic := range toxics {
		if err := inj.clients.Toxiproxy.AddToxic(config.Proxy, toxic); err != nil {
			return err
		}
		handle.addActive(appliedFault{proxy: config.Proxy, toxic: toxic.Name})
	}
	return nil
}

// injectSequence schedules every sub-fault's own inject/remove pair at its
// declared offsets relative to now
func (inj *Injector) injectSequence(ctx context.Context, config types.FaultConfiguration, handle *Handle) error {
	sequence := append([]types.SubFault(nil), config.Sequence...)
	sort.SliceStable(sequence, func(i, j int) bool {
		return sequence[i].Delay < sequence[j].Delay
	})

	start := time.Now()
	timerCtx, cancel := context.WithCancel(context.Background())
	handle.cancel = cancel

	// the first sub-fault decides whether the scenario runs at all
	first := sequence[0]
	if first.Delay > 0 {
		select {
		case <-ctx.Done():
			cancel()
			return stacktrace.NewError("scenario cancelled before the first sub-fault fired")
		case <-time.After(first.Delay):
		}
	}
	if err := inj.apply(first.Config, handle); err != nil {
		cancel()
		return stacktrace.Propagate(err, "could not inject the first sub-fault of the sequence")
	}
	inj.scheduleRemoval(timerCtx, handle, first, start)

	for _, sub := range sequence[1:] {
		sub := sub
		handle.wg.Add(1)
		go func() {
			defer handle.wg.Done()

			if !sleepUntil(timerCtx, start.Add(sub.Delay)) {
				return
			}
			if err := inj.apply(sub.Config, handle); err != nil {
				// later sub-faults never abort the schedule
				log.Errorf("sub-fault %v failed to inject, err: %v", sub.Config.Type, err)
				handle.recordError(err)
				return
			}
			inj.scheduleRemoval(timerCtx, handle, sub, start)
		}()
	}
	return nil
}

// scheduleRemoval lifts one sub-fault at its declared end offset. If the
// timers are cancelled first, Remove picks the fault up from the active list.
func (inj *Injector) scheduleRemoval(ctx context.Context, handle *Handle, sub types.SubFault, start time.Time) {
	handle.wg.Add(1)
	go func() {
		defer handle.wg.Done()

		if !sleepUntil(ctx, start.Add(sub.Delay).Add(sub.Duration)) {
			return
		}
		for _, fault := range handle.takeActiveFor(sub.Config) {
			if err := inj.removeFault(fault); err != nil {
				log.Errorf("sub-fault %v failed to remove cleanly, err: %v", sub.Config.Type, err)
				handle.recordError(err)
			}
		}
	}()
}

func (inj *Injector) removeFault(fault appliedFault) error {
	if fault.service != "" {
		if err := inj.clients.Process.Restart(fault.service); err != nil {
			return err
		}
		return inj.confirmServiceRunning(fault.service)
	}
	return inj.clients.Toxiproxy.RemoveToxic(fault.proxy, fault.toxic)
}

// confirmServiceRunning polls the agent until the restarted service reports
// running again, a hung status call counts as a failed attempt
func (inj *Injector) confirmServiceRunning(service string) error {
	return retry.Times(5).
		Wait(200 * time.Millisecond).
		Timeout(2 * time.Second).
		TryWithTimeout(func(attempt uint) error {
			status, err := inj.clients.Process.Status(service)
			if err != nil {
				return err
			}
			if !status.Running {
				return cerrors.FaultInjection{Target: service, Reason: "service has not come back after restart"}
			}
			return nil
		})
}

func (h *Handle) addActive(fault appliedFault) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.active = append(h.active, fault)
}

func (h *Handle) recordError(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.result.Errors = append(h.result.Errors, err.Error())
}

// takeActiveFor claims the active entries belonging to the given sub-fault
// configuration so exactly one goroutine removes them
func (h *Handle) takeActiveFor(config types.FaultConfiguration) []appliedFault {
	h.mu.Lock()
	defer h.mu.Unlock()

	var claimed, kept []appliedFault
	for _, fault := range h.active {
		if matchesConfig(fault, config) {
			claimed = append(claimed, fault)
		} else {
			kept = append(kept, fault)
		}
	}
	h.active = kept
	return claimed
}

func matchesConfig(fault appliedFault, config types.FaultConfiguration) bool {
	if config.Type == types.FaultProcessKill {
		return fault.service == config.Service
	}
	if fault.proxy != config.Proxy {
		return false
	}
	toxics, err := buildToxics(config)
	if err != nil {
		return false
	}
	for _, toxic := range toxics {
		if toxic.Name == fault.toxic {
			return true
		}
	}
	return false
}

// sleepUntil blocks until the deadline passes, returns false if the context
// was cancelled first
func sleepUntil(ctx context.Context, deadline time.Time) bool {
	wait := time.Until(deadline)
	if wait <= 0 {
		return ctx.Err() == nil
	}
	select {
	case <-ctx.Done():
		return false
	case <-time.After(wait):
		return true
	}
}
