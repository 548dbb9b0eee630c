package job

import (
	"context"
	"sync"

	"github.com/rs/xid"
	"k8s.io/klog/v2"
)

// Op identifies which lifecycle operation a job performs.
type Op string

const (
	OpPrepare          Op = "prepare"
	OpEncrypt          Op = "encrypt"
	OpDecrypt          Op = "decrypt"
	OpChangePassphrase Op = "change-passphrase"
)

// Event is anything the daemon publishes on its event channel.
type Event interface{ event() }

// Progress reports reencryption progress for a device, fraction in [0,1].
// Events for one device arrive in non-decreasing order.
type Progress struct {
	JobID    string
	Device   string
	Fraction float64
}

// Result is the single terminal event of a job.
type Result struct {
	JobID      string
	Op         Op
	Device     string
	DeviceName string
	Code       Code
}

// RequestParams asks the caller to supply the credentials needed to finish
// a resumed encryption.
type RequestParams struct {
	Device     string
	DeviceName string
}

func (Progress) event()      {}
func (Result) event()        {}
func (RequestParams) event() {}

// NewID returns a fresh job identifier.
func NewID() string {
	return "job_" + xid.New().String()
}

// Events is the channel the daemon publishes on. Results are never dropped;
// progress events may be if the consumer lags.
type Events struct {
	ch chan Event
}

func NewEvents(buffer int) *Events {
	if buffer <= 0 {
		buffer = 64
	}
	return &Events{ch: make(chan Event, buffer)}
}

// C is the consumer side of the channel.
func (e *Events) C() <-chan Event { return e.ch }

// Publish delivers an event, blocking until there is room.
func (e *Events) Publish(ev Event) {
	e.ch <- ev
}

// PublishProgress delivers a progress event unless the channel is full.
func (e *Events) PublishProgress(ev Progress) {
	select {
	case e.ch <- ev:
	default:
		klog.V(5).InfoS("Progress event dropped, consumer is lagging", "device", ev.Device)
	}
}

// Runner is one executable lifecycle operation.
type Runner interface {
	Run(ctx context.Context) Code
}

// Job binds a Runner to an identifier and guarantees exactly one terminal
// result, even if the runner panics.
type Job struct {
	ID     string
	Op     Op
	Device string

	runner Runner
	once   sync.Once
	code   Code
	done   chan struct{}
}

func New(id string, op Op, device string, runner Runner) *Job {
	return &Job{
		ID:     id,
		Op:     op,
		Device: device,
		runner: runner,
		done:   make(chan struct{}),
	}
}

// Start executes the job off the calling goroutine. The terminal Result is
// published exactly once; panics inside the runner surface as CodeUnknown.
func (j *Job) Start(ctx context.Context, events *Events, deviceName string) {
	go func() {
		code := j.run(ctx)
		j.once.Do(func() {
			j.code = code
			close(j.done)
			events.Publish(Result{
				JobID:      j.ID,
				Op:         j.Op,
				Device:     j.Device,
				DeviceName: deviceName,
				Code:       code,
			})
		})
	}()
}

func (j *Job) run(ctx context.Context) Code {
	return Run(ctx, j.runner)
}

// Run executes a runner, converting a panic into CodeUnknown so no failure
// escapes the worker boundary.
func Run(ctx context.Context, r Runner) (code Code) {
	defer func() {
		if rec := recover(); rec != nil {
			klog.ErrorS(nil, "Worker panicked", "panic", rec)
			code = CodeUnknown
		}
	}()
	return r.Run(ctx)
}

// Wait blocks until the job finished and returns its exit code.
func (j *Job) Wait() Code {
	<-j.done
	return j.code
}
