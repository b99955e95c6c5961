package transfer

import "time"

// State is the phase of a single transfer.
type State int

const (
	StateResolving State = iota
	StateSizeProbing
	StateStreaming
	StateVerifying
	StateDone
)

func (s State) String() string {
	switch s {
	case StateResolving:
		return "resolving"
	case StateSizeProbing:
		return "size-probing"
	case StateStreaming:
		return "streaming"
	case StateVerifying:
		return "verifying"
	case StateDone:
		return "done"
	default:
		return "unknown"
	}
}

// Observation is one progress sample. Total is -1 when unknown. Downloaded
// includes bytes resumed from a partial file; Speed only counts bytes
// received in this session.
type Observation struct {
	State      State
	Filename   string
	Downloaded int64
	Total      int64
	Speed      float64 // bytes per second
	Elapsed    time.Duration
	ETA        time.Duration // zero when Total is unknown
}

// Fraction returns Downloaded/Total in [0,1], or -1 when Total is unknown.
func (o Observation) Fraction() float64 {
	if o.Total <= 0 {
		return -1
	}
	f := float64(o.Downloaded) / float64(o.Total)
	if f > 1 {
		f = 1
	}
	return f
}

// ProgressSink receives observations. Calls happen on the transfer's
// goroutine; implementations must not block for long.
type ProgressSink interface {
	Observe(o Observation)
}

// ProgressFunc adapts a function to ProgressSink.
type ProgressFunc func(o Observation)

func (f ProgressFunc) Observe(o Observation) { f(o) }

type nopSink struct{}

func (nopSink) Observe(Observation) {}

// throttle limits streaming observations to one per interval. State changes
// and the final sample always pass.
type throttle struct {
	sink     ProgressSink
	interval time.Duration
	start    time.Time
	last     time.Time
	filename string
	// base is the resume offset; it is excluded from speed.
	base  int64
	total int64
}

func (t *throttle) emit(state State, downloaded int64, force bool) {
	now := time.Now()
	if !force && now.Sub(t.last) < t.interval {
		return
	}
	t.last = now
	elapsed := now.Sub(t.start)
	o := Observation{
		State:      state,
		Filename:   t.filename,
		Downloaded: downloaded,
		Total:      t.total,
		Elapsed:    elapsed,
	}
	if secs := elapsed.Seconds(); secs > 0 {
		o.Speed = float64(downloaded-t.base) / secs
	}
	if t.total > 0 && o.Speed > 0 && downloaded < t.total {
		o.ETA = time.Duration(float64(t.total-downloaded) / o.Speed * float64(time.Second))
	}
	t.sink.Observe(o)
}
