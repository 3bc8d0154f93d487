package loop

import (
	"github.com/joeycumines/logiface"
	"github.com/joeycumines/stumpy"
)

// loopOptions holds configuration resolved from a Loop's New call.
type loopOptions struct {
	logger           *logiface.Logger[*stumpy.Event]
	timerDiagnostics bool
	ioStarvationCap  int
	ioBurstCap       int
}

// Option configures a Loop at construction time.
type Option interface {
	applyLoop(*loopOptions) error
}

type optionFunc func(*loopOptions) error

func (f optionFunc) applyLoop(opts *loopOptions) error { return f(opts) }

// WithLogger attaches a structured logger RunProtected uses to report a
// panic recovered from a timer, immediate action, or I/O callback. A nil
// logger (the default) disables logging entirely, keeping the hot path
// allocation-free.
func WithLogger(l *logiface.Logger[*stumpy.Event]) Option {
	return optionFunc(func(o *loopOptions) error {
		o.logger = l
		return nil
	})
}

// WithTimerDiagnostics enables capturing the call-site stack trace of
// every TimerStart, attached to the resulting Timer's String method. It is
// off by default because the capture cost is non-trivial under high timer
// churn; turn it on while debugging a timer leak, not in production.
func WithTimerDiagnostics(enabled bool) Option {
	return optionFunc(func(o *loopOptions) error {
		o.timerDiagnostics = enabled
		return nil
	})
}

// WithIOStarvationCap overrides the default number of consecutive ready
// timers/actions processed before the loop forces another poll, so I/O
// doesn't starve under a backlog of immediately-ready work. The default is
// maxIOStarvation.
func WithIOStarvationCap(n int) Option {
	return optionFunc(func(o *loopOptions) error {
		o.ioStarvationCap = n
		return nil
	})
}

// WithIOBurstCap overrides the default maximum number of ready file
// descriptors drained from a single poll before yielding back to timers
// and actions. The default is maxIOBurst.
func WithIOBurstCap(n int) Option {
	return optionFunc(func(o *loopOptions) error {
		o.ioBurstCap = n
		return nil
	})
}

func resolveOptions(opts []Option) (*loopOptions, error) {
	cfg := &loopOptions{
		ioStarvationCap: maxIOStarvation,
		ioBurstCap:      maxIOBurst,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt.applyLoop(cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}
