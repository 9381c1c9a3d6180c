package dirwatch

import "time"

// options carries the backend-tunable knobs spec.md's per-backend sections
// name: the generic poller's interval, the Inotify/Win32 kernel-buffer
// sizes, and the FSEvents coalescing latency. Unused knobs are simply
// ignored by backends they don't apply to, matching the teacher's own
// AddWith/addOpt pattern in fsnotify.go, where e.g. WithBufferSize is a
// no-op on non-Windows backends.
type options struct {
	pollInterval  time.Duration
	bufferSize    int
	fsEventsDelay time.Duration
}

const (
	defaultPollInterval  = 1000 * time.Millisecond // spec.md §4.6.
	defaultBufferSize    = 32 * 1024                // spec.md §3 "EventBuffer", Win32 case; floored up for Inotify.
	defaultFSEventsDelay = 100 * time.Millisecond   // FSEvents coalescing latency (spec.md §4.4).
)

func defaultOptions() options {
	return options{
		pollInterval:  defaultPollInterval,
		bufferSize:    defaultBufferSize,
		fsEventsDelay: defaultFSEventsDelay,
	}
}

// Option configures a Watcher at construction time.
type Option func(*options)

// WithPollInterval sets the Generic backend's poll period. Ignored by every
// other backend.
func WithPollInterval(d time.Duration) Option {
	return func(o *options) { o.pollInterval = d }
}

// WithBufferSize sets the kernel read-buffer size used by the Inotify and
// Win32 backends (spec.md §3: Inotify raises n to room for 1024
// maximally-sized events, (sizeof(inotify_event)+NAME_MAX+1)*1024 bytes,
// when n is smaller, so the 32 KiB default is raised there; Win32 uses n as
// is, 32 KiB per root by default). Ignored by Kqueue, FSEvents, and Generic.
func WithBufferSize(n int) Option {
	return func(o *options) { o.bufferSize = n }
}

// WithFSEventsLatency sets the coalescing latency passed to the FSEvents
// stream (spec.md §4.4). Ignored by every other backend.
func WithFSEventsLatency(d time.Duration) Option {
	return func(o *options) { o.fsEventsDelay = d }
}

func resolveOptions(opts []Option) options {
	o := defaultOptions()
	for _, apply := range opts {
		apply(&o)
	}
	return o
}
