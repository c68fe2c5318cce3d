package stream

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zishang520/engine.io-client-go/transports"
	"github.com/zishang520/engine.io/v2/types"
	"github.com/zishang520/socket.io-client-go/socket"

	"github.com/specialistvlad/wcctgo/internal/ctxlog"
)

// ErrRunFailed wraps a failure reported by the server.
var ErrRunFailed = errors.New("stream: run failed")

// WatchOptions selects the server to watch.
type WatchOptions struct {
	// URL of the socket.io endpoint, e.g. http://localhost:8000/socket.io/.
	URL                string
	Namespace          string
	Timeout            time.Duration
	InsecureSkipVerify bool
}

type watchResult struct {
	done *Done
	err  error
}

// sequencer hands steps to onStep in t order, whatever order they arrive in,
// and reports the run complete once the summary and every step it counts
// have been seen. The first run id it meets is the only one it accepts.
type sequencer struct {
	onStep  func(Step)
	runID   string
	next    int
	pending map[int]Step
	summary *Done
}

func newSequencer(onStep func(Step)) *sequencer {
	return &sequencer{onStep: onStep, next: 1, pending: map[int]Step{}}
}

func (s *sequencer) adopt(id string) bool {
	if s.runID == "" {
		s.runID = id
	}
	return id == s.runID
}

// step buffers st and releases every step that is now in sequence.
func (s *sequencer) step(st Step) bool {
	if !s.adopt(st.RunID) || st.T < s.next {
		return s.complete()
	}
	s.pending[st.T] = st
	for {
		next, ok := s.pending[s.next]
		if !ok {
			break
		}
		delete(s.pending, s.next)
		if s.onStep != nil {
			s.onStep(next)
		}
		s.next++
	}
	return s.complete()
}

func (s *sequencer) done(d Done) bool {
	if !s.adopt(d.RunID) {
		return false
	}
	s.summary = &d
	return s.complete()
}

func (s *sequencer) complete() bool {
	return s.summary != nil && s.next > s.summary.Steps
}

// Watch asks the server for one run with p and calls onStep for every step
// it streams, in order, from a single goroutine at a time. It returns the
// closing summary once every step it announces has been delivered.
func Watch(ctx context.Context, opts WatchOptions, p Params, onStep func(Step)) (*Done, error) {
	logger := ctxlog.FromContext(ctx).With("client", "stream", "url", opts.URL)
	logger.Debug("Watch started.")
	defer logger.Debug("Watch finished.")

	parsedURL, err := url.Parse(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse URL: %w", err)
	}
	if parsedURL.Scheme == "" || parsedURL.Host == "" {
		return nil, fmt.Errorf("failed to parse URL: %q has no scheme or host", opts.URL)
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	namespace := opts.Namespace
	if namespace == "" {
		namespace = "/"
	}

	opCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	so := socket.DefaultOptions()
	if parsedURL.Path != "" && parsedURL.Path != "/" {
		so.SetPath(parsedURL.Path)
	}
	if opts.InsecureSkipVerify {
		logger.Warn("Skipping TLS certificate verification.")
		so.SetTLSClientConfig(&tls.Config{InsecureSkipVerify: true})
	}
	so.SetTransports(types.NewSet(transports.WebSocket))

	baseURL := fmt.Sprintf("%s://%s", parsedURL.Scheme, parsedURL.Host)
	manager := socket.NewManager(baseURL, so)
	io := manager.Socket(namespace, so)
	defer io.Disconnect()

	var (
		isConnected atomic.Bool
		mu          sync.Mutex
		finished    bool
	)
	seq := newSequencer(onStep)
	done := make(chan watchResult, 1)
	// finishLocked must be called with mu held.
	finishLocked := func(r watchResult) {
		if finished {
			return
		}
		finished = true
		done <- r
	}
	finish := func(r watchResult) {
		mu.Lock()
		defer mu.Unlock()
		finishLocked(r)
	}

	io.On(types.EventName("connect"), func(...any) {
		isConnected.Store(true)
		logger.Info("Connected, requesting run.", "sid", io.Id(), "steps", p.Steps)
		io.Emit(EventRun, p)
	})
	io.On(types.EventName("connect_error"), func(errs ...any) {
		err := errors.New("connect_error")
		if len(errs) > 0 {
			if e, ok := errs[0].(error); ok {
				err = e
			}
		}
		finish(watchResult{err: fmt.Errorf("socket.io connection failed: %w", err)})
	})
	io.On(types.EventName(EventStep), func(data ...any) {
		var st Step
		if err := decode(data, &st); err != nil {
			finish(watchResult{err: err})
			return
		}
		mu.Lock()
		defer mu.Unlock()
		if finished {
			return
		}
		if seq.step(st) {
			finishLocked(watchResult{done: seq.summary})
		}
	})
	io.On(types.EventName(EventDone), func(data ...any) {
		var d Done
		if err := decode(data, &d); err != nil {
			finish(watchResult{err: err})
			return
		}
		mu.Lock()
		defer mu.Unlock()
		if finished {
			return
		}
		if seq.done(d) {
			finishLocked(watchResult{done: seq.summary})
			return
		}
		logger.Debug("Summary arrived ahead of its steps.", "received", seq.next-1, "steps", d.Steps)
	})
	io.On(types.EventName(EventError), func(data ...any) {
		var f Failure
		if err := decode(data, &f); err != nil {
			finish(watchResult{err: err})
			return
		}
		finish(watchResult{err: fmt.Errorf("%w: %s", ErrRunFailed, f.Error)})
	})

	io.Connect()

	select {
	case <-opCtx.Done():
		mu.Lock()
		finishLocked(watchResult{})
		received, summary := seq.next-1, seq.summary
		mu.Unlock()
		if summary != nil {
			return nil, fmt.Errorf("timed out with %d of %d steps received: %w", received, summary.Steps, opCtx.Err())
		}
		if isConnected.Load() {
			return nil, fmt.Errorf("timed out after connecting while waiting for %s: %w", EventDone, opCtx.Err())
		}
		return nil, fmt.Errorf("timed out while waiting for initial connection: %w", opCtx.Err())
	case res := <-done:
		return res.done, res.err
	}
}
