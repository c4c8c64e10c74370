package bulb

import (
	"context"
	"maps"
	"sync"
)

// effectRun is one running effect and the keys it holds.
type effectRun struct {
	name   string
	keys   []string
	cancel context.CancelFunc
	done   chan struct{}
}

// EffectRunner runs effects in the background and stops them by key.
// Keys are resource ids; an effect over several resources holds all of
// their keys, and starting a new effect on any of them stops it.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
type EffectRunner struct {
	log Logger

	mu      sync.Mutex
	running map[string]*effectRun
	closed  bool
	wg      sync.WaitGroup
}

// NewEffectRunner creates a runner. logger may be nil.
func NewEffectRunner(logger Logger) *EffectRunner {
	if logger == nil {
		logger = noopLogger{}
	}
	return &EffectRunner{log: logger, running: make(map[string]*effectRun)}
}

// Start stops every effect holding one of keys, then runs fn in the
// background under keys until it returns or is stopped.
func (r *EffectRunner) Start(name string, keys []string, fn func(ctx context.Context) Result) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrRunnerClosed
	}
	var previous []*effectRun
	for _, k := range keys {
		if run, ok := r.running[k]; ok {
			previous = append(previous, run)
			r.release(run)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	run := &effectRun{name: name, keys: keys, cancel: cancel, done: make(chan struct{})}
	for _, k := range keys {
		r.running[k] = run
	}
	r.wg.Add(1)
	r.mu.Unlock()

	for _, p := range previous {
		p.cancel()
		<-p.done
	}

	go func() {
		defer r.wg.Done()
		defer close(run.done)
		result := fn(ctx)

		r.mu.Lock()
		r.release(run)
		r.mu.Unlock()

		if result.OK() {
			r.log.Info("effect finished", "effect", name, "resources", keys, "elapsed", result.Elapsed)
		} else {
			r.log.Warn("effect failed", "effect", name, "resources", keys, "outcome", result.Outcome.String(), "error", result.Err)
		}
	}()
	return nil
}

// Stop stops the effect holding key and waits for it to finish. It returns
// the effect's name, or false when nothing runs under key.
func (r *EffectRunner) Stop(key string) (string, bool) {
	r.mu.Lock()
	run, ok := r.running[key]
	if ok {
		r.release(run)
	}
	r.mu.Unlock()
	if !ok {
		return "", false
	}

	run.cancel()
	<-run.done
	return run.name, true
}

// Running returns the effect name per held key.
func (r *EffectRunner) Running() map[string]string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]string, len(r.running))
	for k, run := range r.running {
		out[k] = run.name
	}
	return out
}

// Close stops every effect and refuses new ones.
func (r *EffectRunner) Close() {
	r.mu.Lock()
	r.closed = true
	runs := maps.Clone(r.running)
	clear(r.running)
	r.mu.Unlock()

	for _, run := range runs {
		run.cancel()
	}
	r.wg.Wait()
}

// release drops every key still owned by run. Callers hold r.mu.
func (r *EffectRunner) release(run *effectRun) {
	for _, k := range run.keys {
		if r.running[k] == run {
			delete(r.running, k)
		}
	}
}
