// Package registry holds the set of bound bulbs and resolves datagram
// targets to them.
package registry

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/lightbridge/internal/bulb"
)

// Defaults for loading.
const (
	// DefaultPrefix is prepended to the sequential resource number.
	DefaultPrefix = "bulb"

	// defaultConcurrency bounds simultaneous connection attempts in LoadNew.
	defaultConcurrency = 4

	// PatternPrefix marks a target as a regular expression.
	PatternPrefix = "*"
)

// ErrNoDialer is returned by New when Config.Dial is nil.
var ErrNoDialer = errors.New("registry: no dialer configured")

// Declaration describes one device from the roster.
type Declaration struct {
	ID      string `json:"id" yaml:"id"`
	Key     string `json:"-" yaml:"key"`
	IP      string `json:"ip" yaml:"ip"`
	Name    string `json:"name" yaml:"name"`
	Version string `json:"version,omitempty" yaml:"version"`
}

// Dialer creates an unconnected device connection for a declaration.
type Dialer func(Declaration) (bulb.Connection, error)

// Logger defines the logging interface used by the Registry.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Config configures a Registry.
type Config struct {
	// Prefix for resource ids. Default: "bulb".
	Prefix string

	// Dial builds device connections. Required.
	Dial Dialer

	// ConnectTimeout, RequestTimeout and EventBuffer are passed to every binding.
	ConnectTimeout time.Duration
	RequestTimeout time.Duration
	EventBuffer    int

	// Concurrency bounds parallel connection attempts. Default: 4.
	Concurrency int

	// Sink receives every binding's lifecycle messages. Optional.
	Sink func(message string, severity int)
}

// Resource is a bound device with its protocol id and subscriber set.
type Resource struct {
	ID          string
	Declaration Declaration
	Binding     *bulb.Binding
	Subscribers *Subscribers
}

// Name returns the declared device name.
func (r *Resource) Name() string {
	return r.Declaration.Name
}

// Registry is the ordered set of bound resources.
//
// All public methods are thread-safe. Ids are assigned sequentially
// (prefix-1, prefix-2, ...) in declaration order and never reused.
type Registry struct {
	cfg    Config
	logger Logger

	mu        sync.RWMutex
	resources []*Resource
	byID      map[string]*Resource
	byDevice  map[string]*Resource
	next      int
	onAdded   []func(*Resource)

	// loadMu serialises LoadNew so a device is never bound twice.
	loadMu sync.Mutex
}

// New creates an empty registry.
func New(cfg Config) (*Registry, error) {
	if cfg.Dial == nil {
		return nil, ErrNoDialer
	}
	if cfg.Prefix == "" {
		cfg.Prefix = DefaultPrefix
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}

	return &Registry{
		cfg:      cfg,
		logger:   noopLogger{},
		byID:     make(map[string]*Resource),
		byDevice: make(map[string]*Resource),
		next:     1,
	}, nil
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// OnAdded registers a hook called for each resource LoadNew adds. Hooks
// run outside the registry lock, in id order.
func (r *Registry) OnAdded(fn func(*Resource)) {
	r.mu.Lock()
	r.onAdded = append(r.onAdded, fn)
	r.mu.Unlock()
}

// Resolve maps a target to resources.
//
//   - "" resolves to nothing.
//   - "*<regex>" resolves to every resource whose id matches, in insertion order.
//   - anything else is a literal id.
//
// An invalid regular expression resolves to nothing.
func (r *Registry) Resolve(pattern string) []*Resource {
	t, err := CompileTarget(pattern)
	if err != nil {
		if !errors.Is(err, ErrEmptyTarget) {
			r.logger.Debug("invalid target pattern", "pattern", pattern, "error", err)
		}
		return nil
	}

	if t.Literal() {
		if res, ok := r.Get(pattern); ok {
			return []*Resource{res}
		}
		return nil
	}
	return lo.Filter(r.All(), func(res *Resource, _ int) bool {
		return t.Match(res.ID)
	})
}

// Get returns the resource with the given id.
func (r *Registry) Get(id string) (*Resource, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	res, ok := r.byID[id]
	return res, ok
}

// All returns every resource in insertion order.
func (r *Registry) All() []*Resource {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Resource, len(r.resources))
	copy(out, r.resources)
	return out
}

// IDs returns every resource id in insertion order.
func (r *Registry) IDs() []string {
	return lo.Map(r.All(), func(res *Resource, _ int) string { return res.ID })
}

// Len returns the number of resources.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.resources)
}

// LoadNew binds every declaration whose device is not bound yet. Attempts
// run concurrently; successes are appended in declaration order. Failures
// are logged and skipped, and are retried by the next LoadNew with the same
// declaration. Bound resources whose session was lost are reconnected.
//
// Returns the newly added resources.
func (r *Registry) LoadNew(ctx context.Context, decls []Declaration) []*Resource {
	r.loadMu.Lock()
	defer r.loadMu.Unlock()

	pending, stale := r.partition(decls)

	bindings := make([]*bulb.Binding, len(pending))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Concurrency)

	for i, d := range pending {
		g.Go(func() error {
			b, err := r.bind(gctx, d)
			if err != nil {
				r.logger.Warn("device not bound", "device", d.ID, "name", d.Name, "error", err)
				return nil
			}
			bindings[i] = b
			return nil
		})
	}
	for _, res := range stale {
		g.Go(func() error {
			if err := res.Binding.Connect(gctx); err != nil {
				r.logger.Warn("device reconnect failed", "resource", res.ID, "error", err)
				return nil
			}
			r.logger.Info("device reconnected", "resource", res.ID)
			return nil
		})
	}
	_ = g.Wait() // workers never return errors

	added := r.append(pending, bindings)

	r.mu.RLock()
	hooks := append([]func(*Resource){}, r.onAdded...)
	r.mu.RUnlock()
	for _, res := range added {
		for _, fn := range hooks {
			fn(res)
		}
	}

	if len(added) > 0 {
		r.logger.Info("resources added", "count", len(added), "ids", lo.Map(added, func(res *Resource, _ int) string { return res.ID }))
	}
	return added
}

// partition splits decls into unbound declarations (deduplicated, in
// order) and bound resources that are currently disconnected.
func (r *Registry) partition(decls []Declaration) ([]Declaration, []*Resource) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]bool, len(decls))
	var pending []Declaration
	var stale []*Resource

	for _, d := range decls {
		if d.ID == "" || seen[d.ID] {
			continue
		}
		seen[d.ID] = true

		if res, ok := r.byDevice[d.ID]; ok {
			if res.Binding.State() == bulb.Disconnected {
				stale = append(stale, res)
			}
			continue
		}
		pending = append(pending, d)
	}
	return pending, stale
}

// bind dials and connects one declaration.
func (r *Registry) bind(ctx context.Context, d Declaration) (*bulb.Binding, error) {
	conn, err := r.cfg.Dial(d)
	if err != nil {
		return nil, fmt.Errorf("dial: %w", err)
	}

	b := bulb.New(conn, bulb.Config{
		DeviceID:       d.ID,
		ConnectTimeout: r.cfg.ConnectTimeout,
		RequestTimeout: r.cfg.RequestTimeout,
		EventBuffer:    r.cfg.EventBuffer,
		Logger:         r.logger,
		Sink:           r.cfg.Sink,
	})
	if err := b.Connect(ctx); err != nil {
		_ = b.Close()
		return nil, err
	}
	return b, nil
}

// append registers successful bindings in declaration order.
func (r *Registry) append(decls []Declaration, bindings []*bulb.Binding) []*Resource {
	r.mu.Lock()
	defer r.mu.Unlock()

	var added []*Resource
	for i, b := range bindings {
		if b == nil {
			continue
		}
		res := &Resource{
			ID:          r.cfg.Prefix + "-" + strconv.Itoa(r.next),
			Declaration: decls[i],
			Binding:     b,
			Subscribers: NewSubscribers(),
		}
		r.next++
		r.resources = append(r.resources, res)
		r.byID[res.ID] = res
		r.byDevice[decls[i].ID] = res
		added = append(added, res)
	}
	return added
}

// Close closes every binding.
func (r *Registry) Close() error {
	var errs []error
	for _, res := range r.All() {
		if err := res.Binding.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", res.ID, err))
		}
	}
	return errors.Join(errs...)
}
