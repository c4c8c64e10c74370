package bulb

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/nerrad567/lightbridge/internal/color"
)

// Range is a closed interval of normalised component values.
type Range struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

func (r Range) span() float64 { return r.Max - r.Min }

// Flicker is a randomised colour cycle. Each step picks a hue and a
// saturation inside their ranges and a value inside Value that lies at
// least ValueStep away from the previous one, then waits a random interval.
type Flicker struct {
	Start      color.HSV
	Hue        Range
	Saturation Range
	Value      Range
	ValueStep  float64

	MinInterval time.Duration
	MaxInterval time.Duration

	// Rand is optional; nil uses the package source.
	Rand *rand.Rand
}

// DefaultFlicker is a warm red-orange candle.
func DefaultFlicker() Flicker {
	return Flicker{
		Start:       color.HSV{H: 0, S: 1, V: 1},
		Hue:         Range{Min: 0, Max: 0.1},
		Saturation:  Range{Min: 0.85, Max: 0.9},
		Value:       Range{Min: 0.2, Max: 0.5},
		ValueStep:   0.15,
		MinInterval: 100 * time.Millisecond,
		MaxInterval: 500 * time.Millisecond,
	}
}

// Run switches the bulb on, sets Start and steps until ctx is cancelled.
// Cancellation is the normal end and reports OutcomeOK. A timed out write
// skips its step; any other failed write ends the run with that result.
func (f Flicker) Run(ctx context.Context, b *Binding) Result {
	start := time.Now()
	if r := b.Set(ctx, PowerValue(true)); failed(ctx, r) {
		return r
	}
	if r := b.Set(ctx, ColorValue(f.Start.Clamp())); failed(ctx, r) {
		return r
	}

	last := f.Start.V
	for {
		if !sleep(ctx, f.interval()) {
			return stopped(start)
		}
		next := color.HSV{
			H: f.between(f.Hue.Min, f.Hue.Max),
			S: f.between(f.Saturation.Min, f.Saturation.Max),
			V: f.outside(f.Value, last-f.ValueStep, last+f.ValueStep),
		}
		if r := b.Set(ctx, ColorValue(next)); failed(ctx, r) {
			return r
		}
		last = next.V
	}
}

func (f Flicker) float() float64 {
	if f.Rand != nil {
		return f.Rand.Float64()
	}
	return rand.Float64()
}

func (f Flicker) between(lo, hi float64) float64 {
	return lo + f.float()*(hi-lo)
}

// outside samples r uniformly, excluding the open gap (gapLo, gapHi). When
// the gap covers the whole range the gap is ignored.
func (f Flicker) outside(r Range, gapLo, gapHi float64) float64 {
	gapLo, gapHi = max(gapLo, r.Min), min(gapHi, r.Max)
	below, above := gapLo-r.Min, r.Max-gapHi
	if gapLo >= gapHi || below+above <= 0 {
		return f.between(r.Min, r.Max)
	}
	x := f.float() * (below + above)
	if x < below {
		return r.Min + x
	}
	return gapHi + (x - below)
}

func (f Flicker) interval() time.Duration {
	spread := f.MaxInterval - f.MinInterval
	if spread <= 0 {
		return f.MinInterval
	}
	return f.MinInterval + time.Duration(f.float()*float64(spread))
}

// Pulse sweeps the value up and down between Value.Min and Value.Max in a
// triangle wave, taking Period for each sweep. Hue and saturation come
// from Start; negative components keep the cached colour's.
type Pulse struct {
	Start  color.HSV
	Value  Range
	Period time.Duration
}

// DefaultPulse is a slow yellow-green breathing light.
func DefaultPulse() Pulse {
	return Pulse{
		Start:  color.HSV{H: 0.2, S: 0.9, V: 0.3},
		Value:  Range{Min: 0.3, Max: 0.7},
		Period: 20 * time.Second,
	}
}

// Run switches the bulb on and sweeps until ctx is cancelled. Writes are
// issued once per thousandth of the value range, but never more often than
// every 50ms. Failures are handled as in Flicker.Run.
func (p Pulse) Run(ctx context.Context, b *Binding) Result {
	start := time.Now()
	if r := b.Set(ctx, PowerValue(true)); failed(ctx, r) {
		return r
	}

	base := p.Start
	base.V = p.Value.Min
	if cached, ok := b.cachedColor(); ok {
		base = keepNegative(base, cached)
	}
	if r := b.Set(ctx, ColorValue(base.Clamp())); failed(ctx, r) {
		return r
	}

	step := fadeStep
	if steps := p.Value.span() * perMilleSteps; steps > 0 && p.Period > 0 {
		step = max(step, time.Duration(float64(p.Period)/steps))
	}
	ticker := time.NewTicker(step)
	defer ticker.Stop()

	sweep := time.Now()
	for {
		select {
		case <-ctx.Done():
			return stopped(start)
		case <-ticker.C:
		}
		current, ok := b.cachedColor()
		if !ok {
			current = base
		}
		next := keepNegative(color.HSV{H: -1, S: -1, V: p.Value.Min + p.Value.span()*triangle(time.Since(sweep), p.Period)}, current)
		if r := b.Set(ctx, ColorValue(next)); failed(ctx, r) {
			return r
		}
	}
}

// perMilleSteps is the device resolution of a value component.
const perMilleSteps = 1000

// triangle maps elapsed onto 0..1..0 with each half taking period.
func triangle(elapsed, period time.Duration) float64 {
	if period <= 0 {
		return 0
	}
	phase := float64(elapsed%(2*period)) / float64(period)
	if phase > 1 {
		return 2 - phase
	}
	return phase
}

// Chase flashes an anchor bulb and then the next of the other bulbs in
// turn, for Rounds rounds. Each flash is on for On and off for Off.
type Chase struct {
	On     time.Duration
	Off    time.Duration
	Rounds int
}

// DefaultChase is a hundred quick flashes.
func DefaultChase() Chase {
	return Chase{On: 100 * time.Millisecond, Rounds: 100}
}

// Run plays the chase. Timed out writes are skipped; it ends early on
// cancellation or any other failed write.
func (c Chase) Run(ctx context.Context, anchor *Binding, others []*Binding) Result {
	start := time.Now()
	for i := range c.Rounds {
		if r, ok := c.flash(ctx, anchor); !ok {
			return r
		}
		if len(others) == 0 {
			continue
		}
		if r, ok := c.flash(ctx, others[i%len(others)]); !ok {
			return r
		}
	}
	return Result{Outcome: OutcomeOK, Elapsed: time.Since(start)}
}

func (c Chase) flash(ctx context.Context, b *Binding) (Result, bool) {
	start := time.Now()
	for _, step := range []struct {
		power bool
		hold  time.Duration
	}{{true, c.On}, {false, c.Off}} {
		if r := b.Set(ctx, PowerValue(step.power)); failed(ctx, r) {
			return r, false
		}
		if !sleep(ctx, step.hold) {
			return stopped(start), false
		}
	}
	return Result{}, true
}

// failed reports whether an effect should end after r. Timeouts are
// tolerated; cancellation shows up as a failure here and is reported by
// the caller's next sleep or select.
func failed(ctx context.Context, r Result) bool {
	if r.OK() || r.Outcome == OutcomeTimeout {
		return false
	}
	return ctx.Err() == nil
}

func stopped(start time.Time) Result {
	return Result{Outcome: OutcomeOK, Elapsed: time.Since(start)}
}

// sleep waits d and reports false if ctx ended first.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func (b *Binding) cachedColor() (color.HSV, bool) {
	v, ok := b.Snapshot().Get(Color)
	if !ok {
		return color.HSV{}, false
	}
	return color.HSV(v.(ColorValue)), true
}
