package bulb

import (
	"context"
	"time"

	"github.com/nerrad567/lightbridge/internal/color"
)

// fadeStep is the minimum interval between intermediate colour writes.
const fadeStep = 50 * time.Millisecond

// Fade moves the colour from the cached value to target over d. Target
// components below zero keep the cached component. Intermediate writes are
// issued at most every 50ms; a final write sets target exactly. The fade
// stops at the first failed write or when ctx is cancelled.
func (b *Binding) Fade(ctx context.Context, target color.HSV, d time.Duration) Result {
	from := target
	if v, ok := b.Snapshot().Get(Color); ok {
		from = color.HSV(v.(ColorValue))
	}
	target = keepNegative(target, from)
	if from.H < 0 || from.S < 0 || from.V < 0 {
		from = target
	}

	if d > 0 {
		start := time.Now()
		ticker := time.NewTicker(fadeStep)
		defer ticker.Stop()

	steps:
		for {
			select {
			case <-ctx.Done():
				return Result{Outcome: OutcomeError, Elapsed: time.Since(start), Err: ctx.Err()}
			case <-ticker.C:
				t := float64(time.Since(start)) / float64(d)
				if t >= 1 {
					break steps
				}
				r := b.Set(ctx, ColorValue(color.Interpolate(from, target, t)))
				if !r.OK() {
					if err := ctx.Err(); err != nil {
						return Result{Outcome: OutcomeError, Elapsed: time.Since(start), Err: err}
					}
					return r
				}
			}
		}
	}

	return b.Set(ctx, ColorValue(target.Clamp()))
}

func keepNegative(target, current color.HSV) color.HSV {
	if target.H < 0 {
		target.H = current.H
	}
	if target.S < 0 {
		target.S = current.S
	}
	if target.V < 0 {
		target.V = current.V
	}
	return target
}
