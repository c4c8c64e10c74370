package bulb_test

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/lightbridge/internal/bulb"
	"github.com/nerrad567/lightbridge/internal/bulb/bulbtest"
	"github.com/nerrad567/lightbridge/internal/color"
)

// colours decodes every colour write in sets.
func colours(t *testing.T, sets []bulb.DPS) []color.HSV {
	t.Helper()
	var out []color.HSV
	for _, dps := range sets {
		hex, ok := dps[bulb.CodeColor].(string)
		if !ok {
			continue
		}
		c, err := color.FromHex(hex)
		require.NoError(t, err)
		out = append(out, c)
	}
	return out
}

func TestFlicker_StepsStayInRangeAndMove(t *testing.T) {
	fake := bulbtest.NewFakeConn(nil)
	b := newConnected(t, fake, bulb.Config{})

	f := bulb.DefaultFlicker()
	f.MinInterval, f.MaxInterval = 2*time.Millisecond, 5*time.Millisecond
	f.Rand = rand.New(rand.NewPCG(1, 2))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan bulb.Result, 1)
	go func() { done <- f.Run(ctx, b) }()

	require.Eventually(t, func() bool { return len(fake.Sets()) >= 12 }, time.Second, 5*time.Millisecond)
	cancel()
	r := <-done
	assert.True(t, r.OK(), "cancellation ends the effect normally")

	sets := fake.Sets()
	assert.Equal(t, bulb.DPS{bulb.CodePower: true}, sets[0])

	cs := colours(t, sets)
	require.Greater(t, len(cs), 10)
	assert.Equal(t, color.HSV{H: 0, S: 1, V: 1}, cs[0])

	const tol = 0.002
	for i, c := range cs[1:] {
		assert.InDelta(t, 0.05, c.H, 0.05+tol)
		assert.InDelta(t, 0.875, c.S, 0.025+tol)
		assert.InDelta(t, 0.35, c.V, 0.15+tol)
		if i > 0 {
			assert.GreaterOrEqual(t, math.Abs(c.V-cs[i].V), f.ValueStep-tol, "step %d", i)
		}
	}
}

func TestFlicker_FailedWriteEnds(t *testing.T) {
	fake := bulbtest.NewFakeConn(nil)
	b := newConnected(t, fake, bulb.Config{})
	fake.Err = errors.New("rejected")

	r := bulb.DefaultFlicker().Run(context.Background(), b)
	assert.Equal(t, bulb.OutcomeError, r.Outcome)
	assert.ErrorIs(t, r.Err, bulb.ErrDevice)
}

func TestPulse_KeepsHueAndSaturation(t *testing.T) {
	fake := bulbtest.NewFakeConn(nil)
	b := newConnected(t, fake, bulb.Config{})

	p := bulb.Pulse{
		Start:  color.HSV{H: 0.2, S: 0.9, V: 0.3},
		Value:  bulb.Range{Min: 0.3, Max: 0.7},
		Period: 100 * time.Millisecond,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 400*time.Millisecond)
	defer cancel()
	r := p.Run(ctx, b)
	assert.True(t, r.OK())

	sets := fake.Sets()
	assert.Equal(t, bulb.DPS{bulb.CodePower: true}, sets[0])

	cs := colours(t, sets)
	require.Greater(t, len(cs), 3)
	assert.InDelta(t, 0.3, cs[0].V, 0.001)

	var peak float64
	for _, c := range cs {
		assert.InDelta(t, 0.2, c.H, 0.003)
		assert.InDelta(t, 0.9, c.S, 0.001)
		assert.GreaterOrEqual(t, c.V, 0.3-0.001)
		assert.LessOrEqual(t, c.V, 0.7+0.001)
		peak = max(peak, c.V)
	}
	assert.Greater(t, peak, 0.5, "the sweep should climb past the middle")
}

func TestPulse_NegativeStartKeepsCachedColour(t *testing.T) {
	fake := bulbtest.NewFakeConn(bulb.DPS{bulb.CodeColor: "00b402bc0384"})
	b := newConnected(t, fake, bulb.Config{})
	require.True(t, b.Refresh(context.Background()).OK())

	p := bulb.Pulse{Start: color.HSV{H: -1, S: -1}, Value: bulb.Range{Min: 0.1, Max: 0.2}, Period: time.Second}
	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Millisecond)
	defer cancel()
	p.Run(ctx, b)

	cs := colours(t, fake.Sets())
	require.NotEmpty(t, cs)
	assert.Equal(t, color.HSV{H: 0.5, S: 0.7, V: 0.1}, cs[0])
}

func TestChase_AlternatesAnchorAndOthers(t *testing.T) {
	anchorConn, aConn, bConn := bulbtest.NewFakeConn(nil), bulbtest.NewFakeConn(nil), bulbtest.NewFakeConn(nil)
	anchor := newConnected(t, anchorConn, bulb.Config{DeviceID: "anchor"})
	lampA := newConnected(t, aConn, bulb.Config{DeviceID: "a"})
	lampB := newConnected(t, bConn, bulb.Config{DeviceID: "b"})

	c := bulb.Chase{On: time.Millisecond, Rounds: 3}
	r := c.Run(context.Background(), anchor, []*bulb.Binding{lampA, lampB})
	require.True(t, r.OK())

	on, off := bulb.DPS{bulb.CodePower: true}, bulb.DPS{bulb.CodePower: false}
	assert.Equal(t, []bulb.DPS{on, off, on, off, on, off}, anchorConn.Sets())
	assert.Equal(t, []bulb.DPS{on, off, on, off}, aConn.Sets())
	assert.Equal(t, []bulb.DPS{on, off}, bConn.Sets())
}

func TestChase_Cancelled(t *testing.T) {
	fake := bulbtest.NewFakeConn(nil)
	anchor := newConnected(t, fake, bulb.Config{})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	r := bulb.Chase{On: 20 * time.Millisecond, Rounds: 1000}.Run(ctx, anchor, nil)
	assert.True(t, r.OK())
	assert.Less(t, time.Since(start), time.Second)
}

func TestEffectRunner_StartStop(t *testing.T) {
	runner := bulb.NewEffectRunner(nil)
	defer runner.Close()

	started := make(chan struct{})
	require.NoError(t, runner.Start("glow", []string{"bulb-1", "bulb-2"}, func(ctx context.Context) bulb.Result {
		close(started)
		<-ctx.Done()
		return bulb.Result{}
	}))
	<-started

	assert.Equal(t, map[string]string{"bulb-1": "glow", "bulb-2": "glow"}, runner.Running())

	name, ok := runner.Stop("bulb-2")
	assert.True(t, ok)
	assert.Equal(t, "glow", name)
	assert.Empty(t, runner.Running(), "stopping one key frees the whole run")

	_, ok = runner.Stop("bulb-2")
	assert.False(t, ok)
}

func TestEffectRunner_StartReplaces(t *testing.T) {
	runner := bulb.NewEffectRunner(nil)
	defer runner.Close()

	firstDone := make(chan struct{})
	require.NoError(t, runner.Start("one", []string{"bulb-1"}, func(ctx context.Context) bulb.Result {
		<-ctx.Done()
		close(firstDone)
		return bulb.Result{}
	}))
	require.NoError(t, runner.Start("two", []string{"bulb-1"}, func(ctx context.Context) bulb.Result {
		<-ctx.Done()
		return bulb.Result{}
	}))

	select {
	case <-firstDone:
	default:
		t.Fatal("Start must stop the previous effect before returning")
	}
	assert.Equal(t, map[string]string{"bulb-1": "two"}, runner.Running())
}

func TestEffectRunner_FinishedRunIsForgotten(t *testing.T) {
	runner := bulb.NewEffectRunner(nil)
	defer runner.Close()

	require.NoError(t, runner.Start("blink", []string{"bulb-1"}, func(context.Context) bulb.Result {
		return bulb.Result{Outcome: bulb.OutcomeOK}
	}))
	assert.Eventually(t, func() bool { return len(runner.Running()) == 0 }, time.Second, 5*time.Millisecond)
}

func TestEffectRunner_Close(t *testing.T) {
	runner := bulb.NewEffectRunner(nil)

	stopped := make(chan struct{})
	require.NoError(t, runner.Start("glow", []string{"bulb-1"}, func(ctx context.Context) bulb.Result {
		<-ctx.Done()
		close(stopped)
		return bulb.Result{}
	}))

	runner.Close()
	<-stopped

	err := runner.Start("glow", []string{"bulb-1"}, func(context.Context) bulb.Result { return bulb.Result{} })
	assert.ErrorIs(t, err, bulb.ErrRunnerClosed)
}
