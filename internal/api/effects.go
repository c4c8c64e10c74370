package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/samber/lo"

	"github.com/nerrad567/lightbridge/internal/bulb"
	"github.com/nerrad567/lightbridge/internal/color"
	"github.com/nerrad567/lightbridge/internal/registry"
)

// Effect names accepted by PUT /resources/{target}/effect.
const (
	EffectFlicker = "flicker"
	EffectPulse   = "pulse"
	EffectChase   = "chase"
)

// maxChaseRounds caps a chase requested over HTTP.
const maxChaseRounds = 10000

// EffectRequest is the body of PUT /resources/{target}/effect. Omitted
// fields keep the effect's defaults. PeriodMS is the sweep time of a pulse
// and the flash time of a chase.
type EffectRequest struct {
	Effect   string      `json:"effect"`
	Color    *color.HSV  `json:"color,omitempty"`
	Value    *bulb.Range `json:"value,omitempty"`
	PeriodMS int         `json:"period_ms,omitempty"`
	Rounds   int         `json:"rounds,omitempty"`
}

func (req EffectRequest) validate() error {
	if req.PeriodMS < 0 || req.PeriodMS > int(maxFadeDuration/time.Millisecond) {
		return errors.New("period_ms out of range")
	}
	if req.Rounds < 0 || req.Rounds > maxChaseRounds {
		return errors.New("rounds out of range")
	}
	if v := req.Value; v != nil && (v.Min < 0 || v.Max > 1 || v.Min > v.Max) {
		return errors.New("value must satisfy 0 <= min <= max <= 1")
	}
	return nil
}

// handleStartEffect starts an effect on the resolved resources, replacing
// whatever effect they were running. Flicker and pulse run per resource;
// a chase runs once across all of them with the first as the anchor.
func (s *Server) handleStartEffect(w http.ResponseWriter, r *http.Request) {
	var req EffectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		fail(w, r, ErrCodeBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	if err := req.validate(); err != nil {
		fail(w, r, ErrCodeBadRequest, err.Error())
		return
	}
	period := time.Duration(req.PeriodMS) * time.Millisecond

	var start func(resources []*registry.Resource) error
	switch req.Effect {
	case EffectFlicker:
		f := bulb.DefaultFlicker()
		if req.Color != nil {
			f.Start = *req.Color
		}
		if req.Value != nil {
			f.Value = *req.Value
		}
		start = s.perResource(req.Effect, func(ctx context.Context, b *bulb.Binding) bulb.Result { return f.Run(ctx, b) })
	case EffectPulse:
		p := bulb.DefaultPulse()
		if req.Color != nil {
			p.Start = *req.Color
		}
		if req.Value != nil {
			p.Value = *req.Value
		}
		if period > 0 {
			p.Period = period
		}
		start = s.perResource(req.Effect, func(ctx context.Context, b *bulb.Binding) bulb.Result { return p.Run(ctx, b) })
	case EffectChase:
		c := bulb.DefaultChase()
		if period > 0 {
			c.On = period
		}
		if req.Rounds > 0 {
			c.Rounds = req.Rounds
		}
		start = func(resources []*registry.Resource) error {
			bindings := lo.Map(resources, func(res *registry.Resource, _ int) *bulb.Binding { return res.Binding })
			return s.effects.Start(req.Effect, resourceIDs(resources), func(ctx context.Context) bulb.Result {
				return c.Run(ctx, bindings[0], bindings[1:])
			})
		}
	default:
		fail(w, r, ErrCodeBadRequest, "unknown effect "+req.Effect)
		return
	}

	resources, ok := s.targetResources(w, r)
	if !ok {
		return
	}
	if err := start(resources); err != nil {
		fail(w, r, ErrCodeUnavailable, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"effect":    req.Effect,
		"resources": resourceIDs(resources),
	})
}

// perResource starts one run of fn for each resource, keyed by its id.
func (s *Server) perResource(name string, fn func(context.Context, *bulb.Binding) bulb.Result) func([]*registry.Resource) error {
	return func(resources []*registry.Resource) error {
		for _, res := range resources {
			b := res.Binding
			if err := s.effects.Start(name, []string{res.ID}, func(ctx context.Context) bulb.Result { return fn(ctx, b) }); err != nil {
				return err
			}
		}
		return nil
	}
}

// handleStopEffect stops the effects running on the resolved resources.
func (s *Server) handleStopEffect(w http.ResponseWriter, r *http.Request) {
	resources, ok := s.targetResources(w, r)
	if !ok {
		return
	}
	stopped := make(map[string]string)
	for _, res := range resources {
		if name, ok := s.effects.Stop(res.ID); ok {
			stopped[res.ID] = name
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"stopped": stopped})
}

func (s *Server) handleListEffects(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"effects": s.effects.Running()})
}

func resourceIDs(resources []*registry.Resource) []string {
	return lo.Map(resources, func(res *registry.Resource, _ int) string { return res.ID })
}
