package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/lightbridge/internal/bulb"
	"github.com/nerrad567/lightbridge/internal/color"
	"github.com/nerrad567/lightbridge/internal/command"
	"github.com/nerrad567/lightbridge/internal/registry"
)

// maxFadeDuration caps a fade requested over HTTP.
const maxFadeDuration = 10 * time.Minute

// ResourceView is the JSON form of one resource.
type ResourceView struct {
	ID          string        `json:"id"`
	DeviceID    string        `json:"device_id"`
	Name        string        `json:"name"`
	State       bulb.State    `json:"state"`
	Snapshot    bulb.Snapshot `json:"snapshot"`
	Subscribers int           `json:"subscribers"`
	Stats       bulb.Stats    `json:"stats"`
}

// ResultView is the JSON form of one device request.
type ResultView struct {
	ID        string            `json:"id"`
	Outcome   bulb.Outcome      `json:"outcome"`
	ElapsedMS int64             `json:"elapsed_ms"`
	Values    map[string]string `json:"values,omitempty"`
	Dropped   []string          `json:"dropped,omitempty"`
	Error     string            `json:"error,omitempty"`
}

// AssignRequest is the body of PUT /resources/{target}.
type AssignRequest struct {
	Assignments []string `json:"assignments"`
}

// FadeRequest is the body of PUT /resources/{target}/fade. A negative
// component keeps the current value of that component.
type FadeRequest struct {
	H          float64 `json:"h"`
	S          float64 `json:"s"`
	V          float64 `json:"v"`
	DurationMS int     `json:"duration_ms"`
}

func viewOf(res *registry.Resource) ResourceView {
	return ResourceView{
		ID:          res.ID,
		DeviceID:    res.Declaration.ID,
		Name:        res.Name(),
		State:       res.Binding.State(),
		Snapshot:    res.Binding.Snapshot(),
		Subscribers: res.Subscribers.Len(),
		Stats:       res.Binding.Stats(),
	}
}

func resultOf(res *registry.Resource, r bulb.Result, dropped []error) ResultView {
	v := ResultView{
		ID:        res.ID,
		Outcome:   r.Outcome,
		ElapsedMS: r.Elapsed.Milliseconds(),
		Dropped:   lo.Map(dropped, func(err error, _ int) string { return err.Error() }),
	}
	if len(r.Values) > 0 {
		v.Values = make(map[string]string, len(r.Values))
		for _, val := range r.Values {
			v.Values[val.Property().String()] = val.String()
		}
	}
	if r.Err != nil {
		v.Error = r.Err.Error()
	}
	return v
}

// resultStatus maps the worst outcome to an HTTP status.
func resultStatus(results []ResultView) int {
	status := http.StatusOK
	for _, r := range results {
		switch r.Outcome {
		case bulb.OutcomeTimeout:
			return http.StatusGatewayTimeout
		case bulb.OutcomeError:
			status = http.StatusBadGateway
		}
	}
	return status
}

// handleListResources returns every resource in id order.
func (s *Server) handleListResources(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"resources": lo.Map(s.dispatcher.Registry().All(), func(res *registry.Resource, _ int) ResourceView {
			return viewOf(res)
		}),
	})
}

// targetResources resolves the {target} path parameter, writing a 404 when
// nothing matches.
func (s *Server) targetResources(w http.ResponseWriter, r *http.Request) ([]*registry.Resource, bool) {
	target := chi.URLParam(r, "target")
	resources := s.dispatcher.Registry().Resolve(target)
	if len(resources) == 0 {
		fail(w, r, ErrCodeNotFound, "no resource matches "+target)
		return nil, false
	}
	return resources, true
}

// handleGetResources returns the resolved resources.
func (s *Server) handleGetResources(w http.ResponseWriter, r *http.Request) {
	resources, ok := s.targetResources(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"resources": lo.Map(resources, func(res *registry.Resource, _ int) ResourceView { return viewOf(res) }),
	})
}

// handleRefresh queries every resolved resource.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	resources, ok := s.targetResources(w, r)
	if !ok {
		return
	}
	s.writeResults(w, s.each(r.Context(), resources, func(ctx context.Context, res *registry.Resource) ResultView {
		return resultOf(res, res.Binding.Refresh(ctx), nil)
	}))
}

// handleAssign runs an assignment list through the command batcher on
// every resolved resource.
func (s *Server) handleAssign(w http.ResponseWriter, r *http.Request) {
	var req AssignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		fail(w, r, ErrCodeBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	if len(req.Assignments) == 0 {
		fail(w, r, ErrCodeBadRequest, "assignments must not be empty")
		return
	}

	resources, ok := s.targetResources(w, r)
	if !ok {
		return
	}
	s.writeResults(w, s.each(r.Context(), resources, func(ctx context.Context, res *registry.Resource) ResultView {
		batch, result := command.Apply(ctx, res.Binding, req.Assignments)
		return resultOf(res, result, batch.Dropped)
	}))
}

// handleFade fades every resolved resource to the requested colour.
func (s *Server) handleFade(w http.ResponseWriter, r *http.Request) {
	var req FadeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		fail(w, r, ErrCodeBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	d := time.Duration(req.DurationMS) * time.Millisecond
	if d < 0 || d > maxFadeDuration {
		fail(w, r, ErrCodeBadRequest, "duration_ms out of range")
		return
	}

	resources, ok := s.targetResources(w, r)
	if !ok {
		return
	}
	to := color.HSV{H: req.H, S: req.S, V: req.V}
	s.writeResults(w, s.each(r.Context(), resources, func(ctx context.Context, res *registry.Resource) ResultView {
		return resultOf(res, res.Binding.Fade(ctx, to, d), nil)
	}))
}

// handleReload re-reads the roster and binds new declarations.
func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	added, err := s.dispatcher.Reload(r.Context())
	if err != nil {
		fail(w, r, ErrCodeUnavailable, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"added": lo.Map(added, func(res *registry.Resource, _ int) string { return res.ID }),
		"total": s.dispatcher.Registry().Len(),
	})
}

// each runs fn on every resource concurrently. A slow device delays only
// its own entry; results keep the resolved order.
func (s *Server) each(ctx context.Context, resources []*registry.Resource, fn func(context.Context, *registry.Resource) ResultView) []ResultView {
	results := make([]ResultView, len(resources))
	var g errgroup.Group
	for i, res := range resources {
		g.Go(func() error {
			results[i] = fn(ctx, res)
			return nil
		})
	}
	_ = g.Wait() //nolint:errcheck // fn never fails; outcomes are in results
	return results
}

func (s *Server) writeResults(w http.ResponseWriter, results []ResultView) {
	writeJSON(w, resultStatus(results), map[string]any{"results": results})
}
