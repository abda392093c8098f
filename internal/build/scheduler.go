package build

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"tern/internal/graph"
	"tern/internal/logfields"
)

// renderFunc executes the stages of one claimed node.
type renderFunc func(ctx context.Context, worker int, id graph.NodeID) error

// errClaimLost marks a dispatched node that reached a terminal state
// before its worker could claim it; failure propagation won the race.
var errClaimLost = errors.New("claim lost")

// scheduler drains the graph wavefront by wavefront across a fixed
// worker pool. Workers only claim and render; every Done/Failed
// transition happens on the coordinator goroutine, which keeps failure
// propagation and batch re-polling single-threaded.
type scheduler struct {
	g        *graph.Graph
	workers  int
	failFast bool
	log      *slog.Logger
	render   renderFunc
}

type renderResult struct {
	id  graph.NodeID
	err error
}

// run dispatches until the graph is drained, the context is canceled or
// a fatal result arrives. Cancellation and fatal results stop dispatch
// only; renders already in flight always finish and are recorded.
func (s *scheduler) run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	jobs := make(chan graph.NodeID)
	results := make(chan renderResult)

	var wg sync.WaitGroup
	for w := 0; w < s.workers; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			for id := range jobs {
				if err := s.g.MarkRendering(id); err != nil {
					results <- renderResult{id: id, err: errClaimLost}
					continue
				}
				results <- renderResult{id: id, err: s.render(ctx, worker, id)}
			}
		}(w)
	}

	var abort error
	pending := s.g.TopologicalBatch()
	inflight := 0
	stopped := false

	for {
		if len(pending) == 0 && !stopped {
			pending = s.g.TopologicalBatch()
		}
		if inflight == 0 && (stopped || len(pending) == 0) {
			break
		}
		if stopped {
			res := <-results
			inflight--
			if fatal := s.complete(res); fatal != nil && abort == nil {
				abort = fatal
			}
			continue
		}

		var dispatch chan graph.NodeID
		var next graph.NodeID
		if len(pending) > 0 {
			dispatch = jobs
			next = pending[0]
		}
		select {
		case dispatch <- next:
			pending = pending[1:]
			inflight++
		case res := <-results:
			inflight--
			if fatal := s.complete(res); fatal != nil && abort == nil {
				abort = fatal
				stopped = true
				cancel()
			}
		case <-ctx.Done():
			stopped = true
		}
	}
	close(jobs)
	wg.Wait()

	if abort != nil {
		return abort
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.g.Remaining() > 0 {
		return fatalError(KindInternal, fmt.Errorf("scheduler stalled with %d unrendered nodes", s.g.Remaining()))
	}
	return nil
}

// complete applies one worker result to the graph and returns a
// non-nil error only when the result must abort the whole build.
func (s *scheduler) complete(res renderResult) error {
	if errors.Is(res.err, errClaimLost) {
		return nil
	}
	info, ok := s.g.Node(res.id)
	if !ok {
		return fatalError(KindInternal, fmt.Errorf("result for unknown node %d", res.id))
	}
	if res.err == nil {
		if err := s.g.MarkDone(res.id); err != nil {
			return fatalError(KindInternal, err)
		}
		return nil
	}

	propagated, err := s.g.MarkFailed(res.id, res.err)
	if err != nil {
		return fatalError(KindInternal, err)
	}
	kind := Classify(res.err)
	s.log.Error("node failed",
		logfields.Node(info.Name),
		logfields.Kind(info.Kind.String()),
		slog.String("error_kind", string(kind)),
		logfields.Count(len(propagated)),
		logfields.Error(res.err),
	)
	if kind.Fatal() || s.failFast {
		return nodeError(info.Name, "", res.err)
	}
	return nil
}
