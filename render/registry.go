package render

import (
	"sort"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// WorkerToken is an opaque identity for one recording worker. Callers
// obtain a token up front and pass it explicitly instead of the
// registry sniffing ambient goroutine identity, which keeps the
// dependency visible and the registry testable without concurrency.
type WorkerToken struct {
	id uuid.UUID
}

// NewWorkerToken mints a fresh worker identity.
func NewWorkerToken() WorkerToken {
	return WorkerToken{id: uuid.New()}
}

// String returns the token's identity for logging.
func (t WorkerToken) String() string { return t.id.String() }

// Registry hands out secondary recorders keyed by worker token,
// creating one on first use. The primary per-frame recorders live in
// the FrameRing, not here.
//
// Recorder(token) may be called from multiple goroutines; each returned
// recorder is still exclusively owned by its token's worker.
type Registry struct {
	device Device

	mu        sync.Mutex
	recorders map[WorkerToken]*Recorder
}

// NewRegistry creates an empty registry allocating from device.
func NewRegistry(device Device) *Registry {
	return &Registry{
		device:    device,
		recorders: make(map[WorkerToken]*Recorder),
	}
}

// Recorder returns the token's recorder, creating a secondary-stream
// recorder on first use.
func (g *Registry) Recorder(token WorkerToken) (*Recorder, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if rec, ok := g.recorders[token]; ok {
		return rec, nil
	}
	stream, err := g.device.NewStream(true)
	if err != nil {
		return nil, errors.Wrapf(err, "render: secondary stream for worker %s", token)
	}
	rec := NewRecorder(stream, g.device.Queue())
	g.recorders[token] = rec
	return rec, nil
}

// Len reports how many workers have a recorder.
func (g *Registry) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.recorders)
}

// RecordAll runs fn once per registered worker, each on its own
// goroutine with its own recorder, and waits for all of them. The first
// error cancels nothing already running but is the one returned; this
// mirrors errgroup semantics, which is what callers expect for fan-out
// recording.
func (g *Registry) RecordAll(fn func(token WorkerToken, rec *Recorder) error) error {
	g.mu.Lock()
	tokens := make([]WorkerToken, 0, len(g.recorders))
	for token := range g.recorders {
		tokens = append(tokens, token)
	}
	g.mu.Unlock()

	// Stable fan-out order keeps failures reproducible.
	sort.Slice(tokens, func(i, j int) bool { return tokens[i].id.String() < tokens[j].id.String() })

	var eg errgroup.Group
	for _, token := range tokens {
		token := token
		g.mu.Lock()
		rec := g.recorders[token]
		g.mu.Unlock()
		eg.Go(func() error {
			return fn(token, rec)
		})
	}
	return eg.Wait()
}
