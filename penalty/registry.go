package penalty

import (
	"sync"

	"github.com/BaSui01/agentgov/internal/scheduler"
	"github.com/BaSui01/agentgov/throttle"
)

// record is the one mutable governance record per agent. All state changes
// for an agent happen under its mutex, so operations on one agent are
// serialized while different agents proceed in parallel.
type record struct {
	mu sync.Mutex

	agentID      string
	state        State
	active       *Penalty
	appeal       *Appeal   // pending appeal on the active penalty
	appeals      []*Appeal // full audit trail, never deleted
	history      []*Penalty
	probation    *Probation
	compensation *Compensation
	throttle     *throttle.Throttle
	sessionID    string // active retraining session

	// in-flight gradual restoration; the generation counter invalidates
	// steps that were scheduled before a preempting penalty
	restore    *scheduler.Handle
	restoreGen uint64

	escalations int
}

// registry maps agent IDs to their records. The registry mutex guards only
// the map; record state is guarded per record.
type registry struct {
	mu      sync.RWMutex
	records map[string]*record
}

func newRegistry() *registry {
	return &registry{records: make(map[string]*record)}
}

func (r *registry) get(agentID string) (*record, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.records[agentID]
	return rec, ok
}

func (r *registry) getOrCreate(agentID string, mk func(string) *record) *record {
	r.mu.RLock()
	rec, ok := r.records[agentID]
	r.mu.RUnlock()
	if ok {
		return rec
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if rec, ok := r.records[agentID]; ok {
		return rec
	}
	rec = mk(agentID)
	r.records[agentID] = rec
	return rec
}

// all returns a point-in-time snapshot of the record pointers.
func (r *registry) all() []*record {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*record, 0, len(r.records))
	for _, rec := range r.records {
		out = append(out, rec)
	}
	return out
}

func (r *registry) size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.records)
}
