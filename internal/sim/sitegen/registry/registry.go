// Package registry tracks tower sites through pending, checking, built and
// rejected states.
package registry

import (
	"fmt"
	"sort"
	"sync"

	"github.com/askneller/WizardBattles/internal/sim/sitegen/scan"
)

type Pos struct {
	X int `json:"x"`
	Y int `json:"y"`
	Z int `json:"z"`
}

func (p Pos) String() string { return fmt.Sprintf("(%d,%d,%d)", p.X, p.Y, p.Z) }

// Site is a candidate tower location. Pos.Y is the floored surface height.
type Site struct {
	Pos        Pos     `json:"pos"`
	Flatness   int     `json:"flatness"`
	RawHeight  float32 `json:"raw_height"`
	PeakLike   bool    `json:"peak_like"`
	BiomeMatch bool    `json:"biome_match"`
}

func FromCandidate(c scan.Candidate) Site {
	return Site{
		Pos:        Pos{X: c.WorldX, Y: c.Height, Z: c.WorldZ},
		Flatness:   c.Flatness,
		RawHeight:  c.Raw,
		PeakLike:   c.PeakLike,
		BiomeMatch: c.BiomeMatch,
	}
}

type State uint8

const (
	Unknown State = iota
	Pending
	Checking
	Built
	Rejected
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Checking:
		return "checking"
	case Built:
		return "built"
	case Rejected:
		return "rejected"
	}
	return "unknown"
}

func ParseState(s string) (State, bool) {
	for st := Pending; st <= Rejected; st++ {
		if st.String() == s {
			return st, true
		}
	}
	return Unknown, false
}

type Counts struct {
	Pending  int `json:"pending"`
	Checking int `json:"checking"`
	Built    int `json:"built"`
	Rejected int `json:"rejected"`
}

// Registry holds every known site in exactly one state. A built or rejected
// site is never offered again. Safe for concurrent use.
type Registry struct {
	mu       sync.Mutex
	pending  map[Pos]Site
	checking map[Pos]Site
	built    map[Pos]Site
	rejected map[Pos]Site
	attempts map[Pos]int
}

func New() *Registry {
	return &Registry{
		pending:  map[Pos]Site{},
		checking: map[Pos]Site{},
		built:    map[Pos]Site{},
		rejected: map[Pos]Site{},
		attempts: map[Pos]int{},
	}
}

func (r *Registry) stateLocked(p Pos) State {
	switch {
	case has(r.built, p):
		return Built
	case has(r.rejected, p):
		return Rejected
	case has(r.checking, p):
		return Checking
	case has(r.pending, p):
		return Pending
	}
	return Unknown
}

func has(m map[Pos]Site, p Pos) bool {
	_, ok := m[p]
	return ok
}

// Add queues s and reports whether it was new.
func (r *Registry) Add(s Site) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stateLocked(s.Pos) != Unknown {
		return false
	}
	r.pending[s.Pos] = s
	return true
}

// TakeNext moves the highest pending site to checking. Ties go to the lowest
// X, then the lowest Z.
func (r *Registry) TakeNext() (Site, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var best Site
	found := false
	for _, s := range r.pending {
		if !found || higher(s.Pos, best.Pos) {
			best = s
			found = true
		}
	}
	if !found {
		return Site{}, false
	}
	delete(r.pending, best.Pos)
	r.checking[best.Pos] = best
	r.attempts[best.Pos]++
	return best, true
}

func higher(a, b Pos) bool {
	if a.Y != b.Y {
		return a.Y > b.Y
	}
	if a.X != b.X {
		return a.X < b.X
	}
	return a.Z < b.Z
}

// MarkBuilt records s as built from any state.
func (r *Registry) MarkBuilt(s Site) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.pending, s.Pos)
	delete(r.checking, s.Pos)
	delete(r.rejected, s.Pos)
	r.built[s.Pos] = s
}

// Reclaim returns s to pending unless it is built or rejected. Reclaiming a
// site that is not checking still queues it.
func (r *Registry) Reclaim(s Site) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch r.stateLocked(s.Pos) {
	case Built, Rejected:
		delete(r.checking, s.Pos)
		return false
	}
	delete(r.checking, s.Pos)
	r.pending[s.Pos] = s
	return true
}

// Reject drops s for good.
func (r *Registry) Reject(s Site) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if has(r.built, s.Pos) {
		return
	}
	delete(r.pending, s.Pos)
	delete(r.checking, s.Pos)
	r.rejected[s.Pos] = s
}

func (r *Registry) State(p Pos) State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stateLocked(p)
}

// Attempts is how many times p has been taken for checking.
func (r *Registry) Attempts(p Pos) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.attempts[p]
}

func (r *Registry) SetAttempts(p Pos, n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attempts[p] = n
}

func (r *Registry) Counts() Counts {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Counts{
		Pending:  len(r.pending),
		Checking: len(r.checking),
		Built:    len(r.built),
		Rejected: len(r.rejected),
	}
}

// List returns the sites in state st, highest first.
func (r *Registry) List(st State) []Site {
	r.mu.Lock()
	var m map[Pos]Site
	switch st {
	case Pending:
		m = r.pending
	case Checking:
		m = r.checking
	case Built:
		m = r.built
	case Rejected:
		m = r.rejected
	}
	out := make([]Site, 0, len(m))
	for _, s := range m {
		out = append(out, s)
	}
	r.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return higher(out[i].Pos, out[j].Pos) })
	return out
}

// Queued returns pending and checking sites together, highest first. Both
// maps are read under one lock so a site moving between them by TakeNext or
// Reclaim is listed exactly once.
func (r *Registry) Queued() []Site {
	r.mu.Lock()
	out := make([]Site, 0, len(r.pending)+len(r.checking))
	for _, s := range r.pending {
		out = append(out, s)
	}
	for _, s := range r.checking {
		out = append(out, s)
	}
	r.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return higher(out[i].Pos, out[j].Pos) })
	return out
}
