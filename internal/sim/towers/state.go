package towers

import "github.com/askneller/WizardBattles/internal/sim/sitegen/registry"

// State is the persisted part of a session.
type State struct {
	Towers   []Tower
	Pending  []registry.Site
	Rejected []registry.Site
	Attempts map[registry.Pos]int
}

// Export captures built, pending and rejected sites. Sites being checked
// are exported as pending.
func (s *Session) Export() State {
	st := State{
		Towers:   s.Towers(),
		Pending:  s.reg.Queued(),
		Rejected: s.reg.List(registry.Rejected),
		Attempts: map[registry.Pos]int{},
	}
	for _, t := range st.Towers {
		st.Attempts[t.Site.Pos] = s.reg.Attempts(t.Site.Pos)
	}
	for _, p := range st.Pending {
		if n := s.reg.Attempts(p.Pos); n > 0 {
			st.Attempts[p.Pos] = n
		}
	}
	return st
}

// Restore seeds the registry from a previous run. Built towers are never
// offered again.
func (s *Session) Restore(st State) {
	for _, t := range st.Towers {
		s.reg.MarkBuilt(t.Site)
		s.recordTower(t)
	}
	for _, site := range st.Rejected {
		s.reg.Reject(site)
	}
	for _, site := range st.Pending {
		s.reg.Add(site)
	}
	for p, n := range st.Attempts {
		s.reg.SetAttempts(p, n)
	}
}
