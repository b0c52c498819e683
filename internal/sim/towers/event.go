package towers

import (
	"errors"
	"time"

	"github.com/askneller/WizardBattles/internal/sim/sitegen/placer"
	"github.com/askneller/WizardBattles/internal/sim/sitegen/registry"
)

type EventKind string

const (
	KindAdded     EventKind = "SITE_ADDED"
	KindChecking  EventKind = "SITE_CHECKING"
	KindBuilt     EventKind = "SITE_BUILT"
	KindReclaimed EventKind = "SITE_RECLAIMED"
	KindRejected  EventKind = "SITE_REJECTED"
	KindSpawn     EventKind = "SPAWN"
)

type Event struct {
	Seq      uint64         `json:"seq"`
	Kind     EventKind      `json:"kind"`
	Time     time.Time      `json:"time"`
	Site     registry.Site  `json:"site"`
	Template string         `json:"template,omitempty"`
	Rotation int            `json:"rotation,omitempty"`
	Attempt  int            `json:"attempt,omitempty"`
	Detail   string         `json:"detail,omitempty"`
	Spawns   []placer.Spawn `json:"spawns,omitempty"`
}

// EventSink receives every site event. Implementations must be safe for
// concurrent use.
type EventSink interface {
	WriteSiteEvent(Event) error
}

// Sinks fans an event out to several sinks.
type Sinks []EventSink

func (m Sinks) WriteSiteEvent(e Event) error {
	var errs []error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.WriteSiteEvent(e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
