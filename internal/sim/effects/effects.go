// Package effects holds the buff/debuff catalog applied to a running engine.
package effects

import (
	"fmt"
	"time"

	"kartetris.ai/internal/sim/sched"
	"kartetris.ai/internal/sim/tuning"
)

type Kind string

const (
	Buff   Kind = "buff"
	Debuff Kind = "debuff"
)

const (
	HalveGameSpeed  = "HalveGameSpeed"
	DoubleGameSpeed = "DoubleGameSpeed"
	ClearLine       = "ClearLine"
	AddLine         = "AddLine"
)

// Target is the engine surface effects act on. *game.Engine satisfies it.
type Target interface {
	IncreaseSpeed(period time.Duration)
	NormalGameSpeed()
	After(d time.Duration, fn func()) sched.Task
	ClearLowestRow() bool
	AddLine()
}

type Effect interface {
	Name() string
	Kind() Kind
	// Duration is zero for instant effects.
	Duration() time.Duration
	Apply(t Target)
}

// speed sets the gravity period for a while, then restores normal speed.
type speed struct {
	name     string
	kind     Kind
	period   time.Duration
	duration time.Duration
}

func (e speed) Name() string            { return e.name }
func (e speed) Kind() Kind              { return e.kind }
func (e speed) Duration() time.Duration { return e.duration }

func (e speed) Apply(t Target) {
	t.IncreaseSpeed(e.period)
	t.After(e.duration, t.NormalGameSpeed)
}

type clearLine struct{}

func (clearLine) Name() string            { return ClearLine }
func (clearLine) Kind() Kind              { return Buff }
func (clearLine) Duration() time.Duration { return 0 }
func (clearLine) Apply(t Target)          { t.ClearLowestRow() }

type addLine struct{}

func (addLine) Name() string            { return AddLine }
func (addLine) Kind() Kind              { return Debuff }
func (addLine) Duration() time.Duration { return 0 }
func (addLine) Apply(t Target)          { t.AddLine() }

// Registry resolves effect names. Every known effect is registered, including
// ones absent from the catalog.
type Registry struct {
	byName  map[string]Effect
	catalog []Effect
}

func NewRegistry(t tuning.Tuning) (*Registry, error) {
	d := time.Duration(t.Effects.DurationMs) * time.Millisecond
	all := []Effect{
		speed{name: HalveGameSpeed, kind: Buff, period: time.Duration(t.Effects.SlowPeriodMs) * time.Millisecond, duration: d},
		speed{name: DoubleGameSpeed, kind: Debuff, period: time.Duration(t.Effects.FastPeriodMs) * time.Millisecond, duration: d},
		clearLine{},
		addLine{},
	}
	r := &Registry{byName: make(map[string]Effect, len(all))}
	for _, e := range all {
		r.byName[e.Name()] = e
	}
	for _, name := range t.Catalog {
		e, ok := r.byName[name]
		if !ok {
			return nil, fmt.Errorf("effects: unknown catalog entry %q", name)
		}
		r.catalog = append(r.catalog, e)
	}
	return r, nil
}

func (r *Registry) Lookup(name string) (Effect, bool) {
	e, ok := r.byName[name]
	return e, ok
}

// Catalog is the ordered selection list. Duplicates are kept and weigh
// proportionally.
func (r *Registry) Catalog() []Effect { return r.catalog }

func (r *Registry) Names() []string {
	out := make([]string, len(r.catalog))
	for i, e := range r.catalog {
		out[i] = e.Name()
	}
	return out
}
